package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/asfc/doc-chat/internal/core/history"
)

// HistoryRepository は history.Repository を実装するPostgreSQLリポジトリ
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository は新しい HistoryRepository を作成する
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// コンパイル時の型チェック
var _ history.Repository = (*HistoryRepository)(nil)

// Insert は会話ターンを保存する
func (r *HistoryRepository) Insert(ctx context.Context, turn *history.Turn) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, question, response, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		UUIDToPgtype(turn.ID), turn.SessionID, turn.Question, turn.Response, TimeToPgtype(turn.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation turn: %w", err)
	}
	return nil
}

// ListRecent はセッションの履歴を新しい順に最大 limit 件返す
func (r *HistoryRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]*history.Turn, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, question, response, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent history: %w", err)
	}

	return scanTurns(rows)
}

// ListBySession はセッションの全履歴を古い順に返す
func (r *HistoryRepository) ListBySession(ctx context.Context, sessionID string) ([]*history.Turn, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, question, response, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list session history: %w", err)
	}

	return scanTurns(rows)
}

func scanTurns(rows pgx.Rows) ([]*history.Turn, error) {
	defer rows.Close()

	var turns []*history.Turn
	for rows.Next() {
		var (
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
			turn      history.Turn
		)
		if err := rows.Scan(&id, &turn.SessionID, &turn.Question, &turn.Response, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation turn: %w", err)
		}
		turn.ID = PgtypeToUUID(id)
		turn.CreatedAt = PgtypeToTime(createdAt)
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return turns, nil
}
