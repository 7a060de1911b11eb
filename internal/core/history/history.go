package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// dedupeWindow は重複質問の照合で遡る最大件数
const dedupeWindow = 100

// Turn は1回の質問と回答の組を表す
type Turn struct {
	ID        uuid.UUID
	SessionID string
	Question  string
	Response  string
	CreatedAt time.Time
}

// Repository は会話履歴の永続化インターフェース
type Repository interface {
	Insert(ctx context.Context, turn *Turn) error
	// ListRecent は新しい順に最大 limit 件を返す
	ListRecent(ctx context.Context, sessionID string, limit int) ([]*Turn, error)
	// ListBySession はセッションの全履歴を古い順に返す
	ListBySession(ctx context.Context, sessionID string) ([]*Turn, error)
}

// Service は会話履歴のビジネスロジックを提供する
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// Option は Service のオプション設定
type Option func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, opts ...Option) *Service {
	svc := &Service{
		repo:   repo,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// SaveTurn は質問と回答を履歴へ保存する。直近の履歴に全く同じ質問が
// ある場合は重複とみなして保存をスキップし、false を返す。
func (s *Service) SaveTurn(ctx context.Context, sessionID, question, response string) (bool, error) {
	recent, err := s.repo.ListRecent(ctx, sessionID, dedupeWindow)
	if err != nil {
		return false, fmt.Errorf("failed to load recent history: %w", err)
	}

	for _, turn := range recent {
		if turn.Question == question {
			s.logger.Debug("skipping duplicate question", "sessionID", sessionID)
			return false, nil
		}
	}

	turn := &Turn{
		ID:        uuid.New(),
		SessionID: sessionID,
		Question:  question,
		Response:  response,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Insert(ctx, turn); err != nil {
		return false, fmt.Errorf("failed to save conversation turn: %w", err)
	}

	return true, nil
}

// ListBySession はセッションの会話履歴を古い順に返す
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]*Turn, error) {
	turns, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation history: %w", err)
	}
	return turns, nil
}
