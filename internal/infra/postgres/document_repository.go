package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/asfc/doc-chat/internal/core/ingestion"
)

const documentColumns = "id, filename, status, page_count, chunk_count, metadata, created_at, updated_at"

// DocumentRepository は ingestion.DocumentRepository を実装するPostgreSQLリポジトリ
type DocumentRepository struct {
	db DBTX
}

// NewDocumentRepository は新しい DocumentRepository を作成する
func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// コンパイル時の型チェック
var _ ingestion.DocumentRepository = (*DocumentRepository)(nil)

// Create はドキュメントレコードを登録する
func (r *DocumentRepository) Create(ctx context.Context, doc *ingestion.Document) error {
	metadata, err := MetadataToJSON(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO documents (id, filename, status, page_count, chunk_count, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		UUIDToPgtype(doc.ID), doc.Filename, doc.Status, doc.PageCount, doc.ChunkCount, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID はIDでドキュメントを取得する
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*ingestion.Document, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1`,
		UUIDToPgtype(id),
	)
	return scanDocument(row)
}

// GetByFilename はファイル名でドキュメントを取得する
func (r *DocumentRepository) GetByFilename(ctx context.Context, filename string) (*ingestion.Document, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE filename = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		filename,
	)
	return scanDocument(row)
}

// List は全ドキュメントを新しい順に返す
func (r *DocumentRepository) List(ctx context.Context) ([]*ingestion.Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*ingestion.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document rows: %w", err)
	}

	return docs, nil
}

// UpdateStatus はステータスとページ・チャンク数を更新する
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, page_count = $3, chunk_count = $4, updated_at = now()
		WHERE id = $1`,
		UUIDToPgtype(id), status, pageCount, chunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// UpdateMetadata はメタデータ全体を置き換える。
// マージ処理は呼び出し側（ingestion.Service）が担う。
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	data, err := MetadataToJSON(metadata)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET metadata = $2, updated_at = now()
		WHERE id = $1`,
		UUIDToPgtype(id), data,
	)
	if err != nil {
		return fmt.Errorf("failed to update document metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Delete はドキュメントレコードを削除する
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*ingestion.Document, error) {
	var (
		id                   pgtype.UUID
		metadata             []byte
		createdAt, updatedAt pgtype.Timestamptz
		doc                  ingestion.Document
	)

	err := row.Scan(&id, &doc.Filename, &doc.Status, &doc.PageCount, &doc.ChunkCount, &metadata, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document not found")
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.ID = PgtypeToUUID(id)
	doc.CreatedAt = PgtypeToTime(createdAt)
	doc.UpdatedAt = PgtypeToTime(updatedAt)

	doc.Metadata, err = JSONToMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}
