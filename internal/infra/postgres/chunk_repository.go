package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/asfc/doc-chat/internal/core/ingestion"
	"github.com/asfc/doc-chat/internal/core/retrieval"
)

// chunkColumns は検索系クエリで読み出す列
const chunkColumns = "id, document_id, source, page, chunk_index, text, tokens"

// ChunkRepository はチャンクの検索と書き込みを担うPostgreSQLリポジトリ。
// Embedder が設定されている場合、SearchByText はベクトル近傍検索を先に
// 試し、失敗や0件時にキーワード検索へフォールバックする。
type ChunkRepository struct {
	db       DBTX
	embedder ingestion.Embedder
	logger   *slog.Logger
}

// ChunkRepositoryOption は ChunkRepository のオプション設定
type ChunkRepositoryOption func(*ChunkRepository)

// WithSemanticSearch はクエリ埋め込みによるベクトル検索を有効にする
func WithSemanticSearch(embedder ingestion.Embedder) ChunkRepositoryOption {
	return func(r *ChunkRepository) {
		r.embedder = embedder
	}
}

// WithChunkLogger は ChunkRepository にロガーを設定する
func WithChunkLogger(logger *slog.Logger) ChunkRepositoryOption {
	return func(r *ChunkRepository) {
		r.logger = logger
	}
}

// NewChunkRepository は新しい ChunkRepository を作成する
func NewChunkRepository(db DBTX, opts ...ChunkRepositoryOption) *ChunkRepository {
	r := &ChunkRepository{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// コンパイル時の型チェック
var (
	_ retrieval.Repository = (*ChunkRepository)(nil)
	_ ingestion.ChunkStore = (*ChunkRepository)(nil)
)

// === retrieval.Repository ===

// SearchByText はクエリに関連するチャンクを最大 limit 件返す
func (r *ChunkRepository) SearchByText(ctx context.Context, query string, limit int) ([]*retrieval.Chunk, error) {
	if r.embedder != nil {
		chunks, err := r.searchSemantic(ctx, query, limit)
		if err != nil {
			r.logger.Warn("semantic search failed, falling back to keyword search", "error", err)
		} else if len(chunks) > 0 {
			return chunks, nil
		}
	}

	return r.searchKeyword(ctx, query, limit)
}

func (r *ChunkRepository) searchSemantic(ctx context.Context, query string, limit int) ([]*retrieval.Chunk, error) {
	vectors, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no query embedding returned")
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(vectors[0]), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}

	return scanRetrievalChunks(rows)
}

func (r *ChunkRepository) searchKeyword(ctx context.Context, query string, limit int) ([]*retrieval.Chunk, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil, nil
	}

	patterns := make([]string, 0, len(words))
	for _, w := range words {
		patterns = append(patterns, "%"+w+"%")
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks
		WHERE text ILIKE ANY($1)
		ORDER BY source, page, chunk_index
		LIMIT $2`,
		patterns, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}

	return scanRetrievalChunks(rows)
}

// GetBySource はソース名でチャンクを取得する。
// 完全一致、前方一致、「.pdf を補った前方一致」の順に試す。
func (r *ChunkRepository) GetBySource(ctx context.Context, source string) ([]*retrieval.Chunk, error) {
	queries := []struct {
		sql string
		arg string
	}{
		{"WHERE lower(source) = lower($1)", source},
		{"WHERE source ILIKE $1", source + "%"},
		{"WHERE source ILIKE $1", source + ".pdf%"},
	}

	for _, q := range queries {
		rows, err := r.db.Query(ctx, `
			SELECT `+chunkColumns+`
			FROM chunks `+q.sql+`
			ORDER BY page, chunk_index`,
			q.arg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get chunks by source: %w", err)
		}

		chunks, err := scanRetrievalChunks(rows)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			return chunks, nil
		}
	}

	return nil, nil
}

// GetByDocumentID はドキュメント配下の全チャンクを返す
func (r *ChunkRepository) GetByDocumentID(ctx context.Context, id uuid.UUID) ([]*retrieval.Chunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks
		WHERE document_id = $1
		ORDER BY page, chunk_index`,
		UUIDToPgtype(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by document: %w", err)
	}

	return scanRetrievalChunks(rows)
}

// ListAll は全チャンクを返す
func (r *ChunkRepository) ListAll(ctx context.Context) ([]*retrieval.Chunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks
		ORDER BY source, page, chunk_index`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	return scanRetrievalChunks(rows)
}

// === ingestion.ChunkStore ===

// InsertChunks はチャンクを一括登録する
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []*ingestion.Chunk) error {
	for _, c := range chunks {
		_, err := r.db.Exec(ctx, `
			INSERT INTO chunks (id, document_id, source, page, chunk_index, text, tokens, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			UUIDToPgtype(c.ID), UUIDToPgtype(c.DocumentID),
			c.Source, c.Page, c.ChunkIndex, c.Text, c.Tokens,
			vectorParam(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// DeleteByDocumentID はドキュメント配下のチャンクを削除する
func (r *ChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, UUIDToPgtype(documentID))
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ListMissingEmbeddings は埋め込み未計算のチャンクを最大 limit 件返す
func (r *ChunkRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*ingestion.Chunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks
		WHERE embedding IS NULL
		ORDER BY source, page, chunk_index
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks missing embeddings: %w", err)
	}

	return scanIngestionChunks(rows)
}

// UpdateEmbedding はチャンクの埋め込みを更新する
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	_, err := r.db.Exec(ctx, `UPDATE chunks SET embedding = $2 WHERE id = $1`,
		UUIDToPgtype(id), vectorParam(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	return nil
}

// vectorParam は空の埋め込みをNULLとして扱う
func vectorParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func scanRetrievalChunks(rows pgx.Rows) ([]*retrieval.Chunk, error) {
	defer rows.Close()

	var chunks []*retrieval.Chunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &retrieval.Chunk{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Source:     c.Source,
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Tokens:     c.Tokens,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}

	return chunks, nil
}

func scanIngestionChunks(rows pgx.Rows) ([]*ingestion.Chunk, error) {
	defer rows.Close()

	var chunks []*ingestion.Chunk
	for rows.Next() {
		c, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}

	return chunks, nil
}

func scanChunkRow(row pgx.Row) (*ingestion.Chunk, error) {
	var (
		id, documentID pgtype.UUID
		c              ingestion.Chunk
	)
	if err := row.Scan(&id, &documentID, &c.Source, &c.Page, &c.ChunkIndex, &c.Text, &c.Tokens); err != nil {
		return nil, fmt.Errorf("failed to scan chunk row: %w", err)
	}
	c.ID = PgtypeToUUID(id)
	c.DocumentID = PgtypeToUUID(documentID)
	return &c, nil
}
