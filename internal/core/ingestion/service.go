package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/asfc/doc-chat/internal/core/segment"
)

const (
	// minPageChars を下回るページは画像中心とみなしスキップする
	minPageChars = 50

	// backfillBatchSize は埋め込みバックフィル1回あたりの取得件数
	backfillBatchSize = 100
)

// Service はPDF取り込みとドキュメント管理のビジネスロジックを提供する
type Service struct {
	docs      DocumentRepository
	chunks    ChunkStore
	extractor PageExtractor
	segmenter *segment.Segmenter
	tokens    TokenCounter
	embedder  Embedder
	mirror    ChunkMirror
	tx        TxRunner
	logger    *slog.Logger
}

// Option は Service のオプション設定
type Option func(*Service)

// WithEmbedder は埋め込み計算を有効にする。未設定の場合、
// チャンクは埋め込みなしで保存されキーワード検索のみの対象となる。
func WithEmbedder(e Embedder) Option {
	return func(s *Service) {
		s.embedder = e
	}
}

// WithChunkMirror は取り込み結果のローカル控え書き出しを有効にする。
// 控えの書き込み失敗は取り込みを失敗させない。
func WithChunkMirror(m ChunkMirror) Option {
	return func(s *Service) {
		s.mirror = m
	}
}

// WithTransactor は複数リポジトリにまたがる操作のトランザクション実行を
// 有効にする。未設定の場合は各リポジトリを順に呼び出す。
func WithTransactor(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithSegmenter は分割器を差し替える
func WithSegmenter(seg *segment.Segmenter) Option {
	return func(s *Service) {
		s.segmenter = seg
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(docs DocumentRepository, chunks ChunkStore, extractor PageExtractor, tokens TokenCounter, opts ...Option) *Service {
	svc := &Service{
		docs:      docs,
		chunks:    chunks,
		extractor: extractor,
		segmenter: segment.NewSegmenter(),
		tokens:    tokens,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// IngestPDF はPDFファイルを抽出・分割してチャンクとして保存する。
// ドキュメントレコードは processing で作成され、完了時に completed、
// 途中失敗時は failed へ更新される。
func (s *Service) IngestPDF(ctx context.Context, path string) (*Document, error) {
	filename := filepath.Base(path)

	doc := &Document{
		ID:       uuid.New(),
		Filename: filename,
		Status:   StatusProcessing,
		Metadata: map[string]any{MetaStoragePath: path},
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	pages, err := s.extractor.ExtractPages(ctx, path)
	if err != nil {
		s.markFailed(ctx, doc.ID)
		return nil, fmt.Errorf("failed to extract pages from %s: %w", filename, err)
	}

	chunks := s.buildChunks(doc.ID, filename, pages)

	if s.embedder != nil && len(chunks) > 0 {
		s.attachEmbeddings(ctx, chunks)
	}

	if len(chunks) > 0 {
		if err := s.chunks.InsertChunks(ctx, chunks); err != nil {
			s.markFailed(ctx, doc.ID)
			return nil, fmt.Errorf("failed to store chunks for %s: %w", filename, err)
		}
	}

	if s.mirror != nil {
		if err := s.mirror.WriteDocument(filename, chunks); err != nil {
			s.logger.Warn("failed to write local chunk mirror", "filename", filename, "error", err)
		}
	}

	doc.Status = StatusCompleted
	doc.PageCount = len(pages)
	doc.ChunkCount = len(chunks)
	if err := s.docs.UpdateStatus(ctx, doc.ID, StatusCompleted, doc.PageCount, doc.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to finalize document %s: %w", filename, err)
	}

	s.logger.Info("document ingested",
		"filename", filename,
		"pages", doc.PageCount,
		"chunks", doc.ChunkCount,
	)

	return doc, nil
}

// buildChunks はページ列を分割し、ドキュメント全体で連番の ChunkIndex を振る
func (s *Service) buildChunks(documentID uuid.UUID, filename string, pages []Page) []*Chunk {
	var chunks []*Chunk
	chunkIndex := 0

	for _, page := range pages {
		if len(strings.TrimSpace(page.Text)) < minPageChars {
			s.logger.Debug("skipping low-text page", "filename", filename, "page", page.Number)
			continue
		}

		for _, text := range s.segmenter.Segment(page.Text) {
			chunks = append(chunks, &Chunk{
				ID:         uuid.New(),
				DocumentID: documentID,
				Source:     filename,
				Page:       page.Number,
				ChunkIndex: chunkIndex,
				Text:       text,
				Tokens:     s.tokens.Count(text),
			})
			chunkIndex++
		}
	}

	return chunks
}

// attachEmbeddings はチャンク列へ埋め込みを付与する。
// 埋め込みの失敗は取り込み全体を止めず、警告ログに留める。
func (s *Service) attachEmbeddings(ctx context.Context, chunks []*Chunk) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.logger.Warn("embedding failed, storing chunks without vectors", "error", err)
		return
	}
	if len(embeddings) != len(chunks) {
		s.logger.Warn("embedding count mismatch, storing chunks without vectors",
			"expected", len(chunks), "got", len(embeddings))
		return
	}

	for i, c := range chunks {
		c.Embedding = embeddings[i]
	}
}

func (s *Service) markFailed(ctx context.Context, id uuid.UUID) {
	if err := s.docs.UpdateStatus(ctx, id, StatusFailed, 0, 0); err != nil {
		s.logger.Error("failed to mark document as failed", "documentID", id, "error", err)
	}
}

// BackfillEmbeddings は埋め込み未計算のチャンクへベクトルを補完する。
// 処理した件数を返す。Embedder が未設定の場合はエラー。
func (s *Service) BackfillEmbeddings(ctx context.Context) (int, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("embedder is not configured")
	}

	total := 0
	for {
		batch, err := s.chunks.ListMissingEmbeddings(ctx, backfillBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list chunks missing embeddings: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embeddings, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(embeddings) != len(batch) {
			return total, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
		}

		for i, c := range batch {
			if err := s.chunks.UpdateEmbedding(ctx, c.ID, embeddings[i]); err != nil {
				return total, fmt.Errorf("failed to update embedding for chunk %s: %w", c.ID, err)
			}
			total++
		}

		s.logger.Info("backfilled embeddings", "batch", len(batch), "total", total)
	}
}

// ListDocuments は全ドキュメントを返す
func (s *Service) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.docs.List(ctx)
}

// GetDocument はIDでドキュメントを取得する
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.docs.GetByID(ctx, id)
}

// DeleteDocument はドキュメントと配下のチャンクを削除する。
// TxRunner が設定されている場合は両方の削除を単一トランザクションで行う。
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if s.tx != nil {
		return s.tx.WithinTx(ctx, func(docs DocumentRepository, chunks ChunkStore) error {
			return deleteDocumentTree(ctx, docs, chunks, id)
		})
	}
	return deleteDocumentTree(ctx, s.docs, s.chunks, id)
}

func deleteDocumentTree(ctx context.Context, docs DocumentRepository, chunks ChunkStore, id uuid.UUID) error {
	if err := chunks.DeleteByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// UpdateDocumentMetadata は既存メタデータへ updates をマージして保存する。
// 衝突キーは更新側が優先される。
func (s *Service) UpdateDocumentMetadata(ctx context.Context, id uuid.UUID, updates map[string]any) (*Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	doc.Metadata = MergeMetadata(doc.Metadata, updates)
	if err := s.docs.UpdateMetadata(ctx, id, doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to update metadata: %w", err)
	}

	return doc, nil
}
