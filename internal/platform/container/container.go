package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asfc/doc-chat/internal/core/answer"
	"github.com/asfc/doc-chat/internal/core/history"
	"github.com/asfc/doc-chat/internal/core/ingestion"
	"github.com/asfc/doc-chat/internal/core/retrieval"
	"github.com/asfc/doc-chat/internal/infra/chunkfile"
	"github.com/asfc/doc-chat/internal/infra/openrouter"
	"github.com/asfc/doc-chat/internal/infra/pdf"
	"github.com/asfc/doc-chat/internal/infra/postgres"
	"github.com/asfc/doc-chat/internal/platform/config"
	"github.com/asfc/doc-chat/internal/platform/database"
)

// ServiceContainer はアプリケーション全体の依存関係を保持する。
// データベースへ接続できない場合は劣化モードで構築され、検索は
// ローカルのチャンクファイルのみを対象とし、取り込みと履歴は無効になる。
type ServiceContainer struct {
	AnswerService    *answer.Service
	IngestionService *ingestion.Service // 劣化モードでは nil
	HistoryService   *history.Service   // 劣化モードでは nil
	ChunkFiles       *chunkfile.Store
	TxProvider       *database.TransactionProvider // 劣化モードでは nil

	pool   *pgxpool.Pool
	logger *slog.Logger
}

type containerOptions struct {
	logger   *slog.Logger
	llm      answer.LLMClient
	embedder ingestion.Embedder
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client answer.LLMClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.llm = client
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder ingestion.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger

	pacer := openrouter.NewPacer(cfg.MinCallInterval)

	llm := options.llm
	if llm == nil {
		llm = openrouter.NewGateway(
			cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.OpenRouterModel, pacer,
			openrouter.WithTemperature(cfg.Temperature),
			openrouter.WithMaxTokens(cfg.MaxTokens),
			openrouter.WithGatewayLogger(logger),
		)
	}

	embedder := options.embedder
	if embedder == nil && cfg.OpenRouterAPIKey != "" {
		embedder = openrouter.NewEmbedder(
			cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL,
			openrouter.WithEmbeddingModel(cfg.EmbeddingModel),
		)
	}

	chunkFiles := chunkfile.NewStore(cfg.ChunkDir, chunkfile.WithLogger(logger))

	c := &ServiceContainer{
		ChunkFiles: chunkFiles,
		logger:     logger,
	}

	retriever, err := c.buildStorage(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	c.AnswerService = answer.NewService(retriever, llm, cfg.OpenRouterAPIKey,
		answer.WithTopK(cfg.TopK),
		answer.WithLogger(logger),
	)

	return c, nil
}

// buildStorage はデータベース接続を試み、検索経路を構成する。
// 接続失敗は致命エラーにせず、チャンクファイルのみの劣化モードに落とす。
func (c *ServiceContainer) buildStorage(ctx context.Context, cfg *config.Config, embedder ingestion.Embedder) (*retrieval.Retriever, error) {
	if cfg.DatabaseURL == "" {
		c.logger.Warn("DATABASE_URL is not set, running with chunk files only")
		return retrieval.NewRetriever(c.ChunkFiles, retrieval.WithRetrieverLogger(c.logger)), nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		c.logger.Warn("database connection failed, running with chunk files only", "error", err)
		return retrieval.NewRetriever(c.ChunkFiles, retrieval.WithRetrieverLogger(c.logger)), nil
	}
	c.pool = pool
	c.TxProvider = database.NewTransactionProvider(pool)

	chunkOpts := []postgres.ChunkRepositoryOption{postgres.WithChunkLogger(c.logger)}
	if cfg.UseSemanticSearch && embedder != nil {
		chunkOpts = append(chunkOpts, postgres.WithSemanticSearch(embedder))
	}
	chunkRepo := postgres.NewChunkRepository(pool, chunkOpts...)
	docRepo := postgres.NewDocumentRepository(pool)
	historyRepo := postgres.NewHistoryRepository(pool)

	tokens, err := ingestion.NewTokenCounter()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize token counter: %w", err)
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithLogger(c.logger),
		ingestion.WithChunkMirror(c.ChunkFiles),
		ingestion.WithTransactor(c.TxProvider),
	}
	if embedder != nil {
		ingestOpts = append(ingestOpts, ingestion.WithEmbedder(embedder))
	}
	c.IngestionService = ingestion.NewService(
		docRepo, chunkRepo,
		pdf.NewExtractor(pdf.WithLogger(c.logger)),
		tokens,
		ingestOpts...,
	)

	c.HistoryService = history.NewService(historyRepo, history.WithLogger(c.logger))

	return retrieval.NewRetriever(chunkRepo,
		retrieval.WithFallback(c.ChunkFiles),
		retrieval.WithRetrieverLogger(c.logger),
	), nil
}

// Degraded はデータベースなしで動作しているかどうかを返す
func (c *ServiceContainer) Degraded() bool {
	return c.pool == nil
}

// Close は保持しているリソースを解放する
func (c *ServiceContainer) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
