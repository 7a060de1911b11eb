package answer

import (
	"context"
	"log/slog"

	"github.com/asfc/doc-chat/internal/core/retrieval"
)

// ユーザーへ返す固定メッセージ。内部エラーの詳細は決して露出させない。
const (
	// MsgAPIKeyMissing はLLM認証情報が未設定の場合の固定メッセージ
	MsgAPIKeyMissing = "Error: OPENROUTER_API_KEY not set in .env"

	// MsgRateLimited はLLM呼び出しが最終的に失敗した場合の固定メッセージ
	MsgRateLimited = "I'm currently unable to process your question due to rate limiting. Please wait 30 seconds and try again. The system is automatically managing request timing to avoid errors."
)

// Service は質問応答のビジネスロジックを提供する。
// Answer は呼び出し元に対して常に文字列を返すことを保証する唯一の境界である。
type Service struct {
	retriever  *retrieval.Retriever
	llm        LLMClient
	credential string
	topK       int
	logger     *slog.Logger
}

// Option は Service のオプション設定
type Option func(*Service)

// WithTopK は検索で取得するチャンク数を設定する
func WithTopK(topK int) Option {
	return func(s *Service) {
		s.topK = topK
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する。
// credential が空の場合、Answer はネットワークを呼ばずに設定エラーを返す。
func NewService(retriever *retrieval.Retriever, llm LLMClient, credential string, opts ...Option) *Service {
	svc := &Service{
		retriever:  retriever,
		llm:        llm,
		credential: credential,
		topK:       retrieval.DefaultTopK,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Answer は質問に対してRAGベースで回答を生成する。
// 内部の失敗は固定の劣化メッセージへ変換され、エラーやpanicとして
// 呼び出し元へ漏れることはない。
func (s *Service) Answer(ctx context.Context, question string) string {
	if s.credential == "" {
		s.logger.Error("LLM credential is not configured")
		return MsgAPIKeyMissing
	}

	s.logger.Info("processing question", "question", headOf(question, 80))

	result := s.retriever.Retrieve(ctx, question, s.topK)

	messages := BuildMessages(question, result)

	s.logger.Info("dispatching to LLM gateway",
		"contextChunks", len(result.Chunks),
		"fullDocument", result.FullDocument(),
	)

	raw, err := s.llm.Complete(ctx, messages)
	if err != nil {
		s.logger.Error("LLM completion failed", "error", err)
		return MsgRateLimited
	}

	s.logger.Info("answer generated", "answerLength", len(raw))

	return CleanResponse(raw)
}

// headOf はログ出力用に文字列の先頭n文字を返す
func headOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
