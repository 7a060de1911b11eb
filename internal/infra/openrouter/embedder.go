package openrouter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/asfc/doc-chat/internal/core/ingestion"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルト埋め込みモデル
	DefaultEmbeddingModel = "openai/text-embedding-3-small"

	// EmbeddingDimension は保存スキーマと一致させる固定次元
	EmbeddingDimension = 1536

	// maxEmbeddingBatch は1リクエストあたりの最大テキスト数
	maxEmbeddingBatch = 100
)

// Embedder はOpenRouter経由でテキストをベクトルへ変換する
type Embedder struct {
	client openai.Client
	model  string
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*Embedder)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey, baseURL string, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHeader("HTTP-Referer", refererHeader),
			option.WithHeader("X-Title", titleHeader),
		),
		model: DefaultEmbeddingModel,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// EmbedTexts はテキスト列をベクトル列へ変換する。
// APIの上限に合わせて内部でバッチ分割する。
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}

	return embeddings, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Dimensions: openai.Int(int64(EmbeddingDimension)),
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// インターフェース実装の確認
var _ ingestion.Embedder = (*Embedder)(nil)
