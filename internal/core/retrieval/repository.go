package retrieval

import (
	"context"

	"github.com/google/uuid"
)

// Repository はチャンク永続化層への読み取りインターフェース。
// 本番ではPostgreSQL、フォールバックとしてJSONLファイルストアが実装する。
type Repository interface {
	// SearchByText はフリーテキストに緩く一致するチャンクをlimit件まで返す
	SearchByText(ctx context.Context, query string, limit int) ([]*Chunk, error)

	// GetBySource は指定ソースの全チャンクを返す。
	// 完全一致 → 大文字小文字無視の前方一致 → ".pdf"付き前方一致の順で解決する。
	GetBySource(ctx context.Context, source string) ([]*Chunk, error)

	// GetByDocumentID は文書IDに属する全チャンクを返す
	GetByDocumentID(ctx context.Context, id uuid.UUID) ([]*Chunk, error)

	// ListAll は保存済みの全チャンクを返す（デグレード時の全走査用）
	ListAll(ctx context.Context) ([]*Chunk, error)
}
