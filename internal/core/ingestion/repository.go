package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// DocumentRepository はドキュメントレコードの永続化インターフェース
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByFilename(ctx context.Context, filename string) (*Document, error)
	List(ctx context.Context) ([]*Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChunkStore はチャンクの書き込み側インターフェース。
// 検索側は retrieval.Repository が担う。
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []*Chunk) error
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error
	// ListMissingEmbeddings は埋め込み未計算のチャンクを最大 limit 件返す
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*Chunk, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
}

// TxRunner は複数リポジトリ操作を単一トランザクション内で実行する。
// fn へはトランザクション境界に束縛されたリポジトリが渡され、
// fn がエラーを返した場合は全操作がロールバックされる。
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(docs DocumentRepository, chunks ChunkStore) error) error
}

// ChunkMirror は取り込んだチャンクのローカル控えを書き出す。
// データベース障害時の読み取りフォールバックに使われる。
type ChunkMirror interface {
	WriteDocument(source string, chunks []*Chunk) error
}

// PageExtractor はPDFファイルからページ単位のテキストを抽出する
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]Page, error)
}

// Embedder はテキスト列をベクトル列へ変換する
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
