package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// ドキュメントの処理ステータス
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// メタデータの予約キー。アップロード経路やLLM由来の付加情報を
// 名前空間付きで保持する。
const (
	MetaStoragePath = "storage_path"
	MetaPublicURL   = "public_url"
	MetaLLMPrefix   = "llm_"
)

// Document は取り込んだPDF1件のレコードを表す
type Document struct {
	ID         uuid.UUID
	Filename   string
	Status     string
	PageCount  int
	ChunkCount int
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chunk は分割済みテキスト断片の永続化単位。
// Embedding は未計算の場合 nil となる。
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Source     string
	Page       int
	ChunkIndex int
	Text       string
	Tokens     int
	Embedding  []float32
}

// Page はPDFから抽出した1ページ分のテキスト
type Page struct {
	Number int
	Text   string
}

// MergeMetadata は既存メタデータへ更新分をマージした新しいマップを返す。
// キーが衝突した場合は更新側が勝つ。引数は変更しない。
func MergeMetadata(existing, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
