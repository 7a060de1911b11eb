package retrieval

import (
	"github.com/google/uuid"
)

// Chunk はソース文書から抽出したテキスト断片を表す。
// 取り込み時に一度だけ作成され、以降は読み取り専用として扱う。
type Chunk struct {
	ID         uuid.UUID // チャンクID
	DocumentID uuid.UUID // 所属する文書ID
	Source     string    // 元ファイル名由来の文書識別子
	Page       int       // 1始まりのページ番号（0は不明ページ）
	ChunkIndex int       // 文書内での通し番号（ページ順の再構成に使用）
	Text       string    // クリーニング済み本文
	Tokens     int       // tiktokenによるトークン数（統計用）
}

// Result は検索の結果を表す
type Result struct {
	// Chunks は関連度順（全文書モードではページ昇順）のチャンク列
	Chunks []*Chunk

	// TargetDocument は質問が特定文書を指していると判定された場合の
	// 解決済み識別子（例: "Bulletin-113"）。空文字列なら通常のスコア検索。
	TargetDocument string
}

// FullDocument は全文書モードで検索されたかどうかを返す
func (r *Result) FullDocument() bool {
	return r.TargetDocument != ""
}

// scoredChunk はスコア付けの中間表現。同点時は候補の出現順を保つ。
type scoredChunk struct {
	chunk *Chunk
	score int
}
