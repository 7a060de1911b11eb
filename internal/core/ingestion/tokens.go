package ingestion

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName は埋め込みモデル系列と互換のあるBPEエンコーディング
const encodingName = "cl100k_base"

// TokenCounter はチャンク本文のトークン数を数える
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter はBPEエンコーダによる TokenCounter 実装。
// エンコーダの初期化は一度だけ行い、以後は再利用する。
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var _ TokenCounter = (*TiktokenCounter)(nil)

// NewTokenCounter は新しい TiktokenCounter を作成する
func NewTokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %s: %w", encodingName, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count はテキストのトークン数を返す
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
