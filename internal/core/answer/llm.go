package answer

import "context"

// メッセージロール
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message はチャット補完APIへ送る1メッセージを表す
type Message struct {
	Role    string
	Content string
}

// LLMClient はLLMプロバイダとの通信インターフェース。
// 失敗はエラー値として返り、リトライ・ペーシングは実装側が持つ。
type LLMClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
