package openrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/asfc/doc-chat/internal/core/answer"
)

const (
	// DefaultTimeout はAPI呼び出し1回あたりのタイムアウト
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries は呼び出しの最大試行回数
	DefaultMaxRetries = 3

	// DefaultRateLimitWait は429受信時のデフォルト待機時間。
	// Retry-After ヘッダがあればそちらを優先する。
	DefaultRateLimitWait = 2 * time.Second

	// BaseBackoff はその他の一時エラーに対するExponential Backoffの基底時間
	BaseBackoff = 1 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second

	// DefaultTemperature はチャット補完のデフォルト温度
	DefaultTemperature = 0.7

	// DefaultMaxTokens は1回の補完で生成する最大トークン数
	DefaultMaxTokens = 4000
)

// OpenRouterのアトリビューション用ヘッダ値
const (
	refererHeader = "https://github.com/asfc/doc-chat"
	titleHeader   = "ASFC Documentation Chat"
)

var (
	// ErrTerminal はリトライしても回復しないエラー（認証失敗、モデル不在、不正応答）
	ErrTerminal = errors.New("terminal LLM error")

	// ErrMaxRetriesExceeded は最大試行回数を使い切った場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Gateway はOpenRouter経由でチャット補完を行う answer.LLMClient 実装。
// 全ての呼び出しは共有 Pacer を通過し、失敗種別に応じたリトライ戦略を持つ。
type Gateway struct {
	client        openai.Client
	model         string
	temperature   float64
	maxTokens     int64
	pacer         *Pacer
	maxRetries    int
	rateLimitWait time.Duration
	backoffBase   time.Duration
	timeout       time.Duration
	logger        *slog.Logger
}

// GatewayOption は Gateway のオプション設定
type GatewayOption func(*Gateway)

// WithMaxRetries は最大試行回数を上書きする
func WithMaxRetries(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

// WithTemperature はチャット補完の温度を上書きする
func WithTemperature(t float64) GatewayOption {
	return func(g *Gateway) {
		g.temperature = t
	}
}

// WithMaxTokens は1回の補完で生成する最大トークン数を上書きする
func WithMaxTokens(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = int64(n)
		}
	}
}

// WithRateLimitWait は429受信時の待機時間を上書きする
func WithRateLimitWait(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.rateLimitWait = d
	}
}

// WithBackoffBase はExponential Backoffの基底時間を上書きする
func WithBackoffBase(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.backoffBase = d
	}
}

// WithTimeout はAPI呼び出し1回あたりのタイムアウトを上書きする
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithGatewayLogger は Gateway にロガーを設定する
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway は新しい Gateway を作成する。
// SDK側の自動リトライは無効化し、リトライ方針はこの型が一元管理する。
func NewGateway(apiKey, baseURL, model string, pacer *Pacer, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
			option.WithHeader("HTTP-Referer", refererHeader),
			option.WithHeader("X-Title", titleHeader),
		),
		model:         model,
		temperature:   DefaultTemperature,
		maxTokens:     DefaultMaxTokens,
		pacer:         pacer,
		maxRetries:    DefaultMaxRetries,
		rateLimitWait: DefaultRateLimitWait,
		backoffBase:   BaseBackoff,
		timeout:       DefaultTimeout,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Complete はチャット補完を実行する。429は待機して再試行、認証失敗や
// モデル不在は即座に打ち切り、その他はExponential Backoffで再試行する。
func (g *Gateway) Complete(ctx context.Context, messages []answer.Message) (string, error) {
	var lastErr error

	for attempt := 0; attempt < g.maxRetries; attempt++ {
		// ペーシングは試行ごとに必ず通す
		if err := g.pacer.Wait(ctx); err != nil {
			return "", err
		}

		content, err := g.call(ctx, messages)
		if err == nil {
			return content, nil
		}
		if errors.Is(err, ErrTerminal) {
			return "", err
		}

		lastErr = err
		if attempt == g.maxRetries-1 {
			break
		}

		wait := g.retryDelay(err, attempt)
		g.logger.Warn("LLM call failed, retrying",
			"attempt", attempt+1,
			"maxRetries", g.maxRetries,
			"wait", wait,
			"error", err,
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// call は1回のAPI呼び出しを行い、回復不能なエラーを ErrTerminal に分類する
func (g *Gateway) call(ctx context.Context, messages []answer.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(g.model),
		Messages:    toParamMessages(messages),
		Temperature: openai.Float(g.temperature),
		MaxTokens:   openai.Int(g.maxTokens),
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case 401:
				return "", fmt.Errorf("%w: authentication failed: %v", ErrTerminal, err)
			case 404:
				return "", fmt.Errorf("%w: model %s not found: %v", ErrTerminal, g.model, err)
			}
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	// 200でも応答が空なら成功扱いしない
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion response", ErrTerminal)
	}

	return completion.Choices[0].Message.Content, nil
}

// retryDelay は失敗種別に応じた待機時間を返す
func (g *Gateway) retryDelay(err error, attempt int) time.Duration {
	if isRateLimitError(err) {
		if d, ok := retryAfterHint(err); ok {
			return d
		}
		return g.rateLimitWait
	}

	backoff := time.Duration(1<<uint(attempt)) * g.backoffBase
	if backoff > MaxBackoff {
		backoff = MaxBackoff
	}
	return backoff
}

func toParamMessages(messages []answer.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case answer.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}

// isRateLimitError はエラーがレート制限エラーかどうかを判定する
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// retryAfterHint はサーバが指示した待機秒数を返す
func retryAfterHint(err error) (time.Duration, bool) {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0, false
	}

	header := apiErr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}

	seconds, convErr := strconv.Atoi(header)
	if convErr != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// インターフェース実装の確認
var _ answer.LLMClient = (*Gateway)(nil)
