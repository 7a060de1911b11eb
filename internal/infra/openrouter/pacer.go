package openrouter

import (
	"context"
	"sync"
	"time"
)

// DefaultMinInterval は無料ティアのレート制限を避けるための呼び出し最小間隔
const DefaultMinInterval = 5 * time.Second

// Pacer は全てのアウトバウンドAPI呼び出しに最小間隔を強制する。
// ミューテックスを待機中も保持することで、到着順に呼び出しが
// 直列化される。プロセス内の全ゴルーチンで共有する前提。
type Pacer struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
}

// NewPacer は新しい Pacer を作成する。minInterval が0以下の場合は
// デフォルト間隔を使用する。
func NewPacer(minInterval time.Duration) *Pacer {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Pacer{minInterval: minInterval}
}

// Wait は前回の呼び出しから最小間隔が経過するまでブロックする。
// contextがキャンセルされた場合は待機を打ち切りエラーを返す。
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastCall.IsZero() {
		remaining := p.minInterval - time.Since(p.lastCall)
		if remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	p.lastCall = time.Now()
	return nil
}
