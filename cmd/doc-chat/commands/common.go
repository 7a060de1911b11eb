package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asfc/doc-chat/internal/platform/config"
	"github.com/asfc/doc-chat/internal/platform/container"
	"github.com/asfc/doc-chat/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
	Logger    *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、依存関係を初期化して AppContext を作成する
func NewAppContext(ctx context.Context, envFile, logLevel string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(logLevel),
		Format: "json",
	})

	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
		Logger:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// requireDatabase は劣化モードでは使えないコマンドの前提チェック
func (ac *AppContext) requireDatabase() error {
	if ac.Container.Degraded() {
		return fmt.Errorf("このコマンドにはデータベース接続が必要です（DATABASE_URLを確認してください）")
	}
	return nil
}
