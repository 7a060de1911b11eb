package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/asfc/doc-chat/internal/app/server"
)

// ServeAction はHTTPサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	addr := cmd.String("addr")
	if addr == "" {
		addr = appCtx.Config.ListenAddr
	}

	opts := []server.Option{
		server.WithLogger(appCtx.Logger),
		server.WithDegraded(appCtx.Container.Degraded()),
	}
	if appCtx.Container.HistoryService != nil {
		opts = append(opts, server.WithHistory(appCtx.Container.HistoryService))
	}

	srv := server.New(appCtx.Container.AnswerService, opts...)
	return srv.Run(ctx, addr)
}
