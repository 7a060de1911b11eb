package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/asfc/doc-chat/cmd/doc-chat/commands"
)

// commonFlags は全コマンドで共通のフラグ
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "ログレベル (debug/info/warn/error)",
			Value: "info",
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "doc-chat",
		Usage: "技術文書（整備ブリテン等）向け質問応答システム",
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "文書を根拠に質問へ回答",
				ArgsUsage: "<question>",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "session",
						Usage: "会話履歴のセッションID",
						Value: "cli",
					},
				),
				Action: commands.AskAction,
			},
			{
				Name:      "ingest",
				Usage:     "PDFを取り込んで検索可能にする",
				ArgsUsage: "<file.pdf> [file.pdf...]",
				Flags:     commonFlags(),
				Action:    commands.IngestAction,
			},
			{
				Name:   "backfill",
				Usage:  "埋め込み未計算のチャンクへベクトルを補完",
				Flags:  commonFlags(),
				Action: commands.BackfillAction,
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "ドキュメント一覧を表示",
						Flags:  commonFlags(),
						Action: commands.DocumentListAction,
					},
					{
						Name:  "show",
						Usage: "ドキュメント詳細を表示",
						Flags: append(commonFlags(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						),
						Action: commands.DocumentShowAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントと配下のチャンクを削除",
						Flags: append(commonFlags(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						),
						Action: commands.DocumentDeleteAction,
					},
					{
						Name:  "set-meta",
						Usage: "ドキュメントのメタデータを更新",
						Flags: append(commonFlags(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:  "set",
								Usage: "key=value 形式のメタデータ（複数指定可）",
							},
						),
						Action: commands.DocumentSetMetaAction,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "チャットAPIサーバを起動",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "待ち受けアドレス（未指定時は LISTEN_ADDR）",
					},
				),
				Action: commands.ServeAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
