package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IngestAction はPDF取り込みコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("取り込むPDFファイルを1つ以上指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile, cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.requireDatabase(); err != nil {
		return err
	}

	for _, path := range paths {
		doc, err := appCtx.Container.IngestionService.IngestPDF(ctx, path)
		if err != nil {
			return fmt.Errorf("%s の取り込みに失敗: %w", path, err)
		}
		fmt.Printf("取り込み完了: %s (%dページ, %dチャンク)\n", doc.Filename, doc.PageCount, doc.ChunkCount)
	}

	return nil
}

// BackfillAction は埋め込み未計算チャンクへのベクトル補完コマンドのアクション
func BackfillAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile, cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.requireDatabase(); err != nil {
		return err
	}

	n, err := appCtx.Container.IngestionService.BackfillEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("埋め込みの補完に失敗: %w", err)
	}

	fmt.Printf("埋め込みを補完しました: %d件\n", n)
	return nil
}
