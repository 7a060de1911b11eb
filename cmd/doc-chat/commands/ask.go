package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")

	question := cmd.Args().First()
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile, cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	response := appCtx.Container.AnswerService.Answer(ctx, question)
	fmt.Println(response)

	// 履歴が使える構成であれば保存する（重複質問はスキップされる）
	if appCtx.Container.HistoryService != nil {
		if _, err := appCtx.Container.HistoryService.SaveTurn(ctx, sessionID, question, response); err != nil {
			appCtx.Logger.Warn("会話履歴の保存に失敗しました", "error", err)
		}
	}

	return nil
}
