package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/asfc/doc-chat/internal/core/ingestion"
)

// DocumentListAction はドキュメント一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.requireDatabase(); err != nil {
		return err
	}

	docs, err := appCtx.Container.IngestionService.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("ドキュメントはありません")
		return nil
	}

	renderDocumentsTable(docs)
	return nil
}

// DocumentShowAction はドキュメント詳細を表示するコマンドのアクション
func DocumentShowAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("不正なドキュメントID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.requireDatabase(); err != nil {
		return err
	}

	doc, err := appCtx.Container.IngestionService.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	fmt.Printf("ID:         %s\n", doc.ID)
	fmt.Printf("Filename:   %s\n", doc.Filename)
	fmt.Printf("Status:     %s\n", doc.Status)
	fmt.Printf("Pages:      %d\n", doc.PageCount)
	fmt.Printf("Chunks:     %d\n", doc.ChunkCount)
	fmt.Printf("Created At: %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(doc.Metadata) > 0 {
		fmt.Println("Metadata:")
		for k, v := range doc.Metadata {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}

	return nil
}

// DocumentDeleteAction はドキュメントと配下のチャンクを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("不正なドキュメントID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.requireDatabase(); err != nil {
		return err
	}

	if err := appCtx.Container.IngestionService.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}

	fmt.Printf("削除しました: %s\n", id)
	return nil
}

// DocumentSetMetaAction はドキュメントのメタデータを更新するコマンドのアクション
func DocumentSetMetaAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("不正なドキュメントID: %w", err)
	}

	updates, err := parseMetaPairs(cmd.StringSlice("set"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.requireDatabase(); err != nil {
		return err
	}

	doc, err := appCtx.Container.IngestionService.UpdateDocumentMetadata(ctx, id, updates)
	if err != nil {
		return fmt.Errorf("メタデータの更新に失敗: %w", err)
	}

	fmt.Printf("更新しました: %s (%dキー)\n", doc.Filename, len(doc.Metadata))
	return nil
}

// parseMetaPairs は key=value 形式のフラグ値をマップへ変換する
func parseMetaPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("--set key=value を1つ以上指定してください")
	}

	updates := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("不正なメタデータ指定: %s", pair)
		}
		updates[key] = value
	}
	return updates, nil
}

// renderDocumentsTable はテーブル形式でドキュメント一覧を表示します
func renderDocumentsTable(docs []*ingestion.Document) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Filename", "Status", "Pages", "Chunks", "Created At")

	for _, doc := range docs {
		table.Append(
			doc.ID.String(),
			truncateString(doc.Filename, 40),
			doc.Status,
			fmt.Sprintf("%d", doc.PageCount),
			fmt.Sprintf("%d", doc.ChunkCount),
			doc.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
}

// truncateString は文字列を指定した長さに切り詰めます
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
