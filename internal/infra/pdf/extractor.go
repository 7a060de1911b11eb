package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/asfc/doc-chat/internal/core/ingestion"
)

// Extractor はローカルPDFファイルからページ単位でテキストを抽出する
type Extractor struct {
	logger *slog.Logger
}

// Option は Extractor のオプション設定
type Option func(*Extractor)

// WithLogger は Extractor にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor は新しい Extractor を作成する
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPages はPDFの全ページテキストを抽出する。
// 解析できないページはスキップし、ページ番号は1始まりで元のまま保持する。
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]ingestion.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF %s: %w", path, err)
	}

	pageCount := reader.NumPage()
	pages := make([]ingestion.Page, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("skipping unparseable page", "path", path, "page", i, "error", err)
			continue
		}

		pages = append(pages, ingestion.Page{Number: i, Text: text})
	}

	return pages, nil
}

// インターフェース実装の確認
var _ ingestion.PageExtractor = (*Extractor)(nil)
