// Package segment はPDFから抽出したページテキストを検索・LLMコンテキスト用の
// チャンクに分割する。
package segment

import (
	"regexp"
	"strings"
)

const (
	// DefaultTargetSize はチャンクの目標文字数
	DefaultTargetSize = 1000

	// DefaultOverlap は連続するチャンク間で重複させる文字数
	DefaultOverlap = 200
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	pageFooterRe = regexp.MustCompile(`(?i)Page \d+ of \d+`)
	pageRatioRe  = regexp.MustCompile(`\d+\s*/\s*\d+`)

	// 組版用の引用符・ダッシュをASCII相当へ正規化する
	unicodeReplacer = strings.NewReplacer(
		"’", "'",
		"“", `"`,
		"”", `"`,
		"–", "-",
		"—", "--",
	)

	// 文末として優先的に切断する位置（優先度順）
	sentenceEndings = []string{". ", ".\n", "! ", "!\n", "? ", "?\n"}
)

// Segmenter はテキストを文境界を考慮した重複付きチャンクに分割する
type Segmenter struct {
	targetSize int
	overlap    int
}

// Option は Segmenter のオプション設定
type Option func(*Segmenter)

// WithTargetSize はチャンクの目標文字数を上書きする
func WithTargetSize(size int) Option {
	return func(s *Segmenter) {
		s.targetSize = size
	}
}

// WithOverlap はチャンク間の重複文字数を上書きする
func WithOverlap(overlap int) Option {
	return func(s *Segmenter) {
		s.overlap = overlap
	}
}

// NewSegmenter は新しい Segmenter を作成する
func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{
		targetSize: DefaultTargetSize,
		overlap:    DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize は抽出テキストをクリーニングする。
// 空白の連続を単一スペースへ畳み、"Page N of M" や "N/M" 形式の
// ページフッターを除去し、引用符・ダッシュをASCIIへ正規化する。
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = whitespaceRe.ReplaceAllString(text, " ")
	text = pageFooterRe.ReplaceAllString(text, "")
	text = pageRatioRe.ReplaceAllString(text, "")
	text = unicodeReplacer.Replace(text)

	return strings.TrimSpace(text)
}

// Segment は生のページテキストを正規化し、重複付きチャンク列へ分割する。
// 正規化後のテキストが目標サイズ以下であれば単一チャンク（空なら0件）を返す。
// このコンポーネントは失敗しない。
func (s *Segmenter) Segment(raw string) []string {
	text := Normalize(raw)
	if text == "" {
		return nil
	}
	if len(text) <= s.targetSize {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + s.targetSize

		// ウィンドウ末尾から直近の文末を探し、文の途中で切らないようにする。
		// 文末カットがオーバーラップ分を差し引くと前進しない位置に落ちる場合は
		// 生の境界のまま切る（残りのテキストを取りこぼさないため）。
		if end < len(text) {
			window := text[start:end]
			for _, punct := range sentenceEndings {
				if idx := strings.LastIndex(window, punct); idx != -1 {
					if cut := start + idx + len(punct); cut-s.overlap > start {
						end = cut
					}
					break
				}
			}
		}

		sliceEnd := end
		if sliceEnd > len(text) {
			sliceEnd = len(text)
		}
		chunk := strings.TrimSpace(text[start:sliceEnd])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - s.overlap
		if next >= len(text) {
			break
		}
		// ウィンドウが前進しない場合は打ち切る（退行的な入力での無限ループ防止）
		if next <= start {
			break
		}
		start = next
	}

	return chunks
}
