package answer

import (
	"regexp"
	"strings"
)

var (
	multiNewlineRe     = regexp.MustCompile(`\n{3,}`)
	spaceBeforePunctRe = regexp.MustCompile(`\s+([,.!?;:])`)
	// 改行はまたがない（段落区切りを保持する）
	punctCapitalRe  = regexp.MustCompile(`([,.!?;:])[ \t]*([A-Z])`)
	periodCapitalRe = regexp.MustCompile(`\.([A-Z])`)
)

// CleanResponse はモデル出力を整形する純粋なテキスト変換。
// 3連続以上の改行を2つへ畳み、行頭行末の空白と前後の空行を除去し、
// 句読点まわりのスペーシングを整える。失敗モードはない。
func CleanResponse(text string) string {
	if text == "" {
		return text
	}

	text = multiNewlineRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	cleaned := strings.Join(lines, "\n")

	// 句読点の直前の空白を除去し、文末句読点と大文字の間に1スペースを保証する
	cleaned = spaceBeforePunctRe.ReplaceAllString(cleaned, "$1")
	cleaned = punctCapitalRe.ReplaceAllString(cleaned, "$1 $2")
	cleaned = periodCapitalRe.ReplaceAllString(cleaned, ". $1")

	return strings.TrimSpace(cleaned)
}
