package retrieval

import (
	"regexp"
	"strings"
)

var (
	// "bulletin 113" / "bulletin-113" / "bulletin113" / "bulletin 113.5" を検出する
	bulletinRe = regexp.MustCompile(`bulletin[\s-]?(\d+(?:\.\d+)?)`)

	// 質問中の最初の数字列（キーワードに隣接する数字がない場合のフォールバック）
	digitsRe = regexp.MustCompile(`\d+`)
)

// DetectTargetDocument は質問が特定のブリテン文書を指しているかを判定し、
// ソースファイル名に一致する正規形（例: "Bulletin-113"）を返す。
// 該当しない場合は空文字列を返す。
//
// キーワードの直後に数字がない場合、質問中の最初の数字列を採用する。
// この挙動は複合的な質問（"compare bulletin 113 to the 2019 AD list" など）で
// 誤った番号を拾い得るが、既知の仕様として維持している。
func DetectTargetDocument(question string) string {
	lower := strings.ToLower(question)

	if m := bulletinRe.FindStringSubmatch(lower); m != nil {
		return "Bulletin-" + m[1]
	}

	if strings.Contains(lower, "bulletin") {
		if num := digitsRe.FindString(question); num != "" {
			return "Bulletin-" + num
		}
	}

	return ""
}
