package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameLength は食品名として保持する最大文字数（rune数）。
const maxNameLength = 200

// NameSanitizer は外部サービスやフォームから受け取った食品名を平文に整える。
// bluemondayのStrictPolicyですべてのタグを除去し、エンティティを戻してから空白を正規化する。
// 出力はテンプレート側で改めてエスケープされる前提の平文である。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去した食品名を返す。同一入力に対して常に同一出力を返す。
func (s *NameSanitizer) Sanitize(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if r := []rune(cleaned); len(r) > maxNameLength {
		cleaned = string(r[:maxNameLength])
	}
	return cleaned
}
