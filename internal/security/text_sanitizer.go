package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は商品名などのプレーンテキスト入力からマークアップを除去する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたテキストを返す。
// 除去後の文字列を元の文字に戻してもタグが現れない場合のみエスケープを解除する。
func (s *TextSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	unescaped := html.UnescapeString(cleaned)
	if strings.ContainsAny(unescaped, "<>") {
		return strings.TrimSpace(cleaned)
	}
	return strings.TrimSpace(unescaped)
}
