package security

import "github.com/microcosm-cc/bluemonday"

// ReplySanitizer はTelegramへHTMLモードで返信する際に、
// ユーザー入力や外部フィード由来の文字列からタグを除去しエスケープする。
type ReplySanitizer struct {
	policy *bluemonday.Policy
}

// NewReplySanitizer はタグを一切許可しないポリシーでReplySanitizerを生成する。
func NewReplySanitizer() *ReplySanitizer {
	return &ReplySanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はsからタグを取り除き、HTML特殊文字をエスケープした文字列を返す。
func (s *ReplySanitizer) Sanitize(str string) string {
	return s.policy.Sanitize(str)
}
