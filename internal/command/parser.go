package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// referencePattern は本文先頭の「数字の並び＋空白」を参照番号として取り出す。
// 列幅を超える長さの数字列は参照番号とみなさず本文の一部として扱う。
var referencePattern = regexp.MustCompile(fmt.Sprintf(`^(\d{1,%d})\s+`, model.MaxReferenceLength))

// Comment はコメントコマンドの解析結果。
// Referenceは参照番号が無い場合は空文字列。
type Comment struct {
	Reference string
	Content   string
}

// Parser は選択されたMatcherでメッセージを解析する。
type Parser struct {
	matcher Matcher
}

// NewParser はParserを生成する。
func NewParser(m Matcher) *Parser {
	return &Parser{matcher: m}
}

// MatchCommand はメッセージがkeyのコマンドであれば、その本文とtrueを返す。
// コマンドのみで本文が無い場合は空文字列とtrueを返す。
func (p *Parser) MatchCommand(key string, msg *model.Message) (string, bool) {
	text, ok := msg.GetText()
	if !ok {
		return "", false
	}
	return p.matcher.Match(key, text)
}

// MatchComment はコメントコマンドを解析する。
// コマンド直後に「数字＋空白」があればそれを参照番号とし、残りを本文とする。
// 数字が無い場合は参照番号なしで残り全体を本文とする。
func (p *Parser) MatchComment(key string, msg *model.Message) (Comment, bool) {
	content, ok := p.MatchCommand(key, msg)
	if !ok {
		return Comment{}, false
	}
	if content == "" {
		return Comment{}, true
	}

	loc := referencePattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return Comment{Content: content}, true
	}

	return Comment{
		Reference: content[loc[2]:loc[3]],
		Content:   strings.TrimSpace(content[loc[1]:]),
	}, true
}

// IsCommand はメッセージがkeyのコマンドで始まるかを返す。後続の本文は無視する。
func (p *Parser) IsCommand(key string, msg *model.Message) bool {
	_, ok := p.MatchCommand(key, msg)
	return ok
}

// ExtractIdentity は送信者の表示名（first_name）とハンドル（username）を返す。
// 欠けている項目は空文字列になる。
func ExtractIdentity(msg *model.Message) (displayName, handle string) {
	from, _ := msg.GetFrom()
	displayName, _ = from.GetFirstName()
	handle, _ = from.GetUsername()
	return displayName, handle
}

// ExtractChatID はメッセージのチャットIDを返す。
func ExtractChatID(msg *model.Message) (int64, bool) {
	chat, _ := msg.GetChat()
	return chat.GetID()
}
