// Package command はチャットメッセージをフィードバックの意図（カテゴリと本文）に分類する。
// I/Oを一切行わない純粋な関数群で、入力が欠けていても失敗しない。
package command

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Matcher はコマンドの検出戦略のインターフェース。
// keyに対応するコマンドがtextに含まれる場合、後続の本文（前後の空白を除去）とtrueを返す。
type Matcher interface {
	Match(key, text string) (content string, ok bool)
}

// Grammar はデプロイごとに選択するコマンド文法を表す。
type Grammar string

const (
	// GrammarSlash は先頭固定の "/key" 形式。
	GrammarSlash Grammar = "slash"
	// GrammarHashtag は本文中のどこにあってもよい "#key" 形式。
	GrammarHashtag Grammar = "hashtag"
)

// NewMatcher は文法名に対応するMatcherを返す。
func NewMatcher(g Grammar) (Matcher, error) {
	switch g {
	case GrammarSlash, "":
		return SlashMatcher{}, nil
	case GrammarHashtag:
		return HashtagMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown command grammar: %q", g)
	}
}

// SlashMatcher は "/key" をメッセージ先頭で検出する。
// 大文字小文字を区別し、コマンド直後は文字列終端か空白でなければならない
// （"/ideal" は "idea" にマッチしない）。
type SlashMatcher struct{}

// Match はMatcherを実装する。
func (SlashMatcher) Match(key, text string) (string, bool) {
	token := "/" + key
	if text == token {
		return "", true
	}
	if !strings.HasPrefix(text, token) {
		return "", false
	}

	rest := text[len(token):]
	r, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsSpace(r) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// HashtagMatcher は "#key" を本文中の任意の位置で検出する。
// 部分文字列の包含で判定するため、境界チェックは行わない。
// 本文は最初のハッシュタグを取り除いた残り。
type HashtagMatcher struct{}

// Match はMatcherを実装する。
func (HashtagMatcher) Match(key, text string) (string, bool) {
	tag := "#" + key
	if !strings.Contains(text, tag) {
		return "", false
	}
	return strings.TrimSpace(strings.Replace(text, tag, "", 1)), true
}
