package ingest

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/hitoshi/feedbackbot/internal/config"
)

// Sanitizer はHTMLモードの返信に埋め込む文字列を無害化する。
type Sanitizer interface {
	Sanitize(s string) string
}

// replyData はテンプレートに渡す値。ユーザー由来の項目はサニタイズ済み。
type replyData struct {
	Prefix    string
	Keys      config.CommandKeys
	Command   string
	Name      string
	ID        int64
	Content   string
	Reference string
	Episode   string
}

// Replies は設定のテンプレートを事前に解析して保持する。
type Replies struct {
	prefix    string
	keys      config.CommandKeys
	sanitizer Sanitizer
	templates map[string]*template.Template
}

// テンプレート名
const (
	replyHelp           = "help"
	replyIdea           = "idea"
	replyQuestion       = "question"
	replyComment        = "comment"
	replyCommentEpisode = "comment_episode"
	replyEmpty          = "empty"
)

// NewReplies はテンプレートを解析する。prefixは "/" または "#"。
func NewReplies(cmds *config.Commands, prefix string, sanitizer Sanitizer) (*Replies, error) {
	sources := map[string]string{
		replyHelp:           cmds.Replies.Help,
		replyIdea:           cmds.Replies.Idea,
		replyQuestion:       cmds.Replies.Question,
		replyComment:        cmds.Replies.Comment,
		replyCommentEpisode: cmds.Replies.CommentEpisode,
		replyEmpty:          cmds.Replies.Empty,
	}

	r := &Replies{
		prefix:    prefix,
		keys:      cmds.Keys,
		sanitizer: sanitizer,
		templates: make(map[string]*template.Template, len(sources)),
	}
	for name, src := range sources {
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reply template %q: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func (r *Replies) render(name string, data replyData) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown reply template %q", name)
	}

	data.Prefix = r.prefix
	data.Keys = r.keys
	data.Name = r.sanitizer.Sanitize(data.Name)
	data.Content = r.sanitizer.Sanitize(data.Content)
	data.Reference = r.sanitizer.Sanitize(data.Reference)
	data.Episode = r.sanitizer.Sanitize(data.Episode)

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render reply %q: %w", name, err)
	}
	return b.String(), nil
}
