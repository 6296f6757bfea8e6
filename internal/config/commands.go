package config

import (
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default_commands.yaml
var defaultCommandsYAML []byte

// Commands はボットが認識するコマンド名と返信テンプレートを保持する。
type Commands struct {
	Keys    CommandKeys    `yaml:"keys"`
	Replies ReplyTemplates `yaml:"replies"`
}

// CommandKeys はカテゴリごとのコマンド名（"/" や "#" を除いた部分）。
type CommandKeys struct {
	Idea     string `yaml:"idea"`
	Question string `yaml:"question"`
	Comment  string `yaml:"comment"`
	Help     string `yaml:"help"`
}

// ReplyTemplates はtext/template形式の返信文。
type ReplyTemplates struct {
	Help           string `yaml:"help"`
	Idea           string `yaml:"idea"`
	Question       string `yaml:"question"`
	Comment        string `yaml:"comment"`
	CommentEpisode string `yaml:"comment_episode"`
	Empty          string `yaml:"empty"`
}

// DefaultCommands は組み込みのスペイン語のコマンド定義を返す。
func DefaultCommands() (*Commands, error) {
	cmds := &Commands{}
	if err := yaml.Unmarshal(defaultCommandsYAML, cmds); err != nil {
		return nil, fmt.Errorf("failed to parse default commands: %w", err)
	}
	return cmds, nil
}

// LoadCommands は組み込みの定義にpathのYAMLを重ねて読み込む。
// pathが空の場合は組み込みの定義をそのまま返す。
func LoadCommands(path string) (*Commands, error) {
	cmds, err := DefaultCommands()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read commands file: %w", err)
		}
		if err := yaml.Unmarshal(data, cmds); err != nil {
			return nil, fmt.Errorf("failed to parse commands file %s: %w", path, err)
		}
	}

	if err := cmds.Validate(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Validate はコマンド名が空でないこと、各テンプレートが解析できることを検証する。
func (c *Commands) Validate() error {
	keys := map[string]string{
		"idea":     c.Keys.Idea,
		"question": c.Keys.Question,
		"comment":  c.Keys.Comment,
		"help":     c.Keys.Help,
	}
	for name, key := range keys {
		if key == "" {
			return fmt.Errorf("command key %q must not be empty", name)
		}
	}

	for name, text := range c.Replies.all() {
		if _, err := template.New(name).Parse(text); err != nil {
			return fmt.Errorf("invalid reply template %q: %w", name, err)
		}
	}
	return nil
}

// all はテンプレート名と本文の対応を返す。
func (r ReplyTemplates) all() map[string]string {
	return map[string]string{
		"help":            r.Help,
		"idea":            r.Idea,
		"question":        r.Question,
		"comment":         r.Comment,
		"comment_episode": r.CommentEpisode,
		"empty":           r.Empty,
	}
}
