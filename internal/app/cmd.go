package app

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はサブコマンドを登録したルートコマンドを返す。
// サブコマンドを省略した場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "feedbackbot",
		Short:         "Chat feedback collector",
		Long:          "Collects ideas, questions and episode comments sent to a Telegram bot and exposes them through a management API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(w)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(serveCmd(w), migrateCmd(w), healthcheckCmd())
	return root
}

func serveCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "Run the webhook and management API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(w)
		},
	}
}

func migrateCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return Migrate(cfg)
		},
	}
}

// healthcheckCmd は設定全体を読み込まずに動作する軽量サブコマンド。
func healthcheckCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the /health endpoint of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Healthcheck(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultHealthcheckAddr(), "base URL of the server to probe")
	return cmd
}

func defaultHealthcheckAddr() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port
}

func runServe(w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return Serve(cfg)
}

// Run はコマンドライン引数を解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(ctx context.Context, w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
