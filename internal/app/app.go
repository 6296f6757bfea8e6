// Package app はプロセスの起動とコンポーネントの組み立てを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/feedbackbot/internal/command"
	"github.com/hitoshi/feedbackbot/internal/config"
	"github.com/hitoshi/feedbackbot/internal/database"
	"github.com/hitoshi/feedbackbot/internal/feedback"
	"github.com/hitoshi/feedbackbot/internal/handler"
	"github.com/hitoshi/feedbackbot/internal/index"
	"github.com/hitoshi/feedbackbot/internal/ingest"
	"github.com/hitoshi/feedbackbot/internal/logger"
	"github.com/hitoshi/feedbackbot/internal/metrics"
	"github.com/hitoshi/feedbackbot/internal/middleware"
	"github.com/hitoshi/feedbackbot/internal/podcast"
	"github.com/hitoshi/feedbackbot/internal/repository"
	"github.com/hitoshi/feedbackbot/internal/security"
	"github.com/hitoshi/feedbackbot/internal/telegram"
)

// shutdownTimeout はグレースフルシャットダウンの上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// 設定読み込み後にLOG_LEVELでログレベルを確定する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Server は組み立て済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type Server struct {
	Handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンドのリソースを停止する。データベース接続は呼び出し側が閉じる。
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// NewServer は設定とデータベース接続から全コンポーネントを組み立てる。
// SQLiteの場合はスキーマを作成する。PostgreSQLのスキーマはmigrateサブコマンドで作成する。
func NewServer(ctx context.Context, cfg *config.Config, db *sql.DB, reg *prometheus.Registry, log *slog.Logger) (*Server, error) {
	// 1. リポジトリの初期化
	repo, err := newFeedbackRepository(ctx, cfg.DatabaseURL, db)
	if err != nil {
		return nil, err
	}
	store := feedback.NewStore(repo)

	// 2. コマンド定義と返信テンプレート
	grammar := command.Grammar(cfg.CommandGrammar)
	matcher, err := command.NewMatcher(grammar)
	if err != nil {
		return nil, err
	}
	cmds, err := config.LoadCommands(cfg.CommandsFile)
	if err != nil {
		return nil, err
	}
	replies, err := ingest.NewReplies(cmds, ingest.PrefixFor(grammar), security.NewReplySanitizer())
	if err != nil {
		return nil, err
	}

	// 3. メトリクス
	collector := metrics.NewCollector(reg)

	// 4. 外部連携クライアント
	outbound := &http.Client{Timeout: cfg.OutboundTimeout}
	deps := ingest.Deps{
		Parser:             command.NewParser(matcher),
		Keys:               cmds.Keys,
		Replies:            replies,
		Store:              store,
		Notifier:           telegram.NewClient(outbound, cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramRate, log),
		Metrics:            collector,
		Logger:             log,
		Source:             cfg.FeedbackSource,
		EmptyContentPolicy: cfg.EmptyContentPolicy,
		OutboundTimeout:    cfg.OutboundTimeout,
	}

	if cfg.IndexEnabled() {
		endpoint := index.Endpoint(cfg.IndexURL, cfg.IndexOrg, cfg.IndexName)
		deps.Indexer = index.NewClient(outbound, cfg.IndexURL, cfg.IndexOrg, cfg.IndexName, cfg.IndexToken, log)
		log.Info("index publishing enabled", slog.String("endpoint", endpoint))
	}

	if cfg.PodcastEnabled() {
		guard := security.NewSSRFGuard()
		if err := guard.ValidateURL(cfg.PodcastFeedURL); err != nil {
			return nil, fmt.Errorf("invalid PODCAST_FEED_URL: %w", err)
		}
		deps.Episodes = podcast.NewResolver(guard.NewSafeClient(cfg.OutboundTimeout), cfg.PodcastFeedURL, cfg.PodcastFeedTTL, log)
		log.Info("episode lookup enabled", slog.Duration("ttl", cfg.PodcastFeedTTL))
	}

	orch := ingest.NewOrchestrator(deps)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitAPI, cfg.RateLimitWebhook),
		log,
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		APIToken:          cfg.APIToken,
		WebhookSecret:     cfg.WebhookSecret,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		Updates:           handler.NewOrchestratorAdapter(orch),
		FeedbackService:   store,
		DB:                db,
	})

	return &Server{Handler: router, rateLimiter: rateLimiter}, nil
}

// newFeedbackRepository はURLの方言に応じたリポジトリを返す。
func newFeedbackRepository(ctx context.Context, databaseURL string, db *sql.DB) (repository.FeedbackRepository, error) {
	dialect, err := database.DialectOf(databaseURL)
	if err != nil {
		return nil, err
	}

	if dialect == database.DialectSQLite {
		if err := database.EnsureSQLiteSchema(ctx, db); err != nil {
			return nil, err
		}
		return repository.NewSQLiteFeedbackRepo(db), nil
	}
	return repository.NewPostgresFeedbackRepo(db), nil
}

// Serve はAPIサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func Serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// 2. コンポーネントの組み立て
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := NewServer(ctx, cfg, db, reg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Webhookは返信の完了を待つため、外部呼び出しの上限より長くする
		WriteTimeout: 15*time.Second + cfg.OutboundTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("grammar", cfg.CommandGrammar),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// Migrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func Migrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// Healthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func Healthcheck(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
