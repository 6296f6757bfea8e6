package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/feedbackbot/internal/metrics"
	"github.com/hitoshi/feedbackbot/internal/middleware"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	APIToken          string
	WebhookSecret     string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler

	// Webhook
	Updates UpdateProcessor

	// 管理API
	FeedbackService FeedbackServiceInterface

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → Metrics
//
// /hook には Webhook用レート制限 → WebhookSecret → レイテンシ計測を、/api/* には
// SecurityHeaders → CORS → BearerAuth → API用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	statusHandler := NewStatusHandler(deps.DB, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.Updates, deps.Logger)
	feedbackHandler := NewFeedbackHandler(deps.FeedbackService, deps.Logger)

	// --- 認証不要のルート ---
	r.Get("/", statusHandler.Root)
	r.Get("/status", statusHandler.Status)
	r.Get("/health", statusHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.With(
		deps.RateLimiter.WebhookMiddleware(),
		middleware.NewWebhookSecretMiddleware(deps.WebhookSecret),
		middleware.NewLatencyMiddleware(deps.Metrics),
	).Post("/hook", webhookHandler.Receive)

	r.Route("/api/feedback", func(r chi.Router) {
		r.Use(middleware.NewSecurityHeadersMiddleware())
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewBearerAuthMiddleware(deps.APIToken))
		r.Use(deps.RateLimiter.APIMiddleware())

		r.Get("/", feedbackHandler.List)
		r.Post("/", feedbackHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", feedbackHandler.Get)
			r.Put("/", feedbackHandler.Replace)
			r.Delete("/", feedbackHandler.Delete)
			r.Post("/applied", feedbackHandler.MarkApplied)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, &model.APIError{Code: model.ErrCodeNotFound, Message: "route not found"})
	})

	return r
}
