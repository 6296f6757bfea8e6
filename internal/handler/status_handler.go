package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedbackbot/internal/middleware"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// statusMessage は稼働確認のcontent。
const statusMessage = "Up and running!"

// healthTimeout はデータベースへのPingの上限時間。
const healthTimeout = 3 * time.Second

// Pinger はデータベース接続の疎通確認。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StatusHandler は稼働確認とヘルスチェックを提供する。
type StatusHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(db Pinger, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{db: db, logger: logger}
}

// Root はプレーンテキストで稼働を知らせる。
// GET /
func (h *StatusHandler) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("feedbackbot: " + statusMessage + "\n"))
}

// Status はEnvelopeで稼働を知らせる。
// GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, statusMessage)
}

// Health はデータベースに到達できるかを返す。
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		middleware.WriteError(w, model.NewUnavailableError("database", err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, "healthy")
}
