package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feedbackbot/internal/middleware"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// UpdateProcessor はWebhookの更新を処理する。ingest.Orchestratorをアダプタ経由で満たす。
type UpdateProcessor interface {
	Process(ctx context.Context, update *model.Update) (*webhookResponse, error)
}

// webhookResponse はWebhook処理結果のcontent。
type webhookResponse struct {
	Stored   []int64 `json:"stored"`
	Prompted int     `json:"prompted"`
	Failed   int     `json:"failed"`
	Help     bool    `json:"help"`
}

// WebhookHandler はチャットプラットフォームからの更新を受け付ける。
type WebhookHandler struct {
	processor UpdateProcessor
	logger    *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(processor UpdateProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// Receive は更新を1件処理する。messageを含まない更新は何もせず200を返す。
// POST /hook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var update model.Update
	if apiErr := decodeJSON(w, r, &update); apiErr != nil {
		h.logger.Warn("malformed webhook payload", slog.String("error", apiErr.Message))
		middleware.WriteError(w, apiErr)
		return
	}

	resp, err := h.processor.Process(r.Context(), &update)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
