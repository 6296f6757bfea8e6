package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feedbackbot/internal/middleware"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// handleServiceError はサービス層のエラーをEnvelopeに変換して書き込む。
// ストア起因のエラーは原因をログに記録し、レスポンスには含めない。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if middleware.HTTPStatusFor(apiErr.Code) >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
		}
		middleware.WriteError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	logger.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
