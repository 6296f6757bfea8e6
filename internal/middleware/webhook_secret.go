package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// WebhookSecretHeader はTelegramがsetWebhookのsecret_tokenを載せて送るヘッダー。
const WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// NewWebhookSecretMiddleware はWebhookSecretHeaderの値を固定の秘密値と定数時間で比較する。
// 不一致・欠落、または秘密値が未設定の場合は401。
func NewWebhookSecretMiddleware(secret string) func(next http.Handler) http.Handler {
	expected := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(WebhookSecretHeader)
			if given == "" || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(given), expected) != 1 {
				WriteError(w, &model.APIError{
					Code:    model.ErrCodeUnauthorized,
					Message: "missing or invalid webhook secret",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
