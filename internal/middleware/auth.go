package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// NewBearerAuthMiddleware は Authorization: Bearer <token> を固定トークンと比較する。
// 比較は定数時間で行う。不一致・欠落は401。
func NewBearerAuthMiddleware(token string) func(next http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given, ok := bearerToken(r)
			if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(given), expected) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="feedbackbot"`)
				WriteError(w, &model.APIError{
					Code:    model.ErrCodeUnauthorized,
					Message: "missing or invalid bearer token",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
