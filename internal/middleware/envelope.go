// Package middleware はHTTPミドルウェアとレスポンスの共通フォーマットを提供する。
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// StatusOK は成功時のEnvelope.Status。
const StatusOK = "Ok"

// Envelope は全APIレスポンスの共通フォーマット。
// Codeが300未満なら成功。失敗時のStatusはエラーコード、Contentは利用者向けメッセージ。
type Envelope struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Content any    `json:"content"`
}

// WriteJSON は成功レスポンスをEnvelopeで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, content any) {
	writeEnvelope(w, Envelope{Code: statusCode, Status: StatusOK, Content: content})
}

// WriteError はAPIErrorをEnvelopeで書き込む。HTTPステータスはエラーコードから決まる。
func WriteError(w http.ResponseWriter, apiErr *model.APIError) {
	writeEnvelope(w, Envelope{
		Code:    HTTPStatusFor(apiErr.Code),
		Status:  apiErr.Code,
		Content: apiErr.Message,
	})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	writeEnvelope(w, Envelope{
		Code:    http.StatusInternalServerError,
		Status:  model.ErrCodeStorage,
		Content: "internal server error",
	})
}

// HTTPStatusFor はエラーコードに対応するHTTPステータスを返す。
func HTTPStatusFor(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeMalformedPayload:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Code)
	json.NewEncoder(w).Encode(env)
}
