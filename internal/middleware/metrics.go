package middleware

import (
	"net/http"
	"time"
)

// StatusRecorder はHTTPステータスの記録先。metrics.MetricsCollectorの部分集合。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// LatencyRecorder はWebhook処理時間の記録先。
type LatencyRecorder interface {
	RecordWebhookLatency(duration time.Duration)
}

// NewMetricsMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewMetricsMiddleware(collector StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			collector.RecordHTTPStatus(rec.statusCode)
		})
	}
}

// NewLatencyMiddleware はハンドラーの処理時間を記録するミドルウェアを返す。
func NewLatencyMiddleware(collector LatencyRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			collector.RecordWebhookLatency(time.Since(start))
		})
	}
}
