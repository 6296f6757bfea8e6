// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込み処理とミドルウェアから利用する。
type MetricsCollector interface {
	RecordFeedbackStored(category string)
	RecordStoreFailure(op string)
	RecordNotifyFailure()
	RecordIndexFailure()
	RecordHTTPStatus(statusCode int)
	RecordWebhookLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedbackStored *prometheus.CounterVec
	storeFail      *prometheus.CounterVec
	notifyFail     prometheus.Counter
	indexFail      prometheus.Counter
	httpStatus     *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedbackStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackbot_feedback_stored_total",
			Help: "カテゴリ別の保存済みフィードバック数",
		}, []string{"category"}),
		storeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackbot_store_failures_total",
			Help: "操作別のストア失敗数",
		}, []string{"op"}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedbackbot_notify_failures_total",
			Help: "返信送信失敗の合計数",
		}),
		indexFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedbackbot_index_failures_total",
			Help: "インデックス公開失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackbot_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedbackbot_webhook_latency_seconds",
			Help:    "Webhook処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.feedbackStored,
		c.storeFail,
		c.notifyFail,
		c.indexFail,
		c.httpStatus,
		c.webhookLatency,
	)

	return c
}

// RecordFeedbackStored は保存成功を記録する。
func (c *Collector) RecordFeedbackStored(category string) {
	c.feedbackStored.WithLabelValues(category).Inc()
}

// RecordStoreFailure はストア失敗を記録する。
func (c *Collector) RecordStoreFailure(op string) {
	c.storeFail.WithLabelValues(op).Inc()
}

func (c *Collector) RecordNotifyFailure() {
	c.notifyFail.Inc()
}

func (c *Collector) RecordIndexFailure() {
	c.indexFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordWebhookLatency はWebhook1件の処理時間を記録する。
func (c *Collector) RecordWebhookLatency(duration time.Duration) {
	c.webhookLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordFeedbackStored(string)        {}
func (NopCollector) RecordStoreFailure(string)          {}
func (NopCollector) RecordNotifyFailure()               {}
func (NopCollector) RecordIndexFailure()                {}
func (NopCollector) RecordHTTPStatus(int)               {}
func (NopCollector) RecordWebhookLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
