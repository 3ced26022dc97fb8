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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordItemCreated()
	RecordCommentCreated()
	RecordTagCreated()
	RecordPreviewSuccess()
	RecordPreviewFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsSwept(count int64)
	RecordItemsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	itemsCreated    prometheus.Counter
	commentsCreated prometheus.Counter
	tagsCreated     prometheus.Counter
	previewSuccess  prometheus.Counter
	previewFail     prometheus.Counter
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	sessionsSwept   prometheus.Counter
	itemsPurged     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		itemsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_items_created_total",
			Help: "作成されたアイテムの合計数",
		}),
		commentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_comments_created_total",
			Help: "作成されたコメントの合計数",
		}),
		tagsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_tags_created_total",
			Help: "作成されたタグの合計数",
		}),
		previewSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_preview_success_total",
			Help: "リンクプレビュー取得成功の合計数",
		}),
		previewFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_preview_fail_total",
			Help: "リンクプレビュー取得失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedge_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hedge_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_guest_sessions_swept_total",
			Help: "TTLスイープで削除されたゲストセッションの合計数",
		}),
		itemsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_items_purged_total",
			Help: "物理削除されたアイテムの合計数",
		}),
	}

	reg.MustRegister(
		c.itemsCreated,
		c.commentsCreated,
		c.tagsCreated,
		c.previewSuccess,
		c.previewFail,
		c.httpStatus,
		c.requestLatency,
		c.sessionsSwept,
		c.itemsPurged,
	)

	return c
}

// RecordItemCreated はアイテム作成を記録する。
func (c *Collector) RecordItemCreated() {
	c.itemsCreated.Inc()
}

// RecordCommentCreated はコメント作成を記録する。
func (c *Collector) RecordCommentCreated() {
	c.commentsCreated.Inc()
}

// RecordTagCreated はタグ作成を記録する。
func (c *Collector) RecordTagCreated() {
	c.tagsCreated.Inc()
}

// RecordPreviewSuccess はリンクプレビュー取得成功を記録する。
func (c *Collector) RecordPreviewSuccess() {
	c.previewSuccess.Inc()
}

// RecordPreviewFailure はリンクプレビュー取得失敗を記録する。
func (c *Collector) RecordPreviewFailure(reason string) {
	c.previewFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsSwept はTTLスイープで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// RecordItemsPurged は物理削除されたアイテム数を記録する。
func (c *Collector) RecordItemsPurged(count int64) {
	c.itemsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
