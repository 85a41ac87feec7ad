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
// ミドルウェア、認可ゲート、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(method string, success bool)
	RecordPolicyDecision(rule string, allowed bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordPreviewFetch(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	policyDecisions *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	previewFetch    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_auth_attempts_total",
			Help: "認証試行の合計数（方式別・成否別）",
		}, []string{"method", "result"}),
		policyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_policy_decisions_total",
			Help: "ポリシー判定の合計数（一致ルール別・許否別）",
		}, []string{"rule", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		previewFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_preview_fetch_total",
			Help: "リンクプレビュー取得の合計数（成否別）",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.policyDecisions,
		c.httpStatus,
		c.requestLatency,
		c.previewFetch,
	)

	return c
}

// resultLabel は成否をラベル値に変換する。
func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordAuthAttempt は認証試行を記録する。methodは"password", "token",
// "session", "oauth"のいずれか。
func (c *Collector) RecordAuthAttempt(method string, success bool) {
	c.authAttempts.WithLabelValues(method, resultLabel(success)).Inc()
}

// RecordPolicyDecision はポリシー判定結果を一致ルール別に記録する。
func (c *Collector) RecordPolicyDecision(rule string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	c.policyDecisions.WithLabelValues(rule, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordPreviewFetch はリンクプレビュー取得を記録する。
func (c *Collector) RecordPreviewFetch(success bool) {
	c.previewFetch.WithLabelValues(resultLabel(success)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
