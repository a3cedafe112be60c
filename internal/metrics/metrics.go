// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// authとvipの各サービスが要求するレコーダーインターフェースを満たす。
type Collector struct {
	registrations  prometheus.Counter
	logins         *prometheus.CounterVec
	keysIssued     *prometheus.CounterVec
	activations    *prometheus.CounterVec
	usage          *prometheus.CounterVec
	quotaExhausted *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vipgate_registrations_total",
			Help: "ユーザー登録成功の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipgate_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		keysIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipgate_keys_issued_total",
			Help: "等級別のカードキー発行枚数",
		}, []string{"tier"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipgate_activations_total",
			Help: "等級別のカードキー有効化数",
		}, []string{"tier"}),
		usage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipgate_usage_total",
			Help: "種別ごとの利用計測成功数",
		}, []string{"type"}),
		quotaExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipgate_quota_exhausted_total",
			Help: "種別ごとの上限到達による拒否数",
		}, []string{"type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vipgate_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.keysIssued,
		c.activations,
		c.usage,
		c.quotaExhausted,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRegistration はユーザー登録成功を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン試行の結果（success/failure）を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordKeysIssued はカードキー発行枚数を記録する。
func (c *Collector) RecordKeysIssued(tier, count int) {
	c.keysIssued.WithLabelValues(strconv.Itoa(tier)).Add(float64(count))
}

// RecordActivation はカードキー有効化を記録する。
func (c *Collector) RecordActivation(tier int) {
	c.activations.WithLabelValues(strconv.Itoa(tier)).Inc()
}

// RecordUsage は利用計測の成功を記録する。
func (c *Collector) RecordUsage(usageType string) {
	c.usage.WithLabelValues(usageType).Inc()
}

// RecordQuotaExhausted は上限到達による拒否を記録する。
func (c *Collector) RecordQuotaExhausted(usageType string) {
	c.quotaExhausted.WithLabelValues(usageType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
