// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン試行の結果ラベル。
const (
	LoginSucceeded = "success"
	LoginFailed    = "failure"
)

// 外部IdPアカウント解決の結果ラベル。
const (
	ResolutionExisting     = "existing"
	ResolutionLinked       = "linked"
	ResolutionCreated      = "created"
	ResolutionConflict     = "conflict"
	ResolutionInvalidClaim = "invalid_claim"
	ResolutionRejected     = "rejected"
	ResolutionError        = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginAttempt(result string)
	RecordRegistration()
	RecordResolution(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordVerifyLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
// nilレシーバーでも安全に呼び出せる。
type Collector struct {
	loginAttempts *prometheus.CounterVec
	registrations prometheus.Counter
	resolutions   *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	verifyLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joysparks_login_attempts_total",
			Help: "結果別のパスワードログイン試行数",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joysparks_registrations_total",
			Help: "パスワードによるアカウント登録数",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joysparks_identity_resolutions_total",
			Help: "結果別の外部IdPアカウント解決数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joysparks_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "joysparks_password_verify_seconds",
			Help:    "パスワード検証の所要時間（秒）",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.registrations,
		c.resolutions,
		c.httpStatus,
		c.verifyLatency,
	)

	return c
}

// RecordLoginAttempt はログイン試行を記録する。
func (c *Collector) RecordLoginAttempt(result string) {
	if c == nil {
		return
	}
	c.loginAttempts.WithLabelValues(result).Inc()
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration() {
	if c == nil {
		return
	}
	c.registrations.Inc()
}

// RecordResolution は外部IdPアカウント解決の結果を記録する。
func (c *Collector) RecordResolution(outcome string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	if c == nil {
		return
	}
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordVerifyLatency はパスワード検証の所要時間を記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	if c == nil {
		return
	}
	c.verifyLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
