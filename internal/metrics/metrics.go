// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン結果のラベル値。失敗時は認証失敗の種別を使用する。
const SignInSuccess = "success"

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(outcome string)
	RecordAccountAction(action string)
	RecordListingAction(action string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRevocationsPurged(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn            *prometheus.CounterVec
	accountActions    *prometheus.CounterVec
	listingActions    *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	revocationsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentals_sign_in_total",
			Help: "結果別のサインイン試行数",
		}, []string{"outcome"}),
		accountActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentals_account_actions_total",
			Help: "成功したアカウント操作の数",
		}, []string{"action"}),
		listingActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentals_listing_actions_total",
			Help: "成功した物件操作の数",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentals_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentals_request_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		revocationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentals_revocations_purged_total",
			Help: "削除された期限切れ失効記録の合計数",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.accountActions,
		c.listingActions,
		c.httpStatus,
		c.requestLatency,
		c.revocationsPurged,
	)

	return c
}

// RecordSignIn はサインインの結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIn.WithLabelValues(outcome).Inc()
}

// RecordAccountAction はアカウント操作の成功を記録する。
func (c *Collector) RecordAccountAction(action string) {
	c.accountActions.WithLabelValues(action).Inc()
}

// RecordListingAction は物件操作の成功を記録する。
func (c *Collector) RecordListingAction(action string) {
	c.listingActions.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRevocationsPurged は削除した失効記録数を記録する。
func (c *Collector) RecordRevocationsPurged(count int) {
	c.revocationsPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordSignIn(string)                {}
func (Nop) RecordAccountAction(string)         {}
func (Nop) RecordListingAction(string)         {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordRevocationsPurged(int)        {}

// OrNop はcがnilの場合にNopを返す。
func OrNop(c MetricsCollector) MetricsCollector {
	if c == nil {
		return Nop{}
	}
	return c
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func Middleware(c MetricsCollector) func(http.Handler) http.Handler {
	c = OrNop(c)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			c.RecordHTTPStatus(sw.status)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
