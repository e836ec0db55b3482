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
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	// RecordAuthEvent は認証イベント（signup/login/refresh/logout）の結果を記録する。
	RecordAuthEvent(event, outcome string)
	// RecordTransition は出欠申請の状態遷移を記録する。
	RecordTransition(phase, outcome string)
	// RecordLedgerRows は作成された出欠記録の件数を記録する。kind は attendance か absent。
	RecordLedgerRows(kind string, count int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	// RecordTokensPurged はクリーンアップで削除したリフレッシュトークン数を記録する。
	RecordTokensPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	ledgerRows     *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	tokensPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_auth_events_total",
			Help: "認証イベントの合計数",
		}, []string{"event", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_workflow_transitions_total",
			Help: "出欠申請の状態遷移の合計数",
		}, []string{"phase", "outcome"}),
		ledgerRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_ledger_rows_total",
			Help: "作成された出欠記録の合計数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_refresh_tokens_purged_total",
			Help: "削除されたリフレッシュトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.transitions,
		c.ledgerRows,
		c.httpStatus,
		c.requestLatency,
		c.tokensPurged,
	)

	return c
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordTransition は状態遷移を記録する。
func (c *Collector) RecordTransition(phase, outcome string) {
	c.transitions.WithLabelValues(phase, outcome).Inc()
}

// RecordLedgerRows は出欠記録の作成件数を記録する。
func (c *Collector) RecordLedgerRows(kind string, count int) {
	c.ledgerRows.WithLabelValues(kind).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTokensPurged は削除したトークン数を記録する。
func (c *Collector) RecordTokensPurged(count int64) {
	c.tokensPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAuthEvent(string, string)     {}
func (Nop) RecordTransition(string, string)    {}
func (Nop) RecordLedgerRows(string, int)       {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordTokensPurged(int64)           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
