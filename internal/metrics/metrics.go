// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 外部サービス呼び出しの種類。
const (
	OracleKindText    = "text"
	OracleKindVision  = "vision"
	OracleKindWeight  = "weight"
	OracleKindBarcode = "barcode"
)

// 外部サービス呼び出しの結果。
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
	OutcomeNotFound  = "not_found"
)

// Recorder はメトリクス収集のインターフェース。
// 推定処理や食品サービスから利用する。
type Recorder interface {
	RecordOracleCall(kind, outcome string, duration time.Duration)
	RecordEntryAdded(strategy string)
	RecordEntryDeleted()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	entriesAdded  *prometheus.CounterVec
	entriesDelete prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrilog_oracle_calls_total",
			Help: "外部栄養推定サービスの呼び出し数（種類・結果別）",
		}, []string{"kind", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nutrilog_oracle_latency_seconds",
			Help:    "外部栄養推定サービスのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"kind"}),
		entriesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrilog_entries_added_total",
			Help: "追加された食品記録数（推定方法別）",
		}, []string{"strategy"}),
		entriesDelete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrilog_entries_deleted_total",
			Help: "削除リクエストされた食品記録数",
		}),
	}

	reg.MustRegister(
		c.oracleCalls,
		c.oracleLatency,
		c.entriesAdded,
		c.entriesDelete,
	)

	return c
}

// RecordOracleCall は外部サービス呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordOracleCall(kind, outcome string, duration time.Duration) {
	c.oracleCalls.WithLabelValues(kind, outcome).Inc()
	c.oracleLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEntryAdded は食品記録の追加を記録する。
func (c *Collector) RecordEntryAdded(strategy string) {
	c.entriesAdded.WithLabelValues(strategy).Inc()
}

// RecordEntryDeleted は食品記録の削除を記録する。
func (c *Collector) RecordEntryDeleted() {
	c.entriesDelete.Inc()
}

// Nop は何も記録しないRecorder。MCPサーバーやテストで使用する。
type Nop struct{}

func (Nop) RecordOracleCall(string, string, time.Duration) {}
func (Nop) RecordEntryAdded(string)                        {}
func (Nop) RecordEntryDeleted()                            {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
