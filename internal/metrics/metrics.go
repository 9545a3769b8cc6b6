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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordMessageSent()
	RecordMessageEdited()
	RecordMessageDeleted()
	RecordHTTPStatus(statusCode int)
	RecordStationLookup(success bool)
	RecordStationLookupLatency(duration time.Duration)
	RecordRatingSubmitted()
	WebsocketOpened()
	WebsocketClosed()
	SetOnlineUsers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messagesSent    prometheus.Counter
	messagesEdited  prometheus.Counter
	messagesDeleted prometheus.Counter
	httpStatus      *prometheus.CounterVec
	stationLookups  *prometheus.CounterVec
	stationLatency  prometheus.Histogram
	ratings         prometheus.Counter
	wsConnections   prometheus.Gauge
	onlineUsers     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltmap_messages_sent_total",
			Help: "送信されたチャットメッセージの合計数",
		}),
		messagesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltmap_messages_edited_total",
			Help: "編集されたチャットメッセージの合計数",
		}),
		messagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltmap_messages_deleted_total",
			Help: "削除されたチャットメッセージの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltmap_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		stationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltmap_station_lookups_total",
			Help: "充電ステーション検索の合計数（結果別）",
		}, []string{"result"}),
		stationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltmap_station_lookup_latency_seconds",
			Help:    "充電ステーション検索のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		ratings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltmap_ratings_submitted_total",
			Help: "登録されたアクセサリー評価の合計数",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voltmap_websocket_connections",
			Help: "現在のWebSocket接続数",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voltmap_online_users",
			Help: "現在のオンラインユーザー数",
		}),
	}

	reg.MustRegister(
		c.messagesSent,
		c.messagesEdited,
		c.messagesDeleted,
		c.httpStatus,
		c.stationLookups,
		c.stationLatency,
		c.ratings,
		c.wsConnections,
		c.onlineUsers,
	)

	return c
}

// RecordMessageSent はメッセージ送信を記録する。
func (c *Collector) RecordMessageSent() {
	c.messagesSent.Inc()
}

// RecordMessageEdited はメッセージ編集を記録する。
func (c *Collector) RecordMessageEdited() {
	c.messagesEdited.Inc()
}

// RecordMessageDeleted はメッセージ削除を記録する。
func (c *Collector) RecordMessageDeleted() {
	c.messagesDeleted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordStationLookup はステーション検索の結果を記録する。
func (c *Collector) RecordStationLookup(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.stationLookups.WithLabelValues(result).Inc()
}

// RecordStationLookupLatency はステーション検索のレイテンシを記録する。
func (c *Collector) RecordStationLookupLatency(duration time.Duration) {
	c.stationLatency.Observe(duration.Seconds())
}

// RecordRatingSubmitted はアクセサリー評価の登録を記録する。
func (c *Collector) RecordRatingSubmitted() {
	c.ratings.Inc()
}

// WebsocketOpened はWebSocket接続の確立を記録する。
func (c *Collector) WebsocketOpened() {
	c.wsConnections.Inc()
}

// WebsocketClosed はWebSocket接続の切断を記録する。
func (c *Collector) WebsocketClosed() {
	c.wsConnections.Dec()
}

// SetOnlineUsers は現在のオンラインユーザー数を設定する。
func (c *Collector) SetOnlineUsers(count int) {
	c.onlineUsers.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
