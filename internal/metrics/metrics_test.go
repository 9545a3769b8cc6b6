package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordMessageSent_IncrementsCounter はメッセージ送信カウンタが増加することを検証する。
func TestRecordMessageSent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessageSent()
	c.RecordMessageSent()

	val := counterValue(t, reg, "voltmap_messages_sent_total")
	if val != 2 {
		t.Errorf("messages_sent_total = %v, want 2", val)
	}
}

// TestRecordMessageEditedAndDeleted_IncrementCounters は編集・削除カウンタが増加することを検証する。
func TestRecordMessageEditedAndDeleted_IncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMessageEdited()
	c.RecordMessageDeleted()
	c.RecordMessageDeleted()

	if val := counterValue(t, reg, "voltmap_messages_edited_total"); val != 1 {
		t.Errorf("messages_edited_total = %v, want 1", val)
	}
	if val := counterValue(t, reg, "voltmap_messages_deleted_total"); val != 2 {
		t.Errorf("messages_deleted_total = %v, want 2", val)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "voltmap_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("voltmap_http_status_total metric not found")
	}
}

// TestRecordStationLookup_LabelsByResult はステーション検索カウンタが結果ラベル付きで増加することを検証する。
func TestRecordStationLookup_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStationLookup(true)
	c.RecordStationLookup(true)
	c.RecordStationLookup(false)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "voltmap_station_lookups_total" {
			found = true
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "success":
					if val != 2 {
						t.Errorf("station_lookups_total{result=success} = %v, want 2", val)
					}
				case "failure":
					if val != 1 {
						t.Errorf("station_lookups_total{result=failure} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("voltmap_station_lookups_total metric not found")
	}
}

// TestRecordStationLookupLatency_ObservesHistogram は検索レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordStationLookupLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStationLookupLatency(100 * time.Millisecond)
	c.RecordStationLookupLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "voltmap_station_lookup_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("voltmap_station_lookup_latency_seconds metric not found")
	}
}

// TestWebsocketGauge_TracksOpenConnections はWebSocket接続数のゲージが増減することを検証する。
func TestWebsocketGauge_TracksOpenConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.WebsocketOpened()
	c.WebsocketOpened()
	c.WebsocketOpened()
	c.WebsocketClosed()

	val := gaugeValue(t, reg, "voltmap_websocket_connections")
	if val != 2 {
		t.Errorf("websocket_connections = %v, want 2", val)
	}
}

// TestSetOnlineUsers_SetsGauge はオンラインユーザー数のゲージが設定されることを検証する。
func TestSetOnlineUsers_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetOnlineUsers(7)
	c.SetOnlineUsers(3)

	val := gaugeValue(t, reg, "voltmap_online_users")
	if val != 3 {
		t.Errorf("online_users = %v, want 3", val)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordMessageSent()
	c.RecordHTTPStatus(200)
	c.RecordStationLookup(true)
	c.RecordStationLookupLatency(500 * time.Millisecond)
	c.RecordRatingSubmitted()

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"voltmap_messages_sent_total",
		"voltmap_http_status_total",
		"voltmap_station_lookups_total",
		"voltmap_station_lookup_latency_seconds",
		"voltmap_ratings_submitted_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}
