package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/takumi/voltmap/internal/model"
)

// --- モック定義 ---

type mockStationService struct {
	enabled        bool
	searchNearbyFn func(ctx context.Context, latitude, longitude, radius float64, unit model.DistanceUnit) ([]model.ChargingStation, error)
}

func (m *mockStationService) Enabled() bool {
	return m.enabled
}

func (m *mockStationService) SearchNearby(ctx context.Context, latitude, longitude, radius float64, unit model.DistanceUnit) ([]model.ChargingStation, error) {
	if m.searchNearbyFn != nil {
		return m.searchNearbyFn(ctx, latitude, longitude, radius, unit)
	}
	return nil, nil
}

type mockStationMetrics struct {
	successes, failures int
	latencies           []time.Duration
}

func (m *mockStationMetrics) RecordStationLookup(success bool) {
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

func (m *mockStationMetrics) RecordStationLookupLatency(d time.Duration) {
	m.latencies = append(m.latencies, d)
}

var (
	_ StationServiceInterface = (*mockStationService)(nil)
	_ StationMetricsRecorder  = (*mockStationMetrics)(nil)
)

// --- テスト ---

func TestSearchStations_ReturnsStations(t *testing.T) {
	svc := &mockStationService{
		enabled: true,
		searchNearbyFn: func(ctx context.Context, lat, lng, radius float64, unit model.DistanceUnit) ([]model.ChargingStation, error) {
			if lat != 35.68 || lng != 139.76 {
				t.Errorf("coords = (%v, %v), want (35.68, 139.76)", lat, lng)
			}
			if radius != 10 {
				t.Errorf("radius = %v, want 10", radius)
			}
			if unit != model.DistanceKM {
				t.Errorf("unit = %q, want km", unit)
			}
			return []model.ChargingStation{{ID: "123", Name: "Tokyo Station Charger"}}, nil
		},
	}
	m := &mockStationMetrics{}
	h := NewStationHandler(svc, m)

	req := httptest.NewRequest(http.MethodGet, "/api/stations?lat=35.68&lng=139.76&radius=10&unit=km", nil)
	w := httptest.NewRecorder()

	h.SearchStations(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body []model.ChargingStation
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 || body[0].Name != "Tokyo Station Charger" {
		t.Errorf("unexpected stations: %+v", body)
	}

	if m.successes != 1 || m.failures != 0 {
		t.Errorf("metrics = %d success / %d failure, want 1/0", m.successes, m.failures)
	}
	if len(m.latencies) != 1 {
		t.Errorf("latency observations = %d, want 1", len(m.latencies))
	}
}

func TestSearchStations_Disabled_Returns503(t *testing.T) {
	h := NewStationHandler(&mockStationService{enabled: false}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stations?lat=35.68&lng=139.76", nil)
	w := httptest.NewRecorder()

	h.SearchStations(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeStationKeyMissing {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeStationKeyMissing)
	}
}

func TestSearchStations_InvalidCoordinates_Returns400(t *testing.T) {
	h := NewStationHandler(&mockStationService{enabled: true}, nil)

	tests := []struct {
		name  string
		query string
	}{
		{"latが数値ではない", "lat=abc&lng=139.76"},
		{"lngが欠落", "lat=35.68"},
		{"radiusが数値ではない", "lat=35.68&lng=139.76&radius=far"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stations?"+tt.query, nil)
			w := httptest.NewRecorder()

			h.SearchStations(w, req)

			if w.Result().StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestSearchStations_FetchFailure_Returns502AndRecordsFailure(t *testing.T) {
	svc := &mockStationService{
		enabled: true,
		searchNearbyFn: func(ctx context.Context, lat, lng, radius float64, unit model.DistanceUnit) ([]model.ChargingStation, error) {
			return nil, model.NewStationFetchFailedError("upstream timeout")
		},
	}
	m := &mockStationMetrics{}
	h := NewStationHandler(svc, m)

	req := httptest.NewRequest(http.MethodGet, "/api/stations?lat=35.68&lng=139.76", nil)
	w := httptest.NewRecorder()

	h.SearchStations(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}
	if m.failures != 1 {
		t.Errorf("failure metric = %d, want 1", m.failures)
	}
}
