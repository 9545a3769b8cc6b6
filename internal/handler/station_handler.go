package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/takumi/voltmap/internal/model"
)

// StationServiceInterface は充電ステーションハンドラーが必要とするサービスインターフェース。
type StationServiceInterface interface {
	Enabled() bool
	SearchNearby(ctx context.Context, latitude, longitude, radius float64, unit model.DistanceUnit) ([]model.ChargingStation, error)
}

// StationMetricsRecorder はステーション検索のメトリクス記録インターフェース。
type StationMetricsRecorder interface {
	RecordStationLookup(success bool)
	RecordStationLookupLatency(duration time.Duration)
}

// StationHandler は充電ステーション検索のHTTPハンドラー。
type StationHandler struct {
	service StationServiceInterface
	metrics StationMetricsRecorder
}

// NewStationHandler はStationHandlerを生成する。
func NewStationHandler(service StationServiceInterface, metrics StationMetricsRecorder) *StationHandler {
	return &StationHandler{
		service: service,
		metrics: metrics,
	}
}

// SearchStations は座標周辺の充電ステーションを検索する。
// GET /api/stations?lat=xxx&lng=yyy&radius=zzz&unit=km
func (h *StationHandler) SearchStations(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewStationKeyMissingError())
		return
	}

	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCoordinatesError("latが数値ではありません"))
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCoordinatesError("lngが数値ではありません"))
		return
	}

	// radiusは省略可。省略時はサービス側のデフォルトに委ねる。
	var radius float64
	if raw := q.Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCoordinatesError("radiusが数値ではありません"))
			return
		}
	}

	unit := model.DistanceUnit(q.Get("unit"))

	start := time.Now()
	stations, err := h.service.SearchNearby(r.Context(), lat, lng, radius, unit)
	if h.metrics != nil {
		h.metrics.RecordStationLookupLatency(time.Since(start))
		h.metrics.RecordStationLookup(err == nil)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stations)
}
