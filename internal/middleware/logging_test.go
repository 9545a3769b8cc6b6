package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockStatusRecorderMetric struct {
	recorded []int
}

func (m *mockStatusRecorderMetric) RecordHTTPStatus(statusCode int) {
	m.recorded = append(m.recorded, statusCode)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(newTestLogger(&buf), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/stations" {
		t.Errorf("path = %v, want /api/stations", entry["path"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms should be present")
	}
}

func TestLoggingMiddleware_AuthenticatedRequest_IncludesUserID(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(newTestLogger(&buf), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-789"))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["user_id"] != "user-789" {
		t.Errorf("user_id = %v, want user-789", entry["user_id"])
	}
}

func TestLoggingMiddleware_ServerError_LogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(newTestLogger(&buf), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}

func TestLoggingMiddleware_ClientError_LogsAtWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(newTestLogger(&buf), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
}

func TestLoggingMiddleware_ImplicitWrite_Records200(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(newTestLogger(&buf), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WriteHeaderを呼ばずに書き込むと200が記録される
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}

func TestLoggingMiddleware_RecordsStatusToMetrics(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockStatusRecorderMetric{}
	mw := NewLoggingMiddleware(newTestLogger(&buf), rec)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if len(rec.recorded) != 1 || rec.recorded[0] != http.StatusCreated {
		t.Errorf("recorded = %v, want [201]", rec.recorded)
	}
}
