package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hedge/internal/logger"
	"github.com/hitoshi/hedge/internal/metrics"
	"github.com/hitoshi/hedge/internal/model"
)

// TestLoggingMiddleware_LogsRequest はリクエストの構造化ログが出力されることを検証する。
func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf, "info")

	handler := NewLoggingMiddleware(log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/items", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["path"] != "/api/items" {
		t.Errorf("path = %v, want /api/items", entry["path"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v, want %d", entry["status"], http.StatusCreated)
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms in log entry")
	}
}

// TestLoggingMiddleware_IncludesGuestID はセッション検証済みリクエストで
// guest_idがログに含まれることを検証する。
func TestLoggingMiddleware_IncludesGuestID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf, "info")

	handler := NewLoggingMiddleware(log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	ctx := ContextWithGuestSession(req.Context(), &model.GuestSession{GuestID: "guest-log"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req.WithContext(ctx))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["guest_id"] != "guest-log" {
		t.Errorf("guest_id = %v, want guest-log", entry["guest_id"])
	}
}

// TestLoggingMiddleware_ErrorLevelFor5xx は5xxレスポンスがERRORレベルになることを検証する。
func TestLoggingMiddleware_ErrorLevelFor5xx(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf, "info")

	handler := NewLoggingMiddleware(log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
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

// TestLoggingMiddleware_RecordsMetrics はステータスとレイテンシが
// メトリクスに記録されることを検証する。
func TestLoggingMiddleware_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf, "info")
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	handler := NewLoggingMiddleware(log, collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/items/x", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	foundStatus := false
	for _, mf := range families {
		if mf.GetName() == "hedge_http_status_total" {
			foundStatus = true
			if label := mf.GetMetric()[0].GetLabel()[0].GetValue(); label != "404" {
				t.Errorf("status label = %q, want 404", label)
			}
		}
	}
	if !foundStatus {
		t.Error("hedge_http_status_total metric not recorded")
	}
}

// TestStatusRecorder_DefaultsTo200 はWriteHeader未呼び出しで200が記録されることを検証する。
func TestStatusRecorder_DefaultsTo200(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}

	if _, err := rec.Write([]byte("ok")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want %d", rec.statusCode, http.StatusOK)
	}
}
