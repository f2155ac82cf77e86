package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherCounter はレジストリから指定名のカウンター値を取り出す。
func gatherCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !matchLabels(m, labels) {
				continue
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestCollector_Counters は各カウンターの記録を検証する。
func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthSuccess()
	c.RecordAuthSuccess()
	c.RecordAuthFailure("expired")
	c.RecordTaskCreated()
	c.RecordTaskDeleted()
	c.RecordUserCreated()
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordHTTPStatus(404)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"taskman_auth_success_total", nil, 2},
		{"taskman_auth_failure_total", map[string]string{"reason": "expired"}, 1},
		{"taskman_tasks_created_total", nil, 1},
		{"taskman_tasks_deleted_total", nil, 1},
		{"taskman_users_created_total", nil, 1},
		{"taskman_http_status_total", map[string]string{"status_code": "200"}, 1},
		{"taskman_http_status_total", map[string]string{"status_code": "404"}, 2},
	}
	for _, tt := range tests {
		if got := gatherCounter(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

// TestCollector_Latency はレイテンシヒストグラムの観測を検証する。
func TestCollector_Latency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(150 * time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "taskman_request_latency_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 1 {
			t.Errorf("sample count = %d, want 1", h.GetSampleCount())
		}
		if got := h.GetSampleSum(); got < 0.149 || got > 0.151 {
			t.Errorf("sample sum = %v, want ~0.15", got)
		}
		return
	}
	t.Fatal("taskman_request_latency_seconds not found")
}

// TestHandler はスクレイプエンドポイントがエクスポジション形式で
// メトリクスを返すことを検証する。
func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthSuccess()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "taskman_auth_success_total 1") {
		t.Errorf("scrape output does not contain expected counter:\n%s", rec.Body.String())
	}
}
