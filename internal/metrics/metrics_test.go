package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("GET", 200, 50*time.Millisecond)
	c.RecordRequest("GET", 200, 10*time.Millisecond)
	c.RecordRequest("POST", 401, time.Millisecond)
	c.RecordTokenRefresh(true)
	c.RecordTokenRefresh(false)
	c.RecordCacheLookup("projects", true)
	c.RecordCacheLookup("projects", false)
	c.RecordTimeLog(true)
	c.RecordNetworkError("GET")

	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("GET 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("POST", "401")); got != 1 {
		t.Errorf("POST 401 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.refreshes.WithLabelValues("failure")); got != 1 {
		t.Errorf("refresh failure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cacheLookups.WithLabelValues("projects", "hit")); got != 1 {
		t.Errorf("cache hit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.networkErrors.WithLabelValues("GET")); got != 1 {
		t.Errorf("network errors = %v, want 1", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTimeLog(true)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `callog_zoho_time_logs_total{result="success"} 1`) {
		t.Errorf("metrics output missing time log counter:\n%s", body)
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(Nop); !ok {
		t.Error("OrNop(nil) should return Nop")
	}
	c := NewCollector(prometheus.NewRegistry())
	if OrNop(c) != Recorder(c) {
		t.Error("OrNop should return the given recorder")
	}
}
