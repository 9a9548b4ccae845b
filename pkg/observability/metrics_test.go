package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.CacheFetch(nil)
	m.CacheFetch(errors.New("down"))
	m.CacheSize(7)
	m.CacheInvalidated()
	m.Decision("view", "allow")
	m.MatrixWrite("module", nil)
	m.MatrixWrite("module", errors.New("down"))

	if v := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")); v != 2 {
		t.Errorf("Expected 2 misses, got %v", v)
	}
	if v := testutil.ToFloat64(m.CacheFetchesTotal.WithLabelValues("failure")); v != 1 {
		t.Errorf("Expected 1 failed fetch, got %v", v)
	}
	if v := testutil.ToFloat64(m.CacheEntries); v != 7 {
		t.Errorf("Expected 7 entries, got %v", v)
	}
	if v := testutil.ToFloat64(m.CacheInvalidations); v != 1 {
		t.Errorf("Expected 1 invalidation, got %v", v)
	}
	if v := testutil.ToFloat64(m.MatrixWritesTotal.WithLabelValues("module", "rollback")); v != 1 {
		t.Errorf("Expected 1 rollback, got %v", v)
	}

	count, err := testutil.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count == 0 {
		t.Error("Expected gathered series")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.CacheLookup(true)
	m.CacheFetch(nil)
	m.CacheSize(1)
	m.CacheInvalidated()
	m.Decision("view", "deny")
	m.MatrixWrite("page", nil)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry).Decision("edit", "bypass")

	rr := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `opsboard_authz_decisions_total{action="edit",outcome="bypass"} 1`) {
		t.Errorf("Expected decision series in output:\n%s", rr.Body.String())
	}
}
