package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveResource(t *testing.T) {
	m := New()
	m.ObserveResource("Observation", "done", 12, 0, 3*time.Millisecond)
	m.ObserveResource("Observation", "done", 8, 2, time.Millisecond)
	m.ObserveResource("Observation", "failed", 0, 0, time.Millisecond)

	if got := testutil.ToFloat64(m.ResourcesTotal.WithLabelValues("Observation", "done")); got != 2 {
		t.Errorf("done = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ParamsTotal.WithLabelValues("Observation")); got != 20 {
		t.Errorf("params = %v, want 20", got)
	}
	if got := testutil.ToFloat64(m.DanglingTotal.WithLabelValues("Observation")); got != 2 {
		t.Errorf("dangling = %v, want 2", got)
	}
}

func TestObserveBatchAndHealth(t *testing.T) {
	m := New()
	m.ObserveBatch("unhealthy", 100, 0, 3, 0.2, time.Minute)
	m.SetHealth(false, 100, 4, 0, 7, 0.2)

	if got := testutil.ToFloat64(m.BatchesTotal.WithLabelValues("unhealthy")); got != 1 {
		t.Errorf("unhealthy batches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BatchParamsPerResource); got != 0.2 {
		t.Errorf("params per resource = %v, want 0.2", got)
	}
	if got := testutil.ToFloat64(m.Healthy); got != 0 {
		t.Errorf("healthy = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.HealthZeroParamResources); got != 4 {
		t.Errorf("zero-param resources = %v, want 4", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/index/:type", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", m.Handler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index/Patient", nil))
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/index/:type", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fhirindex_http_requests_total") {
		t.Error("exposition does not include request counter")
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveResource("Patient", "done", 1, 0, time.Millisecond)
	if got := testutil.ToFloat64(b.ResourcesTotal.WithLabelValues("Patient", "done")); got != 0 {
		t.Errorf("second registry saw %v observations", got)
	}
}
