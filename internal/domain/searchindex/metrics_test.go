package searchindex

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ehr/fhirindex/internal/platform/metrics"
)

func TestMetricsRecorder(t *testing.T) {
	m := metrics.New()
	svc := newTestService(t, NewMemoryRepo(), Options{Recorder: NewMetricsRecorder(m, 1), MinParamsPerResource: 1})

	if _, err := svc.ReindexAll(context.Background(), batchSource(), BatchOptions{}); err != nil {
		t.Fatalf("ReindexAll: %v", err)
	}
	if _, err := svc.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}

	if got := testutil.ToFloat64(m.ResourcesTotal.WithLabelValues("Condition", string(StateDone))); got != 1 {
		t.Errorf("Condition done = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BatchesTotal.WithLabelValues("healthy")); got != 1 {
		t.Errorf("healthy batches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BatchResourcesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed resources = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HealthResources); got != 3 {
		t.Errorf("index resources = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Healthy); got != 1 {
		t.Errorf("healthy gauge = %v, want 1", got)
	}
}
