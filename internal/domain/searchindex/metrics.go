package searchindex

import (
	"time"

	"github.com/ehr/fhirindex/internal/platform/metrics"
)

type metricsRecorder struct {
	m                    *metrics.Metrics
	minParamsPerResource float64
}

// NewMetricsRecorder publishes indexing measurements to Prometheus.
func NewMetricsRecorder(m *metrics.Metrics, minParamsPerResource float64) Recorder {
	return &metricsRecorder{m: m, minParamsPerResource: minParamsPerResource}
}

func (r *metricsRecorder) ObserveResource(resourceType string, state IndexState, params, dangling int, elapsed time.Duration) {
	r.m.ObserveResource(resourceType, string(state), params, dangling, elapsed)
}

func (r *metricsRecorder) ObserveBatch(result *BatchResult) {
	outcome := "healthy"
	switch {
	case result.Cancelled:
		outcome = "cancelled"
	case !result.Healthy(r.minParamsPerResource):
		outcome = "unhealthy"
	}
	r.m.ObserveBatch(outcome, result.Indexed, result.Skipped, len(result.Failed), result.ParamsPerResource(), result.Duration)
}

func (r *metricsRecorder) ObserveHealth(report *HealthReport) {
	r.m.SetHealth(report.Healthy, report.Resources, report.ZeroTypeParamResources, report.StaleResources, report.Dangling, report.ParamsPerResource)
}
