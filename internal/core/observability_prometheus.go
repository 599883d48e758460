package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation counts and latencies.
type PrometheusMetricsRecorder struct {
	total     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	mutations *prometheus.CounterVec
	stale     *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the dispatcher collectors on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sampleflow",
			Subsystem: "dispatcher",
			Name:      "operations_total",
			Help:      "Dispatcher operations by name and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sampleflow",
			Subsystem: "dispatcher",
			Name:      "operation_duration_seconds",
			Help:      "Dispatcher operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sampleflow",
			Subsystem: "dispatcher",
			Name:      "mutations_settled_total",
			Help:      "Settled mutations by action kind and final state.",
		}, []string{"kind", "state"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sampleflow",
			Subsystem: "dispatcher",
			Name:      "stale_responses_total",
			Help:      "Backend responses dropped because a newer mutation touched the entity.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.duration, r.mutations, r.stale} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.total.WithLabelValues(operation, statusLabel(success)).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveMutation implements MutationObserver.
func (r *PrometheusMetricsRecorder) ObserveMutation(_ context.Context, kind ActionKind, state MutationState, stale int) {
	r.mutations.WithLabelValues(string(kind), string(state)).Inc()
	if stale > 0 {
		r.stale.WithLabelValues(string(kind)).Add(float64(stale))
	}
}
