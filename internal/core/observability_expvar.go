package core

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"time"
)

// ExpvarMetricsRecorder publishes dispatcher counters as one expvar map:
//
//	operations        "<op>.success" / "<op>.error" counts
//	latency_ms_total  summed latency per operation
//	mutations         "<kind>.<state>" counts of settled mutations
//	stale_responses   backend responses dropped as stale
type ExpvarMetricsRecorder struct {
	name       string
	operations *expvar.Map
	latency    *expvar.Map
	mutations  *expvar.Map
	stale      *expvar.Int
}

// NewExpvarMetricsRecorder publishes a recorder under name. Names are global
// to the process, so publishing one twice fails.
func NewExpvarMetricsRecorder(name string) (*ExpvarMetricsRecorder, error) {
	if name == "" {
		return nil, errors.New("expvar metrics: name is required")
	}
	if expvar.Get(name) != nil {
		return nil, fmt.Errorf("expvar metrics: %q is already published", name)
	}
	r := &ExpvarMetricsRecorder{
		name:       name,
		operations: new(expvar.Map).Init(),
		latency:    new(expvar.Map).Init(),
		mutations:  new(expvar.Map).Init(),
		stale:      new(expvar.Int),
	}
	root := new(expvar.Map).Init()
	root.Set("operations", r.operations)
	root.Set("latency_ms_total", r.latency)
	root.Set("mutations", r.mutations)
	root.Set("stale_responses", r.stale)
	expvar.Publish(name, root)
	return r, nil
}

// Name returns the published expvar name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.Add(operation+"."+statusLabel(success), 1)
	r.latency.AddFloat(operation, float64(duration)/float64(time.Millisecond))
}

// ObserveMutation implements MutationObserver.
func (r *ExpvarMetricsRecorder) ObserveMutation(_ context.Context, kind ActionKind, state MutationState, stale int) {
	r.mutations.Add(string(kind)+"."+string(state), 1)
	if stale > 0 {
		r.stale.Add(int64(stale))
	}
}
