package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"sampleflow/internal/backend"
	"sampleflow/pkg/domain"
)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(level, msg string) {
	c.mu.Lock()
	c.calls = append(c.calls, level+":"+msg)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record("d", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record("i", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record("w", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record("e", msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	mu    sync.Mutex
	ended []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
	s.tracer.mu.Unlock()
}

// newLoadedDispatcher returns a dispatcher loaded from a memory backend seeded
// with the built-in dataset.
func newLoadedDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *backend.Memory) {
	t.Helper()
	ds, err := backend.Fallback()
	if err != nil {
		t.Fatalf("fallback dataset: %v", err)
	}
	api := backend.NewMemory(ds)
	d := NewDispatcher(NewStore(), api, opts...)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return d, api
}

func mustSettle(t *testing.T, d *Dispatcher, id string, want MutationState) Mutation {
	t.Helper()
	d.Wait()
	m, ok := d.Mutation(id)
	if !ok {
		t.Fatalf("mutation %s not tracked", id)
	}
	if m.State != want {
		t.Fatalf("expected mutation %s to be %s, got %s (%s)", id, want, m.State, m.Error)
	}
	return m
}

func sample(t *testing.T, d *Dispatcher, id string) domain.Sample {
	t.Helper()
	s, ok := d.Store().Snapshot().Samples[id]
	if !ok {
		t.Fatalf("sample %s missing", id)
	}
	return s
}
