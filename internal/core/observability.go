package core

import (
	"context"
	"time"

	"sampleflow/pkg/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logging surface used by the dispatcher.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes dispatcher operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around dispatcher operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded in an audit entry.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one dispatcher operation.
type AuditEntry struct {
	Operation string
	Role      domain.Role
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every dispatcher operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// MutationObserver is implemented by metrics recorders that also count how
// mutations settle.
type MutationObserver interface {
	ObserveMutation(ctx context.Context, kind ActionKind, state MutationState, stale int)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// TeeTracer starts a span on every tracer and ends them together.
func TeeTracer(tracers ...Tracer) Tracer {
	var live []Tracer
	for _, t := range tracers {
		if t != nil {
			live = append(live, t)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return teeTracer(live)
}

type teeTracer []Tracer

func (t teeTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	spans := make(teeSpan, 0, len(t))
	for _, tr := range t {
		var span TraceSpan
		ctx, span = tr.Start(ctx, operation)
		spans = append(spans, span)
	}
	return ctx, spans
}

type teeSpan []TraceSpan

func (s teeSpan) End(err error) {
	for i := len(s) - 1; i >= 0; i-- {
		s[i].End(err)
	}
}
