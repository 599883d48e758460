package core

import (
	"strings"

	"sampleflow/pkg/domain"
)

// DefaultMethods are planned automatically when a sample is stored.
var DefaultMethods = []string{"SARA", "IR", "GC-MS"}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the dispatcher clock.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(d *Dispatcher) {
		if a != nil {
			d.audit = a
		}
	}
}

// WithStateStore persists override maps through s.
func WithStateStore(s domain.StateStore) Option {
	return func(d *Dispatcher) {
		d.states = s
	}
}

// WithUndoCapacity bounds the undo log.
func WithUndoCapacity(n int) Option {
	return func(d *Dispatcher) {
		d.undo = NewUndoLog(n)
	}
}

// WithNoticeCapacity bounds the notice list.
func WithNoticeCapacity(n int) Option {
	return func(d *Dispatcher) {
		d.notices = newNoticeList(n)
	}
}

// WithDefaultMethods replaces the methods planned when a sample is stored.
// Blank names are ignored.
func WithDefaultMethods(methods ...string) Option {
	return func(d *Dispatcher) {
		out := make([]string, 0, len(methods))
		for _, m := range methods {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
		d.defaultMethods = out
	}
}
