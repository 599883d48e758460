package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"sampleflow/pkg/domain"
)

// Span outcomes written by SpanLog.
const (
	SpanOK       = "ok"
	SpanRejected = "rejected"
	SpanFailed   = "failed"
)

// SpanRecord is one line of a SpanLog.
type SpanRecord struct {
	Operation  string    `json:"op"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Start      time.Time `json:"start"`
	DurationMS float64   `json:"duration_ms"`
}

// SpanLog is a Tracer that appends one JSON line per dispatcher operation.
// Guard and validation errors are written as rejected, other errors as failed.
type SpanLog struct {
	mu    sync.Mutex
	enc   *json.Encoder
	clock Clock
}

// NewSpanLog writes span records to w.
func NewSpanLog(w io.Writer) *SpanLog {
	return &SpanLog{enc: json.NewEncoder(w), clock: ClockFunc(time.Now)}
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &spanLogEntry{log: l, op: operation, start: l.clock.Now().UTC()}
}

type spanLogEntry struct {
	log   *SpanLog
	op    string
	start time.Time
}

func (e *spanLogEntry) End(err error) {
	rec := SpanRecord{
		Operation:  e.op,
		Outcome:    spanOutcome(err),
		Start:      e.start,
		DurationMS: float64(e.log.clock.Now().Sub(e.start)) / float64(time.Millisecond),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	e.log.mu.Lock()
	_ = e.log.enc.Encode(rec)
	e.log.mu.Unlock()
}

func spanOutcome(err error) string {
	switch {
	case err == nil:
		return SpanOK
	case domain.IsGuard(err) || domain.IsValidation(err):
		return SpanRejected
	default:
		return SpanFailed
	}
}
