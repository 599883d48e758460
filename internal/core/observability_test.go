package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sampleflow/pkg/domain"
)

func TestRunRecordsSuccessfulOperation(t *testing.T) {
	fixed := time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	d, _ := newLoadedDispatcher(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	m, err := d.AddComment(context.Background(), AddCommentRequest{Role: domain.RoleWarehouse, SampleID: "S-1001", Text: "box dented"})
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if !m.CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", m.CreatedAt)
	}
	if !audit.has(string(ActionAddComment), AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == "S-1001" && e.Timestamp.Equal(fixed) && e.Duration == 0
	}) {
		t.Fatalf("expected audit success entry, got %+v", audit.entries)
	}
	if !metrics.has(string(ActionAddComment), true) || !tracer.has(string(ActionAddComment), true) {
		t.Fatalf("expected successful metrics and span")
	}
	if !audit.has("load", AuditStatusSuccess, nil) {
		t.Fatalf("expected load to be audited")
	}
}

func TestRunLogsBackendErrorsAsErrors(t *testing.T) {
	logger := &captureLogger{}
	d, api := newLoadedDispatcher(t, WithLogger(logger))
	api.FailNext("PutFilterMethods", errors.New("503"))
	if err := d.SetFilterMethods(context.Background(), []string{"IR"}); err == nil {
		t.Fatalf("expected error")
	}
	if !logger.has("e:dispatcher operation failed") {
		t.Fatalf("expected error log, got %v", logger.calls)
	}
}

func TestNoopObservabilityDefaults(t *testing.T) {
	noopLogger{}.Debug("x")
	noopLogger{}.Error("x")
	noopMetrics{}.Observe(context.Background(), "op", true, time.Second)
	_, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
	noopAudit{}.Record(context.Background(), AuditEntry{})
}

func TestExpvarMetricsRecorderCountsMutations(t *testing.T) {
	name := fmt.Sprintf("sampleflow_test_%d", time.Now().UnixNano())
	rec, err := NewExpvarMetricsRecorder(name)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := NewExpvarMetricsRecorder(name); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if _, err := NewExpvarMetricsRecorder(""); err == nil {
		t.Fatalf("expected empty name error")
	}

	d, api := newLoadedDispatcher(t, WithMetricsRecorder(rec))
	api.FailNext("UpdateSample", errors.New("500 internal"))
	m, err := d.UpdateSampleField(context.Background(), UpdateSampleFieldRequest{Role: domain.RoleWarehouse, SampleID: "S-1001", Field: FieldHorizon, Value: "J9"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	mustSettle(t, d, m.ID, MutationFailed)
	if _, err := d.Undo(context.Background()); err != nil {
		t.Fatalf("undo: %v", err)
	}
	d.Wait()
	rec.Observe(context.Background(), "", true, time.Second)

	var got struct {
		Operations map[string]int64   `json:"operations"`
		LatencyMS  map[string]float64 `json:"latency_ms_total"`
		Mutations  map[string]int64   `json:"mutations"`
		Stale      int64              `json:"stale_responses"`
	}
	if err := json.Unmarshal([]byte(expvar.Get(name).String()), &got); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if got.Operations["update-sample-field.success"] != 1 || got.Operations["load.success"] != 1 {
		t.Fatalf("unexpected operations %v", got.Operations)
	}
	if _, ok := got.LatencyMS["update-sample-field"]; !ok {
		t.Fatalf("expected latency for update-sample-field, got %v", got.LatencyMS)
	}
	if got.Mutations["update-sample-field.failed"] != 1 || got.Mutations["undo.applied"] != 1 {
		t.Fatalf("unexpected mutations %v", got.Mutations)
	}
	if got.Stale != 0 {
		t.Fatalf("expected no stale responses, got %d", got.Stale)
	}
}

func TestSpanLogClassifiesOutcomes(t *testing.T) {
	var buf bytes.Buffer
	log := NewSpanLog(&buf)
	tick := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	log.clock = ClockFunc(func() time.Time {
		tick = tick.Add(2 * time.Millisecond)
		return tick
	})
	for _, err := range []error{
		nil,
		domain.ValidationError{Field: "horizon", Reason: "required"},
		errors.New("backend down"),
	} {
		_, span := log.Start(context.Background(), "update-sample-field")
		span.End(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	want := []string{SpanOK, SpanRejected, SpanFailed}
	for i, line := range lines {
		var rec SpanRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode line %d: %v", i, err)
		}
		if rec.Operation != "update-sample-field" || rec.Outcome != want[i] {
			t.Fatalf("line %d: unexpected record %+v", i, rec)
		}
		if rec.DurationMS != 2 {
			t.Fatalf("line %d: expected 2ms, got %v", i, rec.DurationMS)
		}
	}
}

func TestTeeTracerEndsEverySpan(t *testing.T) {
	var buf bytes.Buffer
	capture := &captureTracer{}
	tracer := TeeTracer(capture, nil, NewSpanLog(&buf))
	_, span := tracer.Start(context.Background(), "undo")
	span.End(domain.ErrUndoEmpty)
	if !capture.has("undo", false) {
		t.Fatalf("expected captured span")
	}
	if !strings.Contains(buf.String(), `"op":"undo"`) {
		t.Fatalf("expected span log line, got %q", buf.String())
	}
	if single := TeeTracer(capture); single != Tracer(capture) {
		t.Fatalf("expected a single tracer to be returned as is")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.Observe(context.Background(), "move-card", true, time.Millisecond)
	rec.Observe(context.Background(), "move-card", true, time.Millisecond)
	rec.Observe(context.Background(), "move-card", false, time.Millisecond)
	if got := promtestutil.ToFloat64(rec.total.WithLabelValues("move-card", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	rec.ObserveMutation(context.Background(), ActionCreateSample, MutationRolledBack, 0)
	rec.ObserveMutation(context.Background(), ActionUpdateSampleField, MutationApplied, 2)
	if got := promtestutil.ToFloat64(rec.mutations.WithLabelValues("create-sample", "rolled_back")); got != 1 {
		t.Fatalf("expected 1 rolled back create, got %v", got)
	}
	if got := promtestutil.ToFloat64(rec.stale.WithLabelValues("update-sample-field")); got != 2 {
		t.Fatalf("expected 2 stale responses, got %v", got)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestOTelTracerRecordsStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOTelTracer(tp)
	_, loadSpan := tracer.Start(context.Background(), "load")
	loadSpan.End(nil)
	_, refreshSpan := tracer.Start(context.Background(), "refresh")
	refreshSpan.End(errors.New("timeout"))
	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected statuses %v %v", spans[0].Status(), spans[1].Status())
	}
}
