// Package exports renders projected role boards into downloadable artifacts
// and stores them in the blob store. Requests are queued and processed by a
// single background worker.
package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sampleflow/internal/blob"
	"sampleflow/internal/board"
	"sampleflow/internal/core"
	"sampleflow/pkg/domain"
)

// Status describes the lifecycle stage of an export request.
type Status string

// Export statuses.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format is an artifact encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func (f Format) contentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// ErrNotFound is returned for unknown export ids.
var ErrNotFound = errors.New("export not found")

// ErrQueueFull is returned when the worker cannot accept more requests.
var ErrQueueFull = errors.New("export queue full")

// Artifact is one stored rendering of an export.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string      `json:"id"`
	Role        domain.Role `json:"role"`
	Query       board.Query `json:"query"`
	Formats     []Format    `json:"formats"`
	Status      Status      `json:"status"`
	Error       string      `json:"error,omitempty"`
	Artifacts   []Artifact  `json:"artifacts,omitempty"`
	RequestedBy string      `json:"requested_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Done reports whether the export reached a terminal status.
func (r Record) Done() bool { return r.Status == StatusSucceeded || r.Status == StatusFailed }

// Input is an enqueue request.
type Input struct {
	Role        domain.Role `json:"role"`
	Query       board.Query `json:"query"`
	Formats     []Format    `json:"formats"`
	RequestedBy string      `json:"requested_by"`
}

// BoardSource projects a role board. *core.Dispatcher satisfies it.
type BoardSource interface {
	Board(role domain.Role, q board.Query) board.Board
}

// Worker executes board exports asynchronously.
type Worker struct {
	boards BoardSource
	store  blob.Store
	audit  core.AuditRecorder
	log    core.Logger
	now    func() time.Time

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithAuditRecorder records one audit entry per status change.
func WithAuditRecorder(a core.AuditRecorder) Option {
	return func(w *Worker) {
		if a != nil {
			w.audit = a
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(l core.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithQueueSize bounds the number of pending requests.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan string, n)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

type discardAudit struct{}

func (discardAudit) Record(context.Context, core.AuditEntry) {}

type discardLog struct{}

func (discardLog) Debug(string, ...any) {}
func (discardLog) Info(string, ...any)  {}
func (discardLog) Warn(string, ...any)  {}
func (discardLog) Error(string, ...any) {}

// NewWorker constructs an export worker. Call Start to begin processing.
func NewWorker(boards BoardSource, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		boards: boards,
		store:  store,
		audit:  discardAudit{},
		log:    discardLog{},
		now:    time.Now,
		queue:  make(chan string, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the loop to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue validates the request and schedules it.
func (w *Worker) Enqueue(ctx context.Context, in Input) (Record, error) {
	if !in.Role.Valid() {
		return Record{}, domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", in.Role)}
	}
	formats, err := normalizeFormats(in.Formats)
	if err != nil {
		return Record{}, err
	}
	now := w.now().UTC()
	record := &Record{
		ID:          uuid.NewString(),
		Role:        in.Role,
		Query:       in.Query,
		Formats:     formats,
		Status:      StatusQueued,
		RequestedBy: in.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- record.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.record(ctx, snapshot, "")
	w.log.Info("export queued", "export_id", record.ID, "role", in.Role)
	return snapshot, nil
}

func normalizeFormats(in []Format) ([]Format, error) {
	if len(in) == 0 {
		return []Format{FormatJSON, FormatCSV}, nil
	}
	out := make([]Format, 0, len(in))
	seen := make(map[Format]bool)
	for _, f := range in {
		f = Format(strings.ToLower(strings.TrimSpace(string(f))))
		if f != FormatJSON && f != FormatCSV {
			return nil, domain.ValidationError{Field: "formats", Reason: fmt.Sprintf("unsupported format %q", f)}
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Open streams the artifact of a finished export in the given format.
func (w *Worker) Open(ctx context.Context, id string, format Format) (blob.Info, io.ReadCloser, error) {
	record, ok := w.Get(id)
	if !ok {
		return blob.Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, a := range record.Artifacts {
		if a.Format == format {
			return w.store.Get(ctx, a.Key)
		}
	}
	return blob.Info{}, nil, fmt.Errorf("%w: %s has no %s artifact", ErrNotFound, id, format)
}

// Stored lists artifacts already in the blob store for a role.
func (w *Worker) Stored(ctx context.Context, role domain.Role) ([]blob.Info, error) {
	return w.store.List(ctx, keyPrefix(role))
}

// Delete removes an export's artifacts and forgets the record.
func (w *Worker) Delete(ctx context.Context, id string) (int, error) {
	record, ok := w.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !record.Done() {
		return 0, domain.ValidationError{Field: "id", Reason: "export still in progress"}
	}
	removed := 0
	for _, a := range record.Artifacts {
		existed, err := w.store.Delete(ctx, a.Key)
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w", a.Key, err)
		}
		if existed {
			removed++
		}
	}
	w.mu.Lock()
	delete(w.jobs, id)
	w.mu.Unlock()
	return removed, nil
}

func keyPrefix(role domain.Role) string { return "exports/" + string(role) + "/" }

// ArtifactKey is the blob key of one export rendering.
func ArtifactKey(role domain.Role, id string, f Format) string {
	return keyPrefix(role) + id + "." + string(f)
}

func (w *Worker) process(id string) {
	record, ok := w.Get(id)
	if !ok {
		return
	}
	w.update(id, func(r *Record) { r.Status = StatusRunning })

	b := w.boards.Board(record.Role, record.Query)
	exportedAt := w.now().UTC()
	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, f := range record.Formats {
		payload, rows, err := render(f, b, record, exportedAt)
		if err != nil {
			w.fail(id, fmt.Sprintf("render %s: %v", f, err))
			return
		}
		artifact, err := w.put(record, f, payload, rows)
		if err != nil {
			w.fail(id, fmt.Sprintf("store %s artifact: %v", f, err))
			return
		}
		artifacts = append(artifacts, artifact)
	}

	w.update(id, func(r *Record) {
		r.Status = StatusSucceeded
		r.Error = ""
		r.Artifacts = artifacts
		done := r.UpdatedAt
		r.CompletedAt = &done
	})
	w.log.Info("export succeeded", "export_id", id, "artifacts", len(artifacts))
}

func (w *Worker) put(record Record, f Format, payload []byte, rows int) (Artifact, error) {
	key := ArtifactKey(record.Role, record.ID, f)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: f.contentType(),
		Metadata: map[string]string{
			"export_id": record.ID,
			"role":      string(record.Role),
			"rows":      fmt.Sprint(rows),
		},
	})
	if err != nil {
		return Artifact{}, err
	}
	artifact := Artifact{
		Key:         key,
		Format:      f,
		ContentType: f.contentType(),
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		URL:         info.URL,
		Rows:        rows,
		CreatedAt:   info.LastModified,
	}
	if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
		artifact.URL = url
	} else if !errors.Is(err, blob.ErrUnsupported) {
		w.log.Warn("presign export artifact", "key", key, "error", err)
	}
	return artifact, nil
}

func (w *Worker) update(id string, fn func(*Record)) {
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	record.UpdatedAt = w.now().UTC()
	fn(record)
	snapshot := record.copy()
	w.mu.Unlock()
	w.record(w.ctx, snapshot, snapshot.Error)
}

func (w *Worker) fail(id, reason string) {
	w.update(id, func(r *Record) {
		r.Status = StatusFailed
		r.Error = reason
		done := r.UpdatedAt
		r.CompletedAt = &done
	})
	w.log.Error("export failed", "export_id", id, "error", reason)
}

func (w *Worker) record(ctx context.Context, r Record, errMsg string) {
	status := core.AuditStatusSuccess
	if r.Status == StatusFailed {
		status = core.AuditStatusError
	}
	w.audit.Record(ctx, core.AuditEntry{
		Operation: "export." + string(r.Status),
		Role:      r.Role,
		EntityID:  r.ID,
		Status:    status,
		Error:     errMsg,
		Timestamp: r.UpdatedAt,
	})
}

func (r *Record) copy() Record {
	cp := *r
	cp.Formats = append([]Format(nil), r.Formats...)
	cp.Artifacts = append([]Artifact(nil), r.Artifacts...)
	cp.Query.Methods = append([]string(nil), r.Query.Methods...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
