package backend

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"sampleflow/pkg/domain"
)

// Memory is an in-process API implementation. The daemon uses it when no
// backend URL is configured and tests use it to script failures.
type Memory struct {
	mu       sync.Mutex
	samples  map[string]domain.Sample
	analyses map[string]domain.PlannedAnalysis
	batches  map[string]domain.ActionBatch
	conflict map[string]domain.Conflict
	methods  []string
	users    map[string]domain.User
	nextID   int
	failures map[string][]error
	calls    []string
}

var _ API = (*Memory)(nil)

// NewMemory seeds a memory backend from ds.
func NewMemory(ds Dataset) *Memory {
	m := &Memory{
		samples:  make(map[string]domain.Sample),
		analyses: make(map[string]domain.PlannedAnalysis),
		batches:  make(map[string]domain.ActionBatch),
		conflict: make(map[string]domain.Conflict),
		users:    make(map[string]domain.User),
		failures: make(map[string][]error),
		nextID:   1000,
	}
	for _, s := range ds.Samples {
		m.samples[s.SampleID] = s
	}
	for _, a := range ds.Analyses {
		m.analyses[a.ID] = a.Clone()
	}
	for _, b := range ds.Batches {
		m.batches[b.ID] = b
	}
	for _, c := range ds.Conflicts {
		m.conflict[c.ID] = c
	}
	return m
}

// FailNext queues err to be returned by the next call of op, e.g.
// "UpdateSample". Queued errors are consumed in order.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls returns the operation names invoked so far.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// SetUsers replaces the user directory.
func (m *Memory) SetUsers(users ...domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]domain.User, len(users))
	for _, u := range users {
		m.users[u.ID] = u
	}
}

// Sample returns the stored canonical sample.
func (m *Memory) Sample(id string) (domain.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samples[id]
	return s, ok
}

// Analysis returns the stored planned analysis.
func (m *Memory) Analysis(id string) (domain.PlannedAnalysis, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[id]
	return a.Clone(), ok
}

// Conflict returns the stored conflict.
func (m *Memory) Conflict(id string) (domain.Conflict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflict[id]
	return c, ok
}

func (m *Memory) enter(op string) error {
	m.calls = append(m.calls, op)
	if q := m.failures[op]; len(q) > 0 {
		err := q[0]
		m.failures[op] = q[1:]
		return err
	}
	return nil
}

func notFound(path string) error {
	return &HTTPError{Method: "MEMORY", Path: path, Status: http.StatusNotFound, Body: "not found"}
}

func (m *Memory) newID(prefix string) string {
	m.nextID++
	return prefix + strconv.Itoa(m.nextID)
}

// ListSamples implements API.
func (m *Memory) ListSamples(ctx context.Context) ([]domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSamples"); err != nil {
		return nil, err
	}
	out := make([]domain.Sample, 0, len(m.samples))
	for _, s := range m.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SampleID < out[j].SampleID })
	return out, ctx.Err()
}

// CreateSample implements API.
func (m *Memory) CreateSample(_ context.Context, s domain.Sample) (domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateSample"); err != nil {
		return domain.Sample{}, err
	}
	if s.SampleID == "" {
		s.SampleID = m.newID("S-")
	}
	if _, exists := m.samples[s.SampleID]; exists {
		return domain.Sample{}, &HTTPError{Method: "MEMORY", Path: "/samples", Status: http.StatusConflict, Body: "sample exists"}
	}
	m.samples[s.SampleID] = s
	return s, nil
}

// UpdateSample implements API.
func (m *Memory) UpdateSample(_ context.Context, id string, patch SamplePatch) (domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateSample"); err != nil {
		return domain.Sample{}, err
	}
	s, ok := m.samples[id]
	if !ok {
		return domain.Sample{}, notFound("/samples/" + id)
	}
	patch.Apply(&s)
	m.samples[id] = s
	return s, nil
}

// DeleteSample implements API.
func (m *Memory) DeleteSample(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteSample"); err != nil {
		return err
	}
	if _, ok := m.samples[id]; !ok {
		return notFound("/samples/" + id)
	}
	delete(m.samples, id)
	for aid, a := range m.analyses {
		if a.SampleID == id {
			delete(m.analyses, aid)
		}
	}
	return nil
}

// ListAnalyses implements API.
func (m *Memory) ListAnalyses(context.Context) ([]domain.PlannedAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListAnalyses"); err != nil {
		return nil, err
	}
	out := make([]domain.PlannedAnalysis, 0, len(m.analyses))
	for _, a := range m.analyses {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateAnalysis implements API.
func (m *Memory) CreateAnalysis(_ context.Context, a domain.PlannedAnalysis) (domain.PlannedAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateAnalysis"); err != nil {
		return domain.PlannedAnalysis{}, err
	}
	if _, ok := m.samples[a.SampleID]; !ok {
		return domain.PlannedAnalysis{}, notFound("/samples/" + a.SampleID)
	}
	a.ID = m.newID("A-")
	m.analyses[a.ID] = a.Clone()
	return a, nil
}

// UpdateAnalysis implements API.
func (m *Memory) UpdateAnalysis(_ context.Context, id string, patch AnalysisPatch) (domain.PlannedAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateAnalysis"); err != nil {
		return domain.PlannedAnalysis{}, err
	}
	a, ok := m.analyses[id]
	if !ok {
		return domain.PlannedAnalysis{}, notFound("/planned-analyses/" + id)
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.AssignedTo != nil {
		a.AssignedTo = append([]string(nil), (*patch.AssignedTo)...)
	}
	m.analyses[id] = a
	return a.Clone(), nil
}

// ListBatches implements API.
func (m *Memory) ListBatches(context.Context) ([]domain.ActionBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListBatches"); err != nil {
		return nil, err
	}
	out := make([]domain.ActionBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateBatch implements API.
func (m *Memory) CreateBatch(_ context.Context, b domain.ActionBatch) (domain.ActionBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateBatch"); err != nil {
		return domain.ActionBatch{}, err
	}
	if b.ID == "" {
		b.ID = m.newID("B-")
	}
	m.batches[b.ID] = b
	return b, nil
}

// ListConflicts implements API.
func (m *Memory) ListConflicts(context.Context) ([]domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListConflicts"); err != nil {
		return nil, err
	}
	out := make([]domain.Conflict, 0, len(m.conflict))
	for _, c := range m.conflict {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateConflict implements API.
func (m *Memory) CreateConflict(_ context.Context, c domain.Conflict) (domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateConflict"); err != nil {
		return domain.Conflict{}, err
	}
	if c.ID == "" {
		c.ID = m.newID("C-")
	}
	if c.Status == "" {
		c.Status = domain.ConflictOpen
	}
	m.conflict[c.ID] = c
	return c, nil
}

// UpdateConflict implements API.
func (m *Memory) UpdateConflict(_ context.Context, id string, patch ConflictPatch) (domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateConflict"); err != nil {
		return domain.Conflict{}, err
	}
	c, ok := m.conflict[id]
	if !ok {
		return domain.Conflict{}, notFound("/conflicts/" + id)
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.ResolutionNote != nil {
		c.ResolutionNote = *patch.ResolutionNote
	}
	m.conflict[id] = c
	return c, nil
}

// GetFilterMethods implements API.
func (m *Memory) GetFilterMethods(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetFilterMethods"); err != nil {
		return nil, err
	}
	return append([]string(nil), m.methods...), nil
}

// PutFilterMethods implements API.
func (m *Memory) PutFilterMethods(_ context.Context, methods []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutFilterMethods"); err != nil {
		return err
	}
	m.methods = append([]string(nil), methods...)
	return nil
}

// ListUsers implements API.
func (m *Memory) ListUsers(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListUsers"); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateUserRoles implements API.
func (m *Memory) UpdateUserRoles(_ context.Context, id string, roles []string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateUserRoles"); err != nil {
		return domain.User{}, err
	}
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, notFound(fmt.Sprintf("/admin/users/%s", id))
	}
	u.Roles = append([]string(nil), roles...)
	m.users[id] = u
	return u, nil
}
