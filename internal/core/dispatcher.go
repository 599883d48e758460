package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sampleflow/internal/backend"
	"sampleflow/internal/board"
	"sampleflow/pkg/domain"
)

const mutationHistory = 100

// Dispatcher is the single writer of the Store. Every action is guarded,
// applied optimistically, recorded for undo and then reconciled against the
// backend in the background.
type Dispatcher struct {
	store  *Store
	api    backend.API
	states domain.StateStore
	undo   *UndoLog
	ids    *localIDs

	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder

	defaultMethods []string
	notices        *noticeList

	mu            sync.Mutex
	mutations     []*Mutation
	byID          map[string]*Mutation
	filterMethods []string

	persistMu sync.Mutex
	inflight  sync.WaitGroup
}

// NewDispatcher wires a dispatcher over store and api.
func NewDispatcher(store *Store, api backend.API, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:          store,
		api:            api,
		undo:           NewUndoLog(DefaultUndoCapacity),
		ids:            newLocalIDs(),
		clock:          ClockFunc(time.Now),
		logger:         noopLogger{},
		metrics:        noopMetrics{},
		tracer:         noopTracer{},
		audit:          noopAudit{},
		defaultMethods: append([]string(nil), DefaultMethods...),
		notices:        newNoticeList(0),
		byID:           make(map[string]*Mutation),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store returns the underlying store.
func (d *Dispatcher) Store() *Store { return d.store }

// Wait blocks until every in-flight backend call has settled.
func (d *Dispatcher) Wait() { d.inflight.Wait() }

// run wraps an operation with tracing, metrics, audit and logging.
func (d *Dispatcher) run(ctx context.Context, op string, role domain.Role, fn func(ctx context.Context) (string, error)) error {
	start := d.clock.Now()
	ctx, span := d.tracer.Start(ctx, op)
	d.logger.Debug("dispatcher operation start", "op", op, "role", role)
	entityID, err := fn(ctx)
	duration := d.clock.Now().Sub(start)
	span.End(err)
	d.metrics.Observe(ctx, op, err == nil, duration)
	entry := AuditEntry{
		Operation: op,
		Role:      role,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: d.clock.Now().UTC(),
	}
	switch {
	case err == nil:
		d.logger.Info("dispatcher operation accepted", "op", op, "role", role, "entity_id", entityID, "duration", duration)
	case domain.IsGuard(err) || domain.IsValidation(err):
		entry.Status, entry.Error = AuditStatusError, err.Error()
		d.logger.Warn("dispatcher operation rejected", "op", op, "role", role, "entity_id", entityID, "error", err)
	default:
		entry.Status, entry.Error = AuditStatusError, err.Error()
		d.logger.Error("dispatcher operation failed", "op", op, "role", role, "entity_id", entityID, "error", err)
	}
	d.audit.Record(ctx, entry)
	return err
}

// plan is what an action's prepare step hands back to submit.
type plan struct {
	entityID string
	undo     UndoRecord
	steps    []remoteStep
	noop     bool
}

func (p *plan) call(tx *Txn, step remoteStep) {
	step.seq = tx.Bump(step.key)
	p.steps = append(p.steps, step)
}

// submit guards, applies and launches one action.
func (d *Dispatcher) submit(ctx context.Context, kind ActionKind, role domain.Role, prepare func(tx *Txn) (*plan, error)) (Mutation, error) {
	var m Mutation
	err := d.run(ctx, string(kind), role, func(ctx context.Context) (string, error) {
		if err := guardError(role, CheckPermission(role, kind)); err != nil {
			return "", err
		}
		var p *plan
		if err := d.store.Mutate(func(tx *Txn) error {
			var err error
			if p, err = prepare(tx); err != nil {
				return err
			}
			for _, step := range p.steps {
				if step.creates != "" {
					d.ids.begin(step.creates)
				}
			}
			return nil
		}); err != nil {
			return "", err
		}
		if p.noop {
			m = Mutation{Kind: kind, Role: role, EntityID: p.entityID, State: MutationApplied, CreatedAt: d.clock.Now().UTC()}
			return p.entityID, nil
		}
		tracked := d.track(kind, role, p.entityID)
		m = *tracked
		if p.undo != nil {
			p.undo.stamp(m.ID, m.CreatedAt)
			d.undo.Push(p.undo)
		}
		d.persist(ctx, m.ID)
		d.launch(ctx, tracked, p.steps)
		return p.entityID, nil
	})
	return m, err
}

func (d *Dispatcher) track(kind ActionKind, role domain.Role, entityID string) *Mutation {
	m := &Mutation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Role:      role,
		EntityID:  entityID,
		State:     MutationPending,
		CreatedAt: d.clock.Now().UTC(),
	}
	d.mu.Lock()
	d.mutations = append(d.mutations, m)
	d.byID[m.ID] = m
	if over := len(d.mutations) - mutationHistory; over > 0 {
		for _, old := range d.mutations[:over] {
			delete(d.byID, old.ID)
		}
		d.mutations = append([]*Mutation(nil), d.mutations[over:]...)
	}
	d.mu.Unlock()
	return m
}

// launch issues the backend calls of a mutation in order on a background
// goroutine. In-flight calls are not cancelled with the caller's context.
// After a failure, kinds that roll back stop and undo the remaining steps;
// the others keep their optimistic state and issue the remaining calls.
func (d *Dispatcher) launch(ctx context.Context, m *Mutation, steps []remoteStep) {
	if len(steps) == 0 {
		d.settle(ctx, m, nil, 0)
		return
	}
	bg := context.WithoutCancel(ctx)
	env := stepEnv{api: d.api, ids: d.ids}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		var failed error
		stale := 0
		for i, step := range steps {
			res, err := step.call(bg, env)
			if err != nil {
				d.logger.Warn("backend call failed", "mutation_id", m.ID, "key", step.key, "error", err)
				if failed == nil {
					failed = err
				}
				if Reconcile(m.Kind, err).Rollback {
					d.rollbackSteps(steps[i:])
					break
				}
				continue
			}
			if step.creates != "" {
				if res.remoteID != "" {
					d.store.Rekey(step.key, analysisKey(res.remoteID), step.seq, res.merge)
				}
				d.ids.finish(step.creates, res.remoteID)
				continue
			}
			if res.merge == nil {
				continue
			}
			key := d.ids.key(step.key)
			if !d.store.Merge(key, step.seq, func(st *domain.State) { res.merge(st, true) }) {
				stale++
				d.logger.Debug("stale backend response dropped", "mutation_id", m.ID, "key", key)
			}
		}
		for _, step := range steps {
			if step.creates != "" {
				d.ids.finish(step.creates, "")
			}
		}
		d.settle(bg, m, failed, stale)
	}()
}

func (d *Dispatcher) rollbackSteps(steps []remoteStep) {
	var undo []func(*domain.State)
	for _, s := range steps {
		if s.rollback != nil {
			undo = append(undo, s.rollback)
		}
	}
	if len(undo) == 0 {
		return
	}
	_ = d.store.Mutate(func(tx *Txn) error {
		for _, fn := range undo {
			fn(&tx.State)
		}
		return nil
	})
}

func (d *Dispatcher) settle(ctx context.Context, m *Mutation, err error, stale int) {
	outcome := Reconcile(m.Kind, err)
	d.mu.Lock()
	m.State = outcome.State
	m.Stale = stale
	m.SettledAt = d.clock.Now().UTC()
	if err != nil {
		m.Error = err.Error()
	}
	d.mu.Unlock()
	if obs, ok := d.metrics.(MutationObserver); ok {
		obs.ObserveMutation(ctx, m.Kind, outcome.State, stale)
	}

	evt := Event{MutationID: m.ID, Kind: m.Kind, EntityID: m.EntityID}
	switch outcome.State {
	case MutationApplied:
		evt.Type = EventMutationApplied
		d.logger.Info("mutation applied", "mutation_id", m.ID, "op", m.Kind, "entity_id", m.EntityID)
	case MutationRolledBack:
		evt.Type = EventMutationRolledBack
		d.undo.Remove(m.ID)
		d.persist(ctx, m.ID)
		d.logger.Error("mutation rolled back", "mutation_id", m.ID, "op", m.Kind, "entity_id", m.EntityID, "error", err)
		d.notify(NoticeError, string(m.Kind), m.ID, fmt.Sprintf("%s %s was reverted: %v", m.Kind, m.EntityID, err))
	default:
		evt.Type = EventMutationFailed
		d.logger.Error("mutation failed", "mutation_id", m.ID, "op", m.Kind, "entity_id", m.EntityID, "error", err)
		d.notify(NoticeError, string(m.Kind), m.ID, fmt.Sprintf("%s %s was not saved: %v", m.Kind, m.EntityID, err))
	}
	d.store.Emit(evt)
}

func (d *Dispatcher) notify(sev NoticeSeverity, op, mutationID, msg string) {
	n := Notice{Severity: sev, Operation: op, MutationID: mutationID, Message: msg, At: d.clock.Now().UTC()}
	d.notices.add(n)
	d.store.Emit(Event{Type: EventNotice, MutationID: mutationID, Notice: &n})
}

// persist writes the override buckets to the state store. Failures become
// warning notices.
func (d *Dispatcher) persist(ctx context.Context, mutationID string) {
	if d.states == nil {
		return
	}
	d.persistMu.Lock()
	defer d.persistMu.Unlock()
	buckets, err := d.store.Overrides().EncodeBuckets()
	if err == nil {
		err = d.states.Save(ctx, buckets)
	}
	if err != nil {
		d.logger.Error("persist client state failed", "mutation_id", mutationID, "error", err)
		d.notify(NoticeWarning, "persist", mutationID, fmt.Sprintf("client state not saved: %v", err))
	}
}

// Load fetches the canonical collections and the persisted overrides. A
// backend failure falls back to the built-in dataset.
func (d *Dispatcher) Load(ctx context.Context) error {
	return d.run(ctx, "load", "", func(ctx context.Context) (string, error) {
		ds, err := backend.FetchAll(ctx, d.api)
		if err != nil {
			d.logger.Warn("initial load failed, using built-in dataset", "error", err)
			d.notify(NoticeWarning, "load", "", fmt.Sprintf("backend unavailable, showing built-in dataset: %v", err))
			if ds, err = backend.Fallback(); err != nil {
				return "", err
			}
		}
		d.store.ReplaceCanonical(ds.State())
		if d.states != nil {
			if err := d.loadOverrides(ctx); err != nil {
				d.logger.Warn("client state unavailable", "error", err)
				d.notify(NoticeWarning, "load", "", fmt.Sprintf("client state not restored: %v", err))
			}
		}
		if methods, err := d.api.GetFilterMethods(ctx); err != nil {
			d.logger.Warn("filter methods unavailable", "error", err)
		} else {
			d.setFilterMethods(methods)
		}
		d.store.Emit(Event{Type: EventLoaded})
		return "", nil
	})
}

func (d *Dispatcher) loadOverrides(ctx context.Context) error {
	buckets, err := d.states.Load(ctx)
	if err != nil {
		return err
	}
	o, err := domain.DecodeOverrides(buckets)
	if err != nil {
		return err
	}
	d.store.SetOverrides(o)
	return nil
}

// Refresh replaces the canonical collections with the backend's current
// state. Overrides are kept.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	return d.run(ctx, "refresh", "", func(ctx context.Context) (string, error) {
		ds, err := backend.FetchAll(ctx, d.api)
		if err != nil {
			d.notify(NoticeWarning, "refresh", "", fmt.Sprintf("refresh failed: %v", err))
			return "", fmt.Errorf("refresh: %w", err)
		}
		d.store.ReplaceCanonical(ds.State())
		return "", nil
	})
}

// Undo reverts the most recent recorded mutation.
func (d *Dispatcher) Undo(ctx context.Context) (Mutation, error) {
	var m Mutation
	err := d.run(ctx, string(ActionUndo), "", func(ctx context.Context) (string, error) {
		rec, ok := d.undo.Pop()
		if !ok {
			return "", domain.ErrUndoEmpty
		}
		entityID := rec.Meta().EntityID
		if r, ok := rec.(*AnalysisUndo); ok {
			for i := range r.Prior {
				r.Prior[i].ID = d.ids.current(r.Prior[i].ID)
			}
		}
		var steps []remoteStep
		if err := d.store.Mutate(func(tx *Txn) error {
			for _, step := range applyUndo(&tx.State, rec) {
				step.seq = tx.Bump(step.key)
				steps = append(steps, step)
			}
			return nil
		}); err != nil {
			return "", err
		}
		tracked := d.track(ActionUndo, "", entityID)
		m = *tracked
		d.logger.Info("undo applied", "mutation_id", m.ID, "undone", rec.Meta().MutationID, "tag", rec.Tag())
		d.persist(ctx, m.ID)
		d.launch(ctx, tracked, steps)
		return entityID, nil
	})
	return m, err
}

// UndoDepth returns the number of undoable mutations.
func (d *Dispatcher) UndoDepth() int { return d.undo.Len() }

// UndoRecords returns the undo log newest first.
func (d *Dispatcher) UndoRecords() []UndoRecord { return d.undo.Records() }

// Mutations lists recent mutations newest first.
func (d *Dispatcher) Mutations() []Mutation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Mutation, 0, len(d.mutations))
	for i := len(d.mutations) - 1; i >= 0; i-- {
		out = append(out, *d.mutations[i])
	}
	return out
}

// Mutation returns a tracked mutation by id.
func (d *Dispatcher) Mutation(id string) (Mutation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.byID[id]
	if !ok {
		return Mutation{}, false
	}
	return *m, true
}

// Notices lists notices newest first.
func (d *Dispatcher) Notices() []Notice { return d.notices.list() }

// Board projects the current state for role.
func (d *Dispatcher) Board(role domain.Role, q board.Query) board.Board {
	return board.Project(d.store.Snapshot(), role, q)
}

// SortPreference returns the stored sort preference of a user on a role board.
func (d *Dispatcher) SortPreference(role domain.Role, user string) (domain.SortPreference, bool) {
	pref, ok := d.store.Overrides().SortPrefs[domain.SortPrefKey(role, user)]
	return pref, ok
}

// SetSortPreference stores a user's board ordering.
func (d *Dispatcher) SetSortPreference(ctx context.Context, role domain.Role, user string, pref domain.SortPreference) error {
	return d.run(ctx, "set_sort_preference", role, func(ctx context.Context) (string, error) {
		if !role.Valid() {
			return "", domain.ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
		}
		if strings.TrimSpace(user) == "" {
			return "", domain.ValidationError{Field: "user", Reason: "user is required"}
		}
		switch pref.Key {
		case domain.SortNone, domain.SortSampleID, domain.SortSamplingDate, domain.SortCompleted:
		default:
			return "", domain.ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort key %q", pref.Key)}
		}
		if err := d.store.Mutate(func(tx *Txn) error {
			tx.State.Overrides.SortPrefs[domain.SortPrefKey(role, user)] = pref
			return nil
		}); err != nil {
			return "", err
		}
		d.persist(ctx, "")
		return user, nil
	})
}

// FilterMethods returns the shared method filter list.
func (d *Dispatcher) FilterMethods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.filterMethods...)
}

func (d *Dispatcher) setFilterMethods(methods []string) {
	d.mu.Lock()
	d.filterMethods = cleanNames(methods)
	d.mu.Unlock()
}

// SetFilterMethods saves the shared method filter list on the backend.
func (d *Dispatcher) SetFilterMethods(ctx context.Context, methods []string) error {
	return d.run(ctx, "set_filter_methods", "", func(ctx context.Context) (string, error) {
		cleaned := cleanNames(methods)
		if err := d.api.PutFilterMethods(ctx, cleaned); err != nil {
			return "", fmt.Errorf("save filter methods: %w", err)
		}
		d.setFilterMethods(cleaned)
		return "", nil
	})
}

// Users lists backend accounts.
func (d *Dispatcher) Users(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := d.run(ctx, "list_users", domain.RoleAdmin, func(ctx context.Context) (string, error) {
		var err error
		users, err = d.api.ListUsers(ctx)
		return "", err
	})
	return users, err
}

// UpdateUserRoles replaces the roles of a backend account.
func (d *Dispatcher) UpdateUserRoles(ctx context.Context, id string, roles []string) (domain.User, error) {
	var user domain.User
	err := d.run(ctx, "update_user_roles", domain.RoleAdmin, func(ctx context.Context) (string, error) {
		if strings.TrimSpace(id) == "" {
			return "", domain.ValidationError{Field: "id", Reason: "user id is required"}
		}
		for _, r := range roles {
			if !domain.Role(r).Valid() {
				return id, domain.ValidationError{Field: "roles", Reason: fmt.Sprintf("unknown role %q", r)}
			}
		}
		var err error
		user, err = d.api.UpdateUserRoles(ctx, id, roles)
		return id, err
	})
	return user, err
}

// cleanNames trims names and drops blanks and case-insensitive duplicates.
func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if domain.SameMethod(seen, n) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, n)
		}
	}
	return out
}
