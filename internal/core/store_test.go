package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"sampleflow/pkg/domain"
)

func TestStoreMutateCommitsOnlyOnSuccess(t *testing.T) {
	s := NewStore()
	if err := s.Mutate(func(tx *Txn) error {
		tx.State.Samples["S-1"] = domain.Sample{SampleID: "S-1", Status: domain.SampleStatusNew}
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	boom := errors.New("boom")
	err := s.Mutate(func(tx *Txn) error {
		delete(tx.State.Samples, "S-1")
		tx.State.Overrides.Comments["S-1"] = []domain.Comment{{Text: "lost"}}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	snap := s.Snapshot()
	if _, ok := snap.Samples["S-1"]; !ok {
		t.Fatalf("failed mutate must not remove the sample")
	}
	if len(snap.Overrides.Comments) != 0 {
		t.Fatalf("failed mutate must not leak override writes")
	}
}

func TestStoreMergeDropsStaleSequences(t *testing.T) {
	s := NewStore()
	key := sampleKey("S-1")
	var first, second uint64
	_ = s.Mutate(func(tx *Txn) error {
		tx.State.Samples["S-1"] = domain.Sample{SampleID: "S-1", Horizon: "a"}
		first = tx.Bump(key)
		return nil
	})
	_ = s.Mutate(func(tx *Txn) error {
		second = tx.Bump(key)
		return nil
	})
	if first != 1 || second != 2 {
		t.Fatalf("expected sequences 1 and 2, got %d and %d", first, second)
	}
	if s.Merge(key, first, func(st *domain.State) { st.Samples["S-1"] = domain.Sample{SampleID: "S-1", Horizon: "stale"} }) {
		t.Fatalf("expected stale merge to be rejected")
	}
	if !s.Merge(key, second, func(st *domain.State) { st.Samples["S-1"] = domain.Sample{SampleID: "S-1", Horizon: "fresh"} }) {
		t.Fatalf("expected latest merge to apply")
	}
	if got := s.Snapshot().Samples["S-1"].Horizon; got != "fresh" {
		t.Fatalf("expected fresh horizon, got %q", got)
	}
}

func TestStoreBumpDiscardedWithFailedMutate(t *testing.T) {
	s := NewStore()
	key := conflictKey("C-1")
	_ = s.Mutate(func(tx *Txn) error {
		tx.Bump(key)
		return errors.New("rejected")
	})
	var seq uint64
	_ = s.Mutate(func(tx *Txn) error {
		seq = tx.Bump(key)
		return nil
	})
	if seq != 1 {
		t.Fatalf("expected rejected bump to be discarded, got seq %d", seq)
	}
}

func TestStoreReplaceCanonicalKeepsOverrides(t *testing.T) {
	s := NewStore()
	o := domain.NewOverrides()
	o.LabStatus["S-1"] = domain.SampleStatusReview
	s.SetOverrides(o)
	next := domain.NewState()
	next.Samples["S-2"] = domain.Sample{SampleID: "S-2"}
	s.ReplaceCanonical(next)
	snap := s.Snapshot()
	if _, ok := snap.Samples["S-2"]; !ok {
		t.Fatalf("expected canonical replacement")
	}
	if snap.Overrides.LabStatus["S-1"] != domain.SampleStatusReview {
		t.Fatalf("expected overrides to survive replacement")
	}
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	s := NewStore()
	_ = s.Mutate(func(tx *Txn) error {
		tx.State.Analyses["A-1"] = domain.PlannedAnalysis{ID: "A-1", AssignedTo: []string{"Petrov"}}
		return nil
	})
	snap := s.Snapshot()
	snap.Analyses["A-1"].AssignedTo[0] = "changed"
	if got := s.Snapshot().Analyses["A-1"].AssignedTo[0]; got != "Petrov" {
		t.Fatalf("snapshot shares memory with store: %q", got)
	}
}

func TestEventBusFilterAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	var all, notices int
	allID := bus.Subscribe(func(Event) { all++ })
	bus.Subscribe(func(evt Event) {
		notices++
		if evt.Timestamp.IsZero() {
			t.Errorf("expected emit to stamp events")
		}
	}, EventNotice)
	bus.Emit(Event{Type: EventStateChanged})
	bus.Emit(Event{Type: EventNotice})
	bus.Unsubscribe(allID)
	bus.Emit(Event{Type: EventNotice})
	if all != 2 {
		t.Fatalf("expected 2 events before unsubscribe, got %d", all)
	}
	if notices != 2 {
		t.Fatalf("expected 2 notice events, got %d", notices)
	}
}

func TestStoreMutateEmitsStateChanged(t *testing.T) {
	s := NewStore()
	var changed int
	s.Subscribe(func(Event) { changed++ }, EventStateChanged)
	_ = s.Mutate(func(*Txn) error { return nil })
	_ = s.Mutate(func(*Txn) error { return errors.New("no") })
	if changed != 1 {
		t.Fatalf("expected one state change, got %d", changed)
	}
}

func TestStoreRekeyAppliesWhenStaleAndCarriesSequence(t *testing.T) {
	s := NewStore()
	from, to := analysisKey("local-1"), analysisKey("A-1")
	var create, toggle uint64
	_ = s.Mutate(func(tx *Txn) error {
		create = tx.Bump(from)
		return nil
	})
	_ = s.Mutate(func(tx *Txn) error {
		toggle = tx.Bump(from)
		return nil
	})
	var fresh bool
	applied := false
	s.Rekey(from, to, create, func(_ *domain.State, f bool) {
		applied, fresh = true, f
	})
	if !applied || fresh {
		t.Fatalf("expected stale rekey to apply with fresh=false, got applied=%v fresh=%v", applied, fresh)
	}
	if !s.Merge(to, toggle, func(*domain.State) {}) {
		t.Fatalf("expected the newer sequence to carry over to the new key")
	}
	if s.Merge(to, create, func(*domain.State) {}) {
		t.Fatalf("expected older sequence to stay stale under the new key")
	}
}

func TestLocalIDsHoldUntilFinished(t *testing.T) {
	ids := newLocalIDs()
	ids.begin("local-1")
	got := make(chan string, 1)
	go func() {
		id, _ := ids.resolve(context.Background(), "local-1")
		got <- id
	}()
	select {
	case id := <-got:
		t.Fatalf("resolve returned %q before the create settled", id)
	case <-time.After(20 * time.Millisecond):
	}
	ids.finish("local-1", "A-1")
	ids.finish("local-1", "A-2")
	if id := <-got; id != "A-1" {
		t.Fatalf("expected A-1, got %q", id)
	}
	if k := ids.key(analysisKey("local-1")); k != analysisKey("A-1") {
		t.Fatalf("expected key to follow the backend id, got %q", k)
	}
	if k := ids.key(sampleKey("S-1")); k != sampleKey("S-1") {
		t.Fatalf("sample keys must not change, got %q", k)
	}

	ids.begin("local-2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ids.resolve(ctx, "local-2"); err == nil {
		t.Fatalf("expected cancelled resolve to fail")
	}
	ids.finish("local-2", "")
	if id, err := ids.resolve(context.Background(), "local-2"); err != nil || id != "local-2" {
		t.Fatalf("failed create keeps the local id, got %q %v", id, err)
	}
}
