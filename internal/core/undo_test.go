package core

import (
	"reflect"
	"testing"
	"time"

	"sampleflow/pkg/domain"
)

func stamped(rec UndoRecord, id string) UndoRecord {
	rec.stamp(id, time.Unix(0, 0))
	return rec
}

func TestUndoLogCapacityDropsOldest(t *testing.T) {
	l := NewUndoLog(2)
	l.Push(stamped(&LabOverrideUndo{UndoMeta: meta("S-1")}, "m1"))
	l.Push(stamped(&LabOverrideUndo{UndoMeta: meta("S-2")}, "m2"))
	l.Push(stamped(&LabOverrideUndo{UndoMeta: meta("S-3")}, "m3"))
	if l.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", l.Len())
	}
	recs := l.Records()
	if recs[0].Meta().MutationID != "m3" || recs[1].Meta().MutationID != "m2" {
		t.Fatalf("expected newest first without m1, got %s, %s", recs[0].Meta().MutationID, recs[1].Meta().MutationID)
	}
	rec, ok := l.Pop()
	if !ok || rec.Meta().EntityID != "S-3" {
		t.Fatalf("expected to pop S-3, got %+v", rec)
	}
}

func TestUndoLogRemove(t *testing.T) {
	l := NewUndoLog(0)
	l.Push(stamped(&CreationUndo{UndoMeta: meta("S-1")}, "m1"))
	l.Push(stamped(&ConflictUndo{UndoMeta: meta("C-1")}, "m2"))
	if !l.Remove("m1") {
		t.Fatalf("expected m1 to be removed")
	}
	if l.Remove("m1") {
		t.Fatalf("second remove must report false")
	}
	rec, _ := l.Pop()
	if rec.Tag() != UndoConflict {
		t.Fatalf("expected conflict record, got %s", rec.Tag())
	}
	if _, ok := l.Pop(); ok {
		t.Fatalf("expected empty log")
	}
}

func undoFixture() domain.State {
	st := domain.NewState()
	st.Samples["S-1"] = domain.Sample{SampleID: "S-1", Horizon: "new", Status: domain.SampleStatusDone}
	st.Analyses["A-1"] = domain.PlannedAnalysis{ID: "A-1", SampleID: "S-1", AnalysisType: "IR", Status: domain.AnalysisCompleted, AssignedTo: []string{"Petrov"}}
	st.Conflicts["C-1"] = domain.Conflict{ID: "C-1", Status: domain.ConflictResolved, ResolutionNote: "kept new"}
	o := st.Overrides
	o.LabStatus["S-1"] = domain.SampleStatusDone
	o.IssueReasons["S-1"] = []string{"cracked", "leaking"}
	o.AdminReturnNotes["S-1"] = []string{"recheck"}
	o.WarehouseReturned["S-1"] = true
	o.AdminStored["S-1"] = domain.StoredFlag{Source: domain.StoredFromIssues}
	o.Deleted["S-1"] = domain.DeletedInfo{Reason: "dup", PrevStatus: domain.SampleStatusDone}
	return st
}

func TestApplyUndoRestoresSnapshotsAndIsIdempotent(t *testing.T) {
	review := domain.SampleStatusReview
	records := []UndoRecord{
		&SampleFieldsUndo{UndoMeta: meta("S-1"), Prior: domain.Sample{SampleID: "S-1", Horizon: "old", Status: domain.SampleStatusReview}},
		&AnalysisUndo{
			UndoMeta:      meta("S-1"),
			Prior:         []domain.PlannedAnalysis{{ID: "A-1", SampleID: "S-1", AnalysisType: "IR", Status: domain.AnalysisPlanned, AssignedTo: []string{"Petrov"}}},
			Lab:           labSnapshot{},
			Status:        domain.SampleStatusReview,
			StatusTouched: true,
		},
		&AdminStoredUndo{UndoMeta: meta("S-1")},
		&LabOverrideUndo{UndoMeta: meta("S-1"), Lab: labSnapshot{Status: &review, Returned: true}},
		&DeleteRestoreUndo{UndoMeta: meta("S-1"), Status: domain.SampleStatusProgress, StatusTouched: true},
		&AdminReturnNotesUndo{UndoMeta: meta("S-1"), Status: domain.SampleStatusDone, StatusTouched: true},
		&IssueReasonsUndo{UndoMeta: meta("S-1"), Reasons: []string{"cracked"}},
		&ConflictUndo{UndoMeta: meta("C-1"), Prior: domain.Conflict{ID: "C-1", Status: domain.ConflictOpen}},
	}
	for _, rec := range records {
		t.Run(string(rec.Tag()), func(t *testing.T) {
			st := undoFixture()
			applyUndo(&st, rec)
			once := st.Clone()
			applyUndo(&st, rec)
			if !reflect.DeepEqual(once, st.Clone()) {
				t.Fatalf("second apply changed state")
			}
		})
	}
}

func TestApplyUndoVariants(t *testing.T) {
	t.Run("sample fields", func(t *testing.T) {
		st := undoFixture()
		steps := applyUndo(&st, &SampleFieldsUndo{UndoMeta: meta("S-1"), Prior: domain.Sample{SampleID: "S-1", Horizon: "old", Status: domain.SampleStatusReview}})
		if st.Samples["S-1"].Horizon != "old" || len(steps) != 1 || steps[0].key != sampleKey("S-1") {
			t.Fatalf("unexpected result %+v steps=%d", st.Samples["S-1"], len(steps))
		}
	})
	t.Run("creation removes sample and its analyses", func(t *testing.T) {
		st := undoFixture()
		st.Overrides.CreatedMarkers["S-1"] = true
		steps := applyUndo(&st, &CreationUndo{UndoMeta: meta("S-1")})
		if _, ok := st.Samples["S-1"]; ok {
			t.Fatalf("expected sample removal")
		}
		if len(st.Analyses) != 0 || st.Overrides.CreatedMarkers["S-1"] {
			t.Fatalf("expected analyses and marker removal")
		}
		if len(steps) != 1 {
			t.Fatalf("expected delete call, got %d steps", len(steps))
		}
		if steps := applyUndo(&st, &CreationUndo{UndoMeta: meta("S-1")}); len(steps) != 0 {
			t.Fatalf("second apply must not issue calls")
		}
	})
	t.Run("analysis restores status and lab bundle", func(t *testing.T) {
		st := undoFixture()
		steps := applyUndo(&st, &AnalysisUndo{
			UndoMeta:      meta("S-1"),
			Prior:         []domain.PlannedAnalysis{{ID: "A-1", SampleID: "S-1", AnalysisType: "IR", Status: domain.AnalysisPlanned}},
			Status:        domain.SampleStatusReview,
			StatusTouched: true,
		})
		if st.Analyses["A-1"].Status != domain.AnalysisPlanned {
			t.Fatalf("expected planned analysis, got %s", st.Analyses["A-1"].Status)
		}
		if _, ok := st.Overrides.LabStatus["S-1"]; ok {
			t.Fatalf("expected lab override cleared")
		}
		if st.Samples["S-1"].Status != domain.SampleStatusReview {
			t.Fatalf("expected status review, got %s", st.Samples["S-1"].Status)
		}
		if len(steps) != 2 {
			t.Fatalf("expected analysis and sample calls, got %d", len(steps))
		}
	})
	t.Run("delete restore", func(t *testing.T) {
		st := undoFixture()
		flag := domain.StoredFlag{Source: domain.StoredFromNeedsAttention}
		steps := applyUndo(&st, &DeleteRestoreUndo{UndoMeta: meta("S-1"), Stored: &flag, Status: domain.SampleStatusDone})
		if _, ok := st.Overrides.Deleted["S-1"]; ok {
			t.Fatalf("expected deleted flag cleared")
		}
		if st.Overrides.AdminStored["S-1"].Source != domain.StoredFromNeedsAttention {
			t.Fatalf("expected stored flag restored")
		}
		if len(steps) != 0 {
			t.Fatalf("status untouched, expected no calls, got %d", len(steps))
		}
	})
	t.Run("admin return notes", func(t *testing.T) {
		st := undoFixture()
		applyUndo(&st, &AdminReturnNotesUndo{UndoMeta: meta("S-1")})
		if _, ok := st.Overrides.AdminReturnNotes["S-1"]; ok {
			t.Fatalf("expected notes cleared")
		}
		if st.Overrides.WarehouseReturned["S-1"] {
			t.Fatalf("expected warehouse returned flag cleared")
		}
	})
	t.Run("issue reasons", func(t *testing.T) {
		st := undoFixture()
		applyUndo(&st, &IssueReasonsUndo{UndoMeta: meta("S-1"), Reasons: []string{"cracked"}})
		if got := st.Overrides.IssueReasons["S-1"]; len(got) != 1 || got[0] != "cracked" {
			t.Fatalf("unexpected reasons %v", got)
		}
	})
	t.Run("conflict", func(t *testing.T) {
		st := undoFixture()
		steps := applyUndo(&st, &ConflictUndo{UndoMeta: meta("C-1"), Prior: domain.Conflict{ID: "C-1", Status: domain.ConflictOpen}})
		if st.Conflicts["C-1"].Status != domain.ConflictOpen || st.Conflicts["C-1"].ResolutionNote != "" {
			t.Fatalf("unexpected conflict %+v", st.Conflicts["C-1"])
		}
		if len(steps) != 1 || steps[0].key != conflictKey("C-1") {
			t.Fatalf("expected one conflict call")
		}
	})
}
