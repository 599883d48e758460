package core

import (
	"errors"
	"testing"
)

func TestReconcile(t *testing.T) {
	failure := errors.New("502 bad gateway")
	cases := []struct {
		kind     ActionKind
		err      error
		state    MutationState
		rollback bool
	}{
		{ActionMoveCard, nil, MutationApplied, false},
		{ActionCreateSample, nil, MutationApplied, false},
		{ActionCreateSample, failure, MutationRolledBack, true},
		{ActionPlanAnalysis, failure, MutationRolledBack, true},
		{ActionUpdateSampleField, failure, MutationFailed, false},
		{ActionResolveConflict, failure, MutationFailed, false},
		{ActionUndo, failure, MutationFailed, false},
	}
	for _, tc := range cases {
		got := Reconcile(tc.kind, tc.err)
		if got.State != tc.state || got.Rollback != tc.rollback {
			t.Fatalf("%s/%v: expected %s rollback=%v, got %+v", tc.kind, tc.err, tc.state, tc.rollback, got)
		}
	}
}

func TestMutationSettled(t *testing.T) {
	if (Mutation{State: MutationPending}).Settled() {
		t.Fatalf("pending mutation is not settled")
	}
	if !(Mutation{State: MutationFailed}).Settled() {
		t.Fatalf("failed mutation is settled")
	}
}

func TestNoticeListKeepsNewestWithinCapacity(t *testing.T) {
	l := newNoticeList(2)
	l.add(Notice{Message: "one"})
	l.add(Notice{Message: "two"})
	l.add(Notice{Message: "three"})
	got := l.list()
	if len(got) != 2 || got[0].Message != "three" || got[1].Message != "two" {
		t.Fatalf("unexpected notices %+v", got)
	}
}
