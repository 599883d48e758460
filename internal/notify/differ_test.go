package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"sampleflow/internal/board"
	"sampleflow/pkg/domain"
)

type captureStore struct {
	saved map[string][]byte
	err   error
	calls int
}

func (c *captureStore) Load(context.Context) (map[string][]byte, error) { return c.saved, nil }
func (c *captureStore) Close() error                                     { return nil }
func (c *captureStore) Save(_ context.Context, buckets map[string][]byte) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	if c.saved == nil {
		c.saved = map[string][]byte{}
	}
	for k, v := range buckets {
		c.saved[k] = v
	}
	return nil
}

func adminBoard(issues ...string) board.Board {
	col := board.Column{ID: board.AdminIssues}
	for _, id := range issues {
		col.Cards = append(col.Cards, board.Card{ID: id, Kind: board.KindSample, Column: board.AdminIssues})
	}
	return board.Board{Role: domain.RoleAdmin, Columns: []board.Column{
		{ID: board.AdminNeedsAttention},
		col,
	}}
}

func summaryFor(t *testing.T, sums []InboxSummary, inbox Inbox) InboxSummary {
	t.Helper()
	for _, s := range sums {
		if s.Inbox == inbox {
			return s
		}
	}
	t.Fatalf("inbox %s missing from %+v", inbox, sums)
	return InboxSummary{}
}

func TestMarkAllReadClearsUnread(t *testing.T) {
	ctx := context.Background()
	store := &captureStore{}
	d := NewDiffer(nil, store)
	sums, err := d.Observe(ctx, adminBoard("S-1", "S-2"))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if got := summaryFor(t, sums, InboxAdminIssues).Count; got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}
	if err := d.MarkAllRead(ctx, InboxAdminIssues); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if got := d.Unread(InboxAdminIssues); got != 0 {
		t.Fatalf("expected 0 unread after mark all read, got %d", got)
	}
	var persisted ReadState
	if err := json.Unmarshal(store.saved[domain.BucketReadState], &persisted); err != nil {
		t.Fatalf("decode persisted read state: %v", err)
	}
	if !persisted[InboxAdminIssues]["S-1"] || !persisted[InboxAdminIssues]["S-2"] {
		t.Fatalf("read state not persisted: %+v", persisted)
	}
}

func TestReenteringInboxIsUnreadAgain(t *testing.T) {
	ctx := context.Background()
	d := NewDiffer(nil, nil)
	if _, err := d.Observe(ctx, adminBoard("S-1")); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := d.MarkRead(ctx, InboxAdminIssues, "S-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if d.Unread(InboxAdminIssues) != 0 {
		t.Fatalf("expected read")
	}
	if _, err := d.Observe(ctx, adminBoard()); err != nil {
		t.Fatalf("observe empty: %v", err)
	}
	sums, err := d.Observe(ctx, adminBoard("S-1"))
	if err != nil {
		t.Fatalf("observe re-entry: %v", err)
	}
	s := summaryFor(t, sums, InboxAdminIssues)
	if s.Count != 1 || s.Unread[0] != "S-1" {
		t.Fatalf("expected S-1 unread after re-entry, got %+v", s)
	}
}

func TestBaselineKeepsPersistedReadFlags(t *testing.T) {
	buckets := map[string][]byte{domain.BucketReadState: []byte(`{"admin-issues":{"S-1":true}}`)}
	read, err := DecodeReadState(buckets)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := NewDiffer(read, nil)
	sums, err := d.Observe(context.Background(), adminBoard("S-1", "S-2"))
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	s := summaryFor(t, sums, InboxAdminIssues)
	if s.Count != 1 || s.Unread[0] != "S-2" {
		t.Fatalf("expected persisted read flag to survive reload, got %+v", s)
	}
}

func TestObservePersistFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := &captureStore{}
	d := NewDiffer(ReadState{InboxAdminIssues: {"S-1": true}}, store)
	if _, err := d.Observe(ctx, adminBoard("S-1")); err != nil {
		t.Fatalf("baseline observe: %v", err)
	}
	store.err = errors.New("disk full")
	if _, err := d.Observe(ctx, adminBoard()); err == nil {
		t.Fatalf("expected persistence error when read state changes")
	}
}

func TestMembershipPerRole(t *testing.T) {
	lab := board.Board{Role: domain.RoleLab, Columns: []board.Column{
		{ID: "new", Cards: []board.Card{{ID: "S-1", Column: "new"}, {ID: "S-2", Column: "new", ReturnedFromAdmin: true}}},
		{ID: "progress", Cards: []board.Card{{ID: "S-3", Column: "progress", ReturnedFromAdmin: true}}},
	}}
	m := Membership(lab)
	if len(m[InboxLabPlanned]) != 2 || len(m[InboxLabReturned]) != 2 {
		t.Fatalf("unexpected lab membership %+v", m)
	}

	action := board.Board{Role: domain.RoleActionSupervision, Columns: []board.Column{
		{ID: "new", Cards: []board.Card{{ID: "B-1", Kind: board.KindBatch, Column: "new"}}},
		{ID: "progress", Cards: []board.Card{
			{ID: "C-1", Kind: board.KindConflict, Column: "progress", Conflict: &domain.Conflict{ID: "C-1", Status: domain.ConflictOpen}},
			{ID: "B-2", Kind: board.KindBatch, Column: "progress"},
		}},
	}}
	m = Membership(action)
	if len(m[InboxActionUploaded]) != 1 || m[InboxActionConflict][0] != "C-1" {
		t.Fatalf("unexpected action membership %+v", m)
	}
}

func TestOpenMarksReadAndReturnsCard(t *testing.T) {
	ctx := context.Background()
	d := NewDiffer(nil, nil)
	b := adminBoard("S-1")
	if _, err := d.Observe(ctx, b); err != nil {
		t.Fatalf("observe: %v", err)
	}
	card, err := d.Open(ctx, b, InboxAdminIssues, "S-1")
	if err != nil || card.ID != "S-1" {
		t.Fatalf("open = %+v, %v", card, err)
	}
	if d.Unread(InboxAdminIssues) != 0 {
		t.Fatalf("expected opened notification to be read")
	}
	if _, err := d.Open(ctx, b, InboxAdminIssues, "missing"); err == nil {
		t.Fatalf("expected not found for unknown card")
	}
	if role, ok := InboxAdminIssues.Role(); !ok || role != domain.RoleAdmin {
		t.Fatalf("unexpected inbox role %s", role)
	}
}
