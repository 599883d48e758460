// Package notify tracks per-inbox unread counts by diffing board membership
// against a persisted read set.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"sampleflow/internal/board"
	"sampleflow/pkg/domain"
)

// Inbox names a role-specific subset of cards tracked for read state.
type Inbox string

// Known inboxes.
const (
	InboxLabPlanned          Inbox = "lab-planned"
	InboxLabReturned         Inbox = "lab-returned"
	InboxWarehouseReturned   Inbox = "warehouse-returned"
	InboxAdminIssues         Inbox = "admin-issues"
	InboxAdminNeedsAttention Inbox = "admin-needs-attention"
	InboxActionUploaded      Inbox = "action-uploaded"
	InboxActionConflict      Inbox = "action-conflict"
)

var roleInboxes = map[domain.Role][]Inbox{
	domain.RoleWarehouse:         {InboxWarehouseReturned},
	domain.RoleLab:               {InboxLabPlanned, InboxLabReturned},
	domain.RoleAdmin:             {InboxAdminIssues, InboxAdminNeedsAttention},
	domain.RoleActionSupervision: {InboxActionUploaded, InboxActionConflict},
}

// Inboxes returns the inboxes tracked for a role.
func Inboxes(role domain.Role) []Inbox {
	return append([]Inbox(nil), roleInboxes[role]...)
}

// Role returns the role owning the inbox.
func (i Inbox) Role() (domain.Role, bool) {
	for role, inboxes := range roleInboxes {
		for _, candidate := range inboxes {
			if candidate == i {
				return role, true
			}
		}
	}
	return "", false
}

// Membership derives current inbox membership from an unfiltered board.
func Membership(b board.Board) map[Inbox][]string {
	out := make(map[Inbox][]string)
	for _, inbox := range roleInboxes[b.Role] {
		out[inbox] = []string{}
	}
	for _, c := range b.Cards() {
		switch b.Role {
		case domain.RoleWarehouse:
			if c.ReturnedFromAdmin {
				out[InboxWarehouseReturned] = append(out[InboxWarehouseReturned], c.ID)
			}
		case domain.RoleLab:
			if c.Column == string(domain.SampleStatusNew) {
				out[InboxLabPlanned] = append(out[InboxLabPlanned], c.ID)
			}
			if c.ReturnedFromAdmin {
				out[InboxLabReturned] = append(out[InboxLabReturned], c.ID)
			}
		case domain.RoleAdmin:
			switch c.Column {
			case board.AdminIssues:
				out[InboxAdminIssues] = append(out[InboxAdminIssues], c.ID)
			case board.AdminNeedsAttention:
				out[InboxAdminNeedsAttention] = append(out[InboxAdminNeedsAttention], c.ID)
			}
		case domain.RoleActionSupervision:
			if c.Kind == board.KindBatch && c.Column == string(domain.SampleStatusNew) {
				out[InboxActionUploaded] = append(out[InboxActionUploaded], c.ID)
			}
			if c.Kind == board.KindConflict && c.Conflict != nil && c.Conflict.Status == domain.ConflictOpen {
				out[InboxActionConflict] = append(out[InboxActionConflict], c.ID)
			}
		}
	}
	return out
}

// ReadState is the persisted set of read ids per inbox.
type ReadState map[Inbox]map[string]bool

// DecodeReadState extracts the read-state bucket from persisted buckets.
func DecodeReadState(buckets map[string][]byte) (ReadState, error) {
	rs := ReadState{}
	raw, ok := buckets[domain.BucketReadState]
	if !ok || len(raw) == 0 {
		return rs, nil
	}
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("decode read state: %w", err)
	}
	if rs == nil {
		rs = ReadState{}
	}
	return rs, nil
}

// InboxSummary reports membership and unread ids for one inbox.
type InboxSummary struct {
	Inbox   Inbox    `json:"inbox"`
	Members []string `json:"members"`
	Unread  []string `json:"unread"`
	Count   int      `json:"unread_count"`
}

// Differ holds the previous membership in memory and the read set on disk.
type Differ struct {
	mu    sync.Mutex
	prev  map[Inbox]map[string]struct{}
	cur   map[Inbox][]string
	read  ReadState
	store domain.StateStore
}

// NewDiffer constructs a differ seeded with a persisted read state. store may
// be nil, in which case read state lives only in memory.
func NewDiffer(read ReadState, store domain.StateStore) *Differ {
	if read == nil {
		read = ReadState{}
	}
	return &Differ{
		prev:  make(map[Inbox]map[string]struct{}),
		cur:   make(map[Inbox][]string),
		read:  read,
		store: store,
	}
}

// Observe records the board's inbox membership. Ids newly present since the
// previous observation lose their read flag, so re-entering an inbox is new
// again. The first observation of an inbox is the baseline and keeps the
// persisted read flags.
func (d *Differ) Observe(ctx context.Context, b board.Board) ([]InboxSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	changed := false
	membership := Membership(b)
	for _, inbox := range roleInboxes[b.Role] {
		members := membership[inbox]
		current := make(map[string]struct{}, len(members))
		for _, id := range members {
			current[id] = struct{}{}
		}
		prev, seen := d.prev[inbox]
		read := d.read[inbox]
		if seen {
			for id := range current {
				if _, was := prev[id]; !was && read[id] {
					delete(read, id)
					changed = true
				}
			}
			for id := range read {
				if _, still := current[id]; !still {
					delete(read, id)
					changed = true
				}
			}
		}
		d.prev[inbox] = current
		d.cur[inbox] = members
	}
	if changed {
		if err := d.persistLocked(ctx); err != nil {
			return d.summariesLocked(b.Role), err
		}
	}
	return d.summariesLocked(b.Role), nil
}

// Unread returns the unread count of an inbox as of the last observation.
func (d *Differ) Unread(inbox Inbox) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summaryLocked(inbox).Count
}

// MarkAllRead marks every currently present id of an inbox as read.
func (d *Differ) MarkAllRead(ctx context.Context, inbox Inbox) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.cur[inbox] {
		d.markLocked(inbox, id)
	}
	return d.persistLocked(ctx)
}

// MarkRead marks a single id of an inbox as read.
func (d *Differ) MarkRead(ctx context.Context, inbox Inbox, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markLocked(inbox, id)
	return d.persistLocked(ctx)
}

// Open marks the notification read and returns the card it points at.
func (d *Differ) Open(ctx context.Context, b board.Board, inbox Inbox, id string) (board.Card, error) {
	card, ok := b.Find(id)
	if !ok {
		return board.Card{}, domain.ErrNotFound{Entity: domain.EntitySample, ID: id}
	}
	if err := d.MarkRead(ctx, inbox, id); err != nil {
		return card, err
	}
	return card, nil
}

func (d *Differ) markLocked(inbox Inbox, id string) {
	if d.read[inbox] == nil {
		d.read[inbox] = make(map[string]bool)
	}
	d.read[inbox][id] = true
}

func (d *Differ) summaryLocked(inbox Inbox) InboxSummary {
	members := append([]string(nil), d.cur[inbox]...)
	sort.Slice(members, func(i, j int) bool { return board.CompareIDs(members[i], members[j]) < 0 })
	s := InboxSummary{Inbox: inbox, Members: members, Unread: []string{}}
	for _, id := range members {
		if !d.read[inbox][id] {
			s.Unread = append(s.Unread, id)
		}
	}
	s.Count = len(s.Unread)
	return s
}

func (d *Differ) summariesLocked(role domain.Role) []InboxSummary {
	out := make([]InboxSummary, 0, len(roleInboxes[role]))
	for _, inbox := range roleInboxes[role] {
		out = append(out, d.summaryLocked(inbox))
	}
	return out
}

func (d *Differ) persistLocked(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	data, err := json.Marshal(d.read)
	if err != nil {
		return fmt.Errorf("encode read state: %w", err)
	}
	if err := d.store.Save(ctx, map[string][]byte{domain.BucketReadState: data}); err != nil {
		return fmt.Errorf("persist read state: %w", err)
	}
	return nil
}
