// Package board projects the entity store into role-scoped Kanban boards.
// Projection is a pure function of a domain.State snapshot and a Query.
package board

import (
	"sampleflow/internal/status"
	"sampleflow/pkg/domain"
)

// CardKind identifies which entity a card was synthesized from.
type CardKind string

// Card kinds.
const (
	KindSample   CardKind = "sample"
	KindBatch    CardKind = "batch"
	KindConflict CardKind = "conflict"
)

// Admin bucket column ids.
const (
	AdminNeedsAttention = "needs_attention"
	AdminIssues         = "issues"
	AdminStored         = "stored"
	AdminDeleted        = "deleted"
)

// ColumnDef is a fixed (id, title) pair of a role's board.
type ColumnDef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

var roleColumns = map[domain.Role][]ColumnDef{
	domain.RoleWarehouse: {
		{ID: string(domain.SampleStatusNew), Title: "New"},
		{ID: string(domain.SampleStatusProgress), Title: "In transit"},
		{ID: string(domain.SampleStatusReview), Title: "Stored"},
		{ID: string(domain.SampleStatusDone), Title: "Issues"},
	},
	domain.RoleLab: {
		{ID: string(domain.SampleStatusNew), Title: "Planned"},
		{ID: string(domain.SampleStatusProgress), Title: "In progress"},
		{ID: string(domain.SampleStatusReview), Title: "Needs attention"},
		{ID: string(domain.SampleStatusDone), Title: "Completed"},
	},
	domain.RoleAdmin: {
		{ID: AdminNeedsAttention, Title: "Needs attention"},
		{ID: AdminIssues, Title: "Issues"},
		{ID: AdminStored, Title: "Stored"},
		{ID: AdminDeleted, Title: "Deleted"},
	},
	domain.RoleActionSupervision: {
		{ID: string(domain.SampleStatusNew), Title: "Uploaded"},
		{ID: string(domain.SampleStatusProgress), Title: "In progress"},
		{ID: string(domain.SampleStatusDone), Title: "Done"},
	},
}

// Columns returns the ordered column definitions for a role.
func Columns(role domain.Role) []ColumnDef {
	return append([]ColumnDef(nil), roleColumns[role]...)
}

// ColumnTitle returns the title of a role's column, or the id when unknown.
func ColumnTitle(role domain.Role, id string) string {
	for _, c := range roleColumns[role] {
		if c.ID == id {
			return c.Title
		}
	}
	return id
}

// Card is a derived, per-role projection of a sample, batch or conflict.
type Card struct {
	ID          string              `json:"id"`
	Kind        CardKind            `json:"kind"`
	Column      string              `json:"column"`
	StatusLabel string              `json:"status_label"`
	Status      domain.SampleStatus `json:"status"`

	Sample   *domain.Sample      `json:"sample,omitempty"`
	Batch    *domain.ActionBatch `json:"batch,omitempty"`
	Conflict *domain.Conflict    `json:"conflict,omitempty"`

	Methods           []domain.Method     `json:"methods,omitempty"`
	AllDone           bool                `json:"all_done"`
	AdminStored       bool                `json:"admin_stored"`
	StoredSource      domain.StoredSource `json:"stored_source,omitempty"`
	DeletedReason     string              `json:"deleted_reason,omitempty"`
	PrevStatus        domain.SampleStatus `json:"prev_status,omitempty"`
	ReturnedFromAdmin bool                `json:"returned_from_admin"`
	IssueReasons      []string            `json:"issue_reasons,omitempty"`
	ReturnNotes       []string            `json:"return_notes,omitempty"`
	CommentCount      int                 `json:"comment_count"`
}

// CompletedMethods counts completed merged methods on the card.
func (c Card) CompletedMethods() int { return status.CompletedCount(c.Methods) }

// Column is one projected board column.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cards []Card `json:"cards"`
}

// Board is the projected view for one role.
type Board struct {
	Role    domain.Role `json:"role"`
	Columns []Column    `json:"columns"`
}

// Cards returns every card in column order.
func (b Board) Cards() []Card {
	var out []Card
	for _, col := range b.Columns {
		out = append(out, col.Cards...)
	}
	return out
}

// Column returns the column with the given id.
func (b Board) Column(id string) (Column, bool) {
	for _, col := range b.Columns {
		if col.ID == id {
			return col, true
		}
	}
	return Column{}, false
}

// Find returns the card with the given id.
func (b Board) Find(id string) (Card, bool) {
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Card{}, false
}
