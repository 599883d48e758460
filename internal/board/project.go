package board

import (
	"sampleflow/internal/status"
	"sampleflow/pkg/domain"
)

// LabPlacement describes where a sample sits on the lab board.
type LabPlacement struct {
	Visible  bool
	Fallback domain.SampleStatus
	Methods  []domain.Method
	status.Aggregate
}

// Lab computes a sample's lab placement. A sample is visible once it is
// canonically review (arrived and stored) or carries a lab override; hidden
// when soft-deleted or admin-stored. The lab override, or new when absent, is
// the aggregation fallback, so an override of review pins the card there.
func Lab(state domain.State, sampleID string) LabPlacement {
	s, ok := state.Samples[sampleID]
	if !ok || hiddenByAdmin(state, sampleID) {
		return LabPlacement{}
	}
	override, hasOverride := state.Overrides.LabStatus[sampleID]
	if s.Status != domain.SampleStatusReview && !hasOverride {
		return LabPlacement{}
	}
	fallback := domain.SampleStatusNew
	if hasOverride && override.Valid() {
		fallback = override
	}
	methods := status.MergeAnalyses(state.AnalysesFor(sampleID))
	return LabPlacement{
		Visible:   true,
		Fallback:  fallback,
		Methods:   methods,
		Aggregate: status.Reduce(methods, fallback),
	}
}

// AdminBucket returns the single admin bucket a sample belongs to, evaluated
// as deleted, then stored, then issues, then needs attention.
func AdminBucket(state domain.State, sampleID string) (string, bool) {
	s, ok := state.Samples[sampleID]
	if !ok {
		return "", false
	}
	if _, deleted := state.Overrides.Deleted[sampleID]; deleted {
		return AdminDeleted, true
	}
	if _, stored := state.Overrides.AdminStored[sampleID]; stored {
		return AdminStored, true
	}
	if s.Status == domain.SampleStatusDone {
		return AdminIssues, true
	}
	if lab := Lab(state, sampleID); lab.Visible && lab.Status == domain.SampleStatusReview {
		return AdminNeedsAttention, true
	}
	return "", false
}

// Locate returns the column a card currently occupies on a role's board.
func Locate(state domain.State, role domain.Role, id string) (string, bool) {
	switch role {
	case domain.RoleWarehouse:
		s, ok := state.Samples[id]
		if !ok || hiddenByAdmin(state, id) {
			return "", false
		}
		return string(s.Status), true
	case domain.RoleLab:
		lab := Lab(state, id)
		return string(lab.Status), lab.Visible
	case domain.RoleAdmin:
		return AdminBucket(state, id)
	case domain.RoleActionSupervision:
		if b, ok := state.Batches[id]; ok {
			return batchColumn(b.Status), true
		}
		if c, ok := state.Conflicts[id]; ok {
			return conflictColumn(c.Status), true
		}
	}
	return "", false
}

// Project builds the board for role from state and applies q's filters and sort.
func Project(state domain.State, role domain.Role, q Query) Board {
	var cards []Card
	switch role {
	case domain.RoleWarehouse:
		cards = warehouseCards(state)
	case domain.RoleLab:
		cards = labCards(state)
	case domain.RoleAdmin:
		cards = adminCards(state)
	case domain.RoleActionSupervision:
		cards = actionCards(state)
	}
	cards = q.filter(cards)
	sortCards(cards, q.Sort)

	b := Board{Role: role}
	for _, def := range Columns(role) {
		col := Column{ID: def.ID, Title: def.Title, Cards: []Card{}}
		for _, c := range cards {
			if c.Column == def.ID {
				col.Cards = append(col.Cards, c)
			}
		}
		b.Columns = append(b.Columns, col)
	}
	return b
}

func hiddenByAdmin(state domain.State, id string) bool {
	if _, ok := state.Overrides.Deleted[id]; ok {
		return true
	}
	_, ok := state.Overrides.AdminStored[id]
	return ok
}

func sampleCard(state domain.State, role domain.Role, s domain.Sample, column string) Card {
	sample := s
	ov := state.Overrides
	c := Card{
		ID:           s.SampleID,
		Kind:         KindSample,
		Column:       column,
		StatusLabel:  ColumnTitle(role, column),
		Status:       s.Status,
		Sample:       &sample,
		Methods:      status.MergeAnalyses(state.AnalysesFor(s.SampleID)),
		IssueReasons: append([]string(nil), ov.IssueReasons[s.SampleID]...),
		ReturnNotes:  append([]string(nil), ov.AdminReturnNotes[s.SampleID]...),
		CommentCount: len(ov.Comments[s.SampleID]),
	}
	c.AllDone = status.Reduce(c.Methods, s.Status).AllDone
	if flag, ok := ov.AdminStored[s.SampleID]; ok {
		c.AdminStored = true
		c.StoredSource = flag.Source
	}
	if info, ok := ov.Deleted[s.SampleID]; ok {
		c.DeletedReason = info.Reason
		c.PrevStatus = info.PrevStatus
	}
	switch role {
	case domain.RoleLab:
		c.ReturnedFromAdmin = ov.LabReturned[s.SampleID]
	case domain.RoleWarehouse:
		c.ReturnedFromAdmin = ov.WarehouseReturned[s.SampleID]
	case domain.RoleAdmin:
		c.ReturnedFromAdmin = ov.LabReturned[s.SampleID] || ov.WarehouseReturned[s.SampleID]
	}
	return c
}

func warehouseCards(state domain.State) []Card {
	var out []Card
	for id, s := range state.Samples {
		if hiddenByAdmin(state, id) || !s.Status.Valid() {
			continue
		}
		out = append(out, sampleCard(state, domain.RoleWarehouse, s, string(s.Status)))
	}
	return out
}

func labCards(state domain.State) []Card {
	var out []Card
	for id, s := range state.Samples {
		lab := Lab(state, id)
		if !lab.Visible {
			continue
		}
		c := sampleCard(state, domain.RoleLab, s, string(lab.Status))
		c.Status = lab.Status
		c.Methods = lab.Methods
		c.AllDone = lab.AllDone
		out = append(out, c)
	}
	return out
}

func adminCards(state domain.State) []Card {
	var out []Card
	for id, s := range state.Samples {
		bucket, ok := AdminBucket(state, id)
		if !ok {
			continue
		}
		c := sampleCard(state, domain.RoleAdmin, s, bucket)
		if bucket == AdminNeedsAttention {
			lab := Lab(state, id)
			c.Status = lab.Status
			c.AllDone = lab.AllDone
		}
		out = append(out, c)
	}
	return out
}

func batchColumn(st domain.SampleStatus) string {
	switch st {
	case domain.SampleStatusReview, domain.SampleStatusProgress:
		return string(domain.SampleStatusProgress)
	case domain.SampleStatusDone:
		return string(domain.SampleStatusDone)
	}
	return string(domain.SampleStatusNew)
}

func conflictColumn(st domain.ConflictStatus) string {
	if st == domain.ConflictResolved {
		return string(domain.SampleStatusDone)
	}
	return string(domain.SampleStatusProgress)
}

func actionCards(state domain.State) []Card {
	var out []Card
	for _, b := range state.Batches {
		batch := b
		col := batchColumn(b.Status)
		out = append(out, Card{
			ID:          b.ID,
			Kind:        KindBatch,
			Column:      col,
			StatusLabel: ColumnTitle(domain.RoleActionSupervision, col),
			Status:      domain.SampleStatus(col),
			Batch:       &batch,
		})
	}
	for _, c := range state.Conflicts {
		conflict := c
		col := conflictColumn(c.Status)
		out = append(out, Card{
			ID:          c.ID,
			Kind:        KindConflict,
			Column:      col,
			StatusLabel: ColumnTitle(domain.RoleActionSupervision, col),
			Status:      domain.SampleStatus(col),
			Conflict:    &conflict,
		})
	}
	return out
}
