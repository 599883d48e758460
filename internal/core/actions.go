package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sampleflow/internal/backend"
	"sampleflow/internal/board"
	"sampleflow/internal/status"
	"sampleflow/pkg/domain"
)

// ActionKind names a mutation entry point.
type ActionKind string

// Mutation kinds accepted by the dispatcher.
const (
	ActionMoveCard          ActionKind = "move-card"
	ActionUpdateSampleField ActionKind = "update-sample-field"
	ActionToggleMethod      ActionKind = "toggle-method"
	ActionResolveConflict   ActionKind = "resolve-conflict"
	ActionAddComment        ActionKind = "add-comment"
	ActionCreateSample      ActionKind = "create-sample"
	ActionDeleteSample      ActionKind = "delete-sample"
	ActionRestoreSample     ActionKind = "restore-sample"
	ActionAdminStore        ActionKind = "admin-store"
	ActionAdminReturn       ActionKind = "admin-return"
	ActionAssignOperator    ActionKind = "assign-operator"
	ActionPlanAnalysis      ActionKind = "plan-analysis"
	ActionUndo              ActionKind = "undo"
)

// RollsBack reports whether a failed backend call reverts the optimistic
// change of this kind.
func (k ActionKind) RollsBack() bool {
	return k == ActionCreateSample || k == ActionPlanAnalysis
}

// SampleField names an editable canonical sample field.
type SampleField string

// Editable sample fields.
const (
	FieldWellID          SampleField = "well_id"
	FieldHorizon         SampleField = "horizon"
	FieldSamplingDate    SampleField = "sampling_date"
	FieldStorageLocation SampleField = "storage_location"
	FieldAssignedTo      SampleField = "assigned_to"
)

// MoveCardRequest drags a card to another column of the role's board.
type MoveCardRequest struct {
	Role             domain.Role `json:"role"`
	CardID           string      `json:"card_id"`
	To               string      `json:"to"`
	Reason           string      `json:"reason,omitempty"`
	ArrivalConfirmed bool        `json:"arrival_confirmed,omitempty"`
	StorageLocation  string      `json:"storage_location,omitempty"`
}

// UpdateSampleFieldRequest edits one canonical sample field.
type UpdateSampleFieldRequest struct {
	Role     domain.Role `json:"role"`
	SampleID string      `json:"sample_id"`
	Field    SampleField `json:"field"`
	Value    string      `json:"value"`
}

// ToggleMethodRequest flips a method between completed and planned.
type ToggleMethodRequest struct {
	Role     domain.Role `json:"role"`
	SampleID string      `json:"sample_id"`
	Method   string      `json:"method"`
}

// ResolveConflictRequest closes an open conflict.
type ResolveConflictRequest struct {
	Role       domain.Role `json:"role"`
	ConflictID string      `json:"conflict_id"`
	Note       string      `json:"note"`
}

// AddCommentRequest appends to a sample's comment thread.
type AddCommentRequest struct {
	Role     domain.Role `json:"role"`
	SampleID string      `json:"sample_id"`
	Author   string      `json:"author"`
	Text     string      `json:"text"`
}

// CreateSampleRequest registers a new sample at the warehouse.
type CreateSampleRequest struct {
	Role   domain.Role   `json:"role"`
	Sample domain.Sample `json:"sample"`
}

// DeleteSampleRequest soft-deletes a sample.
type DeleteSampleRequest struct {
	Role     domain.Role `json:"role"`
	SampleID string      `json:"sample_id"`
	Reason   string      `json:"reason"`
}

// SampleRequest targets a sample without further input.
type SampleRequest struct {
	Role     domain.Role `json:"role"`
	SampleID string      `json:"sample_id"`
}

// AdminReturnRequest sends a sample back to the lab or the warehouse.
type AdminReturnRequest struct {
	Role     domain.Role `json:"role"`
	SampleID string      `json:"sample_id"`
	Target   domain.Role `json:"target"`
	Note     string      `json:"note"`
}

// AssignOperatorRequest replaces the operators of a method.
type AssignOperatorRequest struct {
	Role      domain.Role `json:"role"`
	SampleID  string      `json:"sample_id"`
	Method    string      `json:"method"`
	Operators []string    `json:"operators"`
}

// PlanAnalysisRequest adds a method to a sample.
type PlanAnalysisRequest struct {
	Role       domain.Role `json:"role"`
	SampleID   string      `json:"sample_id"`
	Method     string      `json:"method"`
	AssignedTo []string    `json:"assigned_to,omitempty"`
}

func meta(id string) UndoMeta { return UndoMeta{EntityID: id} }

func required(field, value, reason string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", domain.ValidationError{Field: field, Reason: reason}
	}
	return v, nil
}

func sampleIn(st domain.State, id string) (domain.Sample, error) {
	s, ok := st.Samples[id]
	if !ok {
		return domain.Sample{}, domain.ErrNotFound{Entity: domain.EntitySample, ID: id}
	}
	return s, nil
}

func methodRecords(st domain.State, sampleID, method string) []domain.PlannedAnalysis {
	var out []domain.PlannedAnalysis
	for _, a := range st.AnalysesFor(sampleID) {
		if domain.SameMethod(a.AnalysisType, method) {
			out = append(out, a)
		}
	}
	return out
}

func localAnalysisID() string { return "local-" + uuid.NewString() }

// setStatus changes the canonical status and queues the backend patch. A
// sample entering review gets its default methods planned.
func (d *Dispatcher) setStatus(tx *Txn, p *plan, id string, next domain.SampleStatus) {
	s := tx.State.Samples[id]
	was := s.Status
	s.Status = next
	tx.State.Samples[id] = s
	p.call(tx, patchSampleStep(id, backend.SamplePatch{Status: &next}))
	if next == domain.SampleStatusReview && was != domain.SampleStatusReview {
		d.planDefaults(tx, p, id)
	}
}

// planDefaults creates the default methods missing from a sample. These
// records are derived and have no undo entry.
func (d *Dispatcher) planDefaults(tx *Txn, p *plan, sampleID string) {
	existing := tx.State.AnalysesFor(sampleID)
	for _, name := range d.defaultMethods {
		present := false
		for _, a := range existing {
			if domain.SameMethod(a.AnalysisType, name) {
				present = true
				break
			}
		}
		if present {
			continue
		}
		a := domain.PlannedAnalysis{
			ID:           localAnalysisID(),
			SampleID:     sampleID,
			AnalysisType: name,
			Status:       domain.AnalysisPlanned,
			AssignedTo:   []string{},
		}
		tx.State.Analyses[a.ID] = a
		existing = append(existing, a)
		p.call(tx, createAnalysisStep(a))
	}
}

// MoveCard drags a card between columns under the role's transition guards.
func (d *Dispatcher) MoveCard(ctx context.Context, req MoveCardRequest) (Mutation, error) {
	return d.submit(ctx, ActionMoveCard, req.Role, func(tx *Txn) (*plan, error) {
		from, ok := board.Locate(tx.State, req.Role, req.CardID)
		if !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntitySample, ID: req.CardID}
		}
		if err := guardError(req.Role, CheckTransition(req.Role, req.CardID, from, req.To)); err != nil {
			return nil, err
		}
		if from == req.To {
			return &plan{entityID: req.CardID, noop: true}, nil
		}
		switch req.Role {
		case domain.RoleWarehouse:
			return d.moveWarehouse(tx, req)
		case domain.RoleLab:
			return moveLab(tx, req)
		case domain.RoleAdmin:
			if req.To == board.AdminStored {
				return adminStore(tx, req.CardID)
			}
			return softDelete(tx, req.CardID, req.Reason)
		}
		return nil, guardError(req.Role, blocked(ruleTransition, req.CardID, "cards on this board cannot be moved"))
	})
}

func (d *Dispatcher) moveWarehouse(tx *Txn, req MoveCardRequest) (*plan, error) {
	id := req.CardID
	s, err := sampleIn(tx.State, id)
	if err != nil {
		return nil, err
	}
	to := domain.SampleStatus(req.To)
	patch := backend.SamplePatch{Status: &to}
	if to == domain.SampleStatusReview {
		if !req.ArrivalConfirmed {
			return nil, domain.ValidationError{Field: "arrival_confirmed", Reason: "confirm the sample has arrived before storing it"}
		}
		loc := strings.TrimSpace(s.StorageLocation)
		if raw := strings.TrimSpace(req.StorageLocation); raw != "" {
			parsed, err := domain.ParseStorageLocation(raw)
			if err != nil {
				return nil, err
			}
			loc = parsed.String()
			patch.StorageLocation = &loc
		} else if loc == "" {
			return nil, domain.ValidationError{Field: "storage_location", Reason: "a storage location is required to store the sample"}
		}
		s.StorageLocation = loc
	}
	p := &plan{entityID: id, undo: &SampleFieldsUndo{UndoMeta: meta(id), Prior: tx.State.Samples[id]}}
	was := s.Status
	s.Status = to
	tx.State.Samples[id] = s
	p.call(tx, patchSampleStep(id, patch))
	if to == domain.SampleStatusReview && was != domain.SampleStatusReview {
		d.planDefaults(tx, p, id)
	}
	return p, nil
}

func moveLab(tx *Txn, req MoveCardRequest) (*plan, error) {
	id := req.CardID
	o := tx.State.Overrides
	to := domain.SampleStatus(req.To)
	if to == domain.SampleStatusReview {
		reason, err := required("reason", req.Reason, "a reason is required to flag a sample for attention")
		if err != nil {
			return nil, err
		}
		undo := &IssueReasonsUndo{
			UndoMeta: meta(id),
			Reasons:  append([]string(nil), o.IssueReasons[id]...),
			Lab:      captureLab(o, id),
		}
		o.IssueReasons[id] = append(o.IssueReasons[id], reason)
		o.LabStatus[id] = domain.SampleStatusReview
		delete(o.LabReturned, id)
		return &plan{entityID: id, undo: undo}, nil
	}
	undo := &LabOverrideUndo{UndoMeta: meta(id), Lab: captureLab(o, id)}
	o.LabStatus[id] = to
	delete(o.LabReturned, id)
	return &plan{entityID: id, undo: undo}, nil
}

func captureDeleteRestore(st domain.State, s domain.Sample) *DeleteRestoreUndo {
	id := s.SampleID
	o := st.Overrides
	undo := &DeleteRestoreUndo{UndoMeta: meta(id), Lab: captureLab(o, id), Status: s.Status}
	if info, ok := o.Deleted[id]; ok {
		undo.Deleted = &info
	}
	if flag, ok := o.AdminStored[id]; ok {
		undo.Stored = &flag
	}
	return undo
}

func softDelete(tx *Txn, id, rawReason string) (*plan, error) {
	reason, err := required("reason", rawReason, "a reason is required to delete a sample")
	if err != nil {
		return nil, err
	}
	s, err := sampleIn(tx.State, id)
	if err != nil {
		return nil, err
	}
	o := tx.State.Overrides
	if _, ok := o.Deleted[id]; ok {
		return nil, domain.ValidationError{Field: "sample_id", Reason: fmt.Sprintf("sample %s is already deleted", id)}
	}
	undo := captureDeleteRestore(tx.State, s)
	o.Deleted[id] = domain.DeletedInfo{Reason: reason, PrevStatus: s.Status}
	return &plan{entityID: id, undo: undo}, nil
}

func adminStore(tx *Txn, id string) (*plan, error) {
	if _, err := sampleIn(tx.State, id); err != nil {
		return nil, err
	}
	bucket, _ := board.AdminBucket(tx.State, id)
	var source domain.StoredSource
	switch bucket {
	case board.AdminIssues:
		source = domain.StoredFromIssues
	case board.AdminNeedsAttention:
		source = domain.StoredFromNeedsAttention
	default:
		return nil, guardError(domain.RoleAdmin, blocked(ruleTransition, id, fmt.Sprintf("only samples in issues or needs attention can be stored, %s is not", id)))
	}
	o := tx.State.Overrides
	undo := &AdminStoredUndo{UndoMeta: meta(id)}
	if flag, ok := o.AdminStored[id]; ok {
		undo.Prior = &flag
	}
	o.AdminStored[id] = domain.StoredFlag{Source: source}
	return &plan{entityID: id, undo: undo}, nil
}

// UpdateSampleField edits one canonical field of a sample.
func (d *Dispatcher) UpdateSampleField(ctx context.Context, req UpdateSampleFieldRequest) (Mutation, error) {
	return d.submit(ctx, ActionUpdateSampleField, req.Role, func(tx *Txn) (*plan, error) {
		s, err := sampleIn(tx.State, req.SampleID)
		if err != nil {
			return nil, err
		}
		prior := s
		value := strings.TrimSpace(req.Value)
		var patch backend.SamplePatch
		switch req.Field {
		case FieldWellID:
			s.WellID, patch.WellID = value, &value
		case FieldHorizon:
			s.Horizon, patch.Horizon = value, &value
		case FieldSamplingDate:
			if value != "" {
				if _, ok := board.ParseSamplingDate(value); !ok {
					return nil, domain.ValidationError{Field: string(FieldSamplingDate), Reason: fmt.Sprintf("unrecognised date %q", value)}
				}
			}
			s.SamplingDate, patch.SamplingDate = value, &value
		case FieldStorageLocation:
			if value != "" {
				parsed, err := domain.ParseStorageLocation(value)
				if err != nil {
					return nil, err
				}
				value = parsed.String()
			}
			s.StorageLocation, patch.StorageLocation = value, &value
		case FieldAssignedTo:
			s.AssignedTo, patch.AssignedTo = value, &value
		default:
			return nil, domain.ValidationError{Field: "field", Reason: fmt.Sprintf("unknown sample field %q", req.Field)}
		}
		if s == prior {
			return &plan{entityID: s.SampleID, noop: true}, nil
		}
		tx.State.Samples[s.SampleID] = s
		p := &plan{entityID: s.SampleID, undo: &SampleFieldsUndo{UndoMeta: meta(s.SampleID), Prior: prior}}
		p.call(tx, patchSampleStep(s.SampleID, patch))
		return p, nil
	})
}

// ToggleMethod flips every record of a method on a sample between completed
// and planned, then completes the sample on the lab board once every method
// is done and the card is not pinned to needs attention.
func (d *Dispatcher) ToggleMethod(ctx context.Context, req ToggleMethodRequest) (Mutation, error) {
	return d.submit(ctx, ActionToggleMethod, req.Role, func(tx *Txn) (*plan, error) {
		id := req.SampleID
		s, err := sampleIn(tx.State, id)
		if err != nil {
			return nil, err
		}
		records := methodRecords(tx.State, id, req.Method)
		if len(records) == 0 {
			return nil, domain.ErrNotFound{Entity: domain.EntityAnalysis, ID: req.Method}
		}
		if req.Role == domain.RoleLab && !board.Lab(tx.State, id).Visible {
			return nil, guardError(req.Role, blocked(ruleTransition, id, fmt.Sprintf("sample %s is not on the lab board", id)))
		}
		o := tx.State.Overrides
		undo := &AnalysisUndo{UndoMeta: meta(id), Lab: captureLab(o, id), Status: s.Status}
		for _, rec := range records {
			undo.Prior = append(undo.Prior, rec.Clone())
		}
		target := domain.AnalysisCompleted
		if merged := status.MergeAnalyses(records); merged[0].Status == domain.AnalysisCompleted {
			target = domain.AnalysisPlanned
		}
		p := &plan{entityID: id, undo: undo}
		for _, rec := range records {
			rec.Status = target
			tx.State.Analyses[rec.ID] = rec
			next := target
			p.call(tx, patchAnalysisStep(rec.ID, backend.AnalysisPatch{Status: &next}))
		}
		place := board.Lab(tx.State, id)
		if place.Visible && place.AllDone && place.Fallback != domain.SampleStatusReview {
			o.LabStatus[id] = domain.SampleStatusDone
			if s.Status != domain.SampleStatusDone {
				d.setStatus(tx, p, id, domain.SampleStatusDone)
				undo.StatusTouched = true
			}
		}
		return p, nil
	})
}

// ResolveConflict marks a conflict resolved with a note.
func (d *Dispatcher) ResolveConflict(ctx context.Context, req ResolveConflictRequest) (Mutation, error) {
	return d.submit(ctx, ActionResolveConflict, req.Role, func(tx *Txn) (*plan, error) {
		c, ok := tx.State.Conflicts[req.ConflictID]
		if !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntityConflict, ID: req.ConflictID}
		}
		note, err := required("note", req.Note, "a resolution note is required")
		if err != nil {
			return nil, err
		}
		if c.Status == domain.ConflictResolved {
			return nil, domain.ValidationError{Field: "conflict_id", Reason: fmt.Sprintf("conflict %s is already resolved", c.ID)}
		}
		p := &plan{entityID: c.ID, undo: &ConflictUndo{UndoMeta: meta(c.ID), Prior: c}}
		c.Status = domain.ConflictResolved
		c.ResolutionNote = note
		tx.State.Conflicts[c.ID] = c
		resolved := domain.ConflictResolved
		p.call(tx, patchConflictStep(c.ID, backend.ConflictPatch{Status: &resolved, ResolutionNote: &note}))
		return p, nil
	})
}

// AddComment appends a comment to a sample. Comments are client state only.
func (d *Dispatcher) AddComment(ctx context.Context, req AddCommentRequest) (Mutation, error) {
	return d.submit(ctx, ActionAddComment, req.Role, func(tx *Txn) (*plan, error) {
		if _, err := sampleIn(tx.State, req.SampleID); err != nil {
			return nil, err
		}
		text, err := required("text", req.Text, "comment text is required")
		if err != nil {
			return nil, err
		}
		author := strings.TrimSpace(req.Author)
		if author == "" {
			author = string(req.Role)
		}
		o := tx.State.Overrides
		o.Comments[req.SampleID] = append(o.Comments[req.SampleID], domain.Comment{
			Author:    author,
			Role:      req.Role,
			Text:      text,
			CreatedAt: d.clock.Now().UTC(),
		})
		return &plan{entityID: req.SampleID}, nil
	})
}

// CreateSample registers a sample in the new column. A backend failure
// removes it again.
func (d *Dispatcher) CreateSample(ctx context.Context, req CreateSampleRequest) (Mutation, error) {
	return d.submit(ctx, ActionCreateSample, req.Role, func(tx *Txn) (*plan, error) {
		s := req.Sample
		id, err := required("sample_id", s.SampleID, "sample id is required")
		if err != nil {
			return nil, err
		}
		if _, exists := tx.State.Samples[id]; exists {
			return nil, domain.ValidationError{Field: "sample_id", Reason: fmt.Sprintf("sample %s already exists", id)}
		}
		s.SampleID = id
		s.WellID = strings.TrimSpace(s.WellID)
		s.Horizon = strings.TrimSpace(s.Horizon)
		s.AssignedTo = strings.TrimSpace(s.AssignedTo)
		s.SamplingDate = strings.TrimSpace(s.SamplingDate)
		if s.SamplingDate != "" {
			if _, ok := board.ParseSamplingDate(s.SamplingDate); !ok {
				return nil, domain.ValidationError{Field: string(FieldSamplingDate), Reason: fmt.Sprintf("unrecognised date %q", s.SamplingDate)}
			}
		}
		if raw := strings.TrimSpace(s.StorageLocation); raw != "" {
			parsed, err := domain.ParseStorageLocation(raw)
			if err != nil {
				return nil, err
			}
			s.StorageLocation = parsed.String()
		}
		s.Status = domain.SampleStatusNew
		tx.State.Samples[id] = s
		tx.State.Overrides.CreatedMarkers[id] = true
		p := &plan{entityID: id, undo: &CreationUndo{UndoMeta: meta(id)}}
		p.call(tx, createSampleStep(s))
		return p, nil
	})
}

// DeleteSample soft-deletes a sample, remembering its canonical status.
func (d *Dispatcher) DeleteSample(ctx context.Context, req DeleteSampleRequest) (Mutation, error) {
	return d.submit(ctx, ActionDeleteSample, req.Role, func(tx *Txn) (*plan, error) {
		return softDelete(tx, req.SampleID, req.Reason)
	})
}

// RestoreSample returns a deleted or stored sample to where it came from.
func (d *Dispatcher) RestoreSample(ctx context.Context, req SampleRequest) (Mutation, error) {
	return d.submit(ctx, ActionRestoreSample, req.Role, func(tx *Txn) (*plan, error) {
		id := req.SampleID
		s, err := sampleIn(tx.State, id)
		if err != nil {
			return nil, err
		}
		o := tx.State.Overrides
		undo := captureDeleteRestore(tx.State, s)
		p := &plan{entityID: id, undo: undo}
		if info, ok := o.Deleted[id]; ok {
			delete(o.Deleted, id)
			prev := info.PrevStatus
			if !prev.Valid() {
				prev = s.Status
			}
			d.setStatus(tx, p, id, prev)
			undo.StatusTouched = true
			return p, nil
		}
		flag, ok := o.AdminStored[id]
		if !ok {
			return nil, domain.ValidationError{Field: "sample_id", Reason: fmt.Sprintf("sample %s is neither deleted nor stored", id)}
		}
		delete(o.AdminStored, id)
		if flag.Source == domain.StoredFromNeedsAttention {
			o.LabStatus[id] = domain.SampleStatusReview
			return p, nil
		}
		d.setStatus(tx, p, id, domain.SampleStatusDone)
		undo.StatusTouched = true
		return p, nil
	})
}

// AdminStore archives a sample from issues or needs attention.
func (d *Dispatcher) AdminStore(ctx context.Context, req SampleRequest) (Mutation, error) {
	return d.submit(ctx, ActionAdminStore, req.Role, func(tx *Txn) (*plan, error) {
		return adminStore(tx, req.SampleID)
	})
}

// AdminReturn sends a sample in issues or needs attention back to the lab or
// the warehouse with a note.
func (d *Dispatcher) AdminReturn(ctx context.Context, req AdminReturnRequest) (Mutation, error) {
	return d.submit(ctx, ActionAdminReturn, req.Role, func(tx *Txn) (*plan, error) {
		id := req.SampleID
		s, err := sampleIn(tx.State, id)
		if err != nil {
			return nil, err
		}
		note, err := required("note", req.Note, "a note is required to return a sample")
		if err != nil {
			return nil, err
		}
		if req.Target != domain.RoleLab && req.Target != domain.RoleWarehouse {
			return nil, domain.ValidationError{Field: "target", Reason: fmt.Sprintf("samples can be returned to lab or warehouse, not %q", req.Target)}
		}
		switch bucket, _ := board.AdminBucket(tx.State, id); bucket {
		case board.AdminIssues, board.AdminNeedsAttention:
		default:
			return nil, guardError(domain.RoleAdmin, blocked(ruleTransition, id, fmt.Sprintf("only samples in issues or needs attention can be returned, %s is not", id)))
		}
		o := tx.State.Overrides
		undo := &AdminReturnNotesUndo{
			UndoMeta:          meta(id),
			Notes:             append([]string(nil), o.AdminReturnNotes[id]...),
			Lab:               captureLab(o, id),
			WarehouseReturned: o.WarehouseReturned[id],
			Status:            s.Status,
		}
		p := &plan{entityID: id, undo: undo}
		o.AdminReturnNotes[id] = append(o.AdminReturnNotes[id], note)
		if req.Target == domain.RoleLab {
			o.LabStatus[id] = domain.SampleStatusProgress
			o.LabReturned[id] = true
			if s.Status == domain.SampleStatusDone {
				d.setStatus(tx, p, id, domain.SampleStatusReview)
				undo.StatusTouched = true
			}
			return p, nil
		}
		delete(o.LabStatus, id)
		delete(o.LabReturned, id)
		o.WarehouseReturned[id] = true
		d.setStatus(tx, p, id, domain.SampleStatusNew)
		undo.StatusTouched = true
		return p, nil
	})
}

// AssignOperator replaces the operators on every record of a method. It has
// no undo entry.
func (d *Dispatcher) AssignOperator(ctx context.Context, req AssignOperatorRequest) (Mutation, error) {
	return d.submit(ctx, ActionAssignOperator, req.Role, func(tx *Txn) (*plan, error) {
		if _, err := sampleIn(tx.State, req.SampleID); err != nil {
			return nil, err
		}
		records := methodRecords(tx.State, req.SampleID, req.Method)
		if len(records) == 0 {
			return nil, domain.ErrNotFound{Entity: domain.EntityAnalysis, ID: req.Method}
		}
		operators := cleanNames(req.Operators)
		p := &plan{entityID: req.SampleID}
		for _, rec := range records {
			assigned := append([]string{}, operators...)
			rec.AssignedTo = assigned
			tx.State.Analyses[rec.ID] = rec
			p.call(tx, patchAnalysisStep(rec.ID, backend.AnalysisPatch{AssignedTo: &assigned}))
		}
		return p, nil
	})
}

// PlanAnalysis adds a method to a sample. A backend failure removes it again.
func (d *Dispatcher) PlanAnalysis(ctx context.Context, req PlanAnalysisRequest) (Mutation, error) {
	return d.submit(ctx, ActionPlanAnalysis, req.Role, func(tx *Txn) (*plan, error) {
		if _, err := sampleIn(tx.State, req.SampleID); err != nil {
			return nil, err
		}
		method, err := required("method", req.Method, "method name is required")
		if err != nil {
			return nil, err
		}
		if len(methodRecords(tx.State, req.SampleID, method)) > 0 {
			return nil, domain.ValidationError{Field: "method", Reason: fmt.Sprintf("%s is already planned for %s", method, req.SampleID)}
		}
		a := domain.PlannedAnalysis{
			ID:           localAnalysisID(),
			SampleID:     req.SampleID,
			AnalysisType: method,
			Status:       domain.AnalysisPlanned,
			AssignedTo:   cleanNames(req.AssignedTo),
		}
		tx.State.Analyses[a.ID] = a
		p := &plan{entityID: req.SampleID}
		p.call(tx, createAnalysisStep(a))
		return p, nil
	})
}
