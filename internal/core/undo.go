package core

import (
	"sync"
	"time"

	"sampleflow/internal/backend"
	"sampleflow/pkg/domain"
)

// UndoTag identifies the kind of snapshot held by an undo record.
type UndoTag string

// Undo record tags.
const (
	UndoSampleFields     UndoTag = "sample_fields"
	UndoCreation         UndoTag = "creation"
	UndoAnalysis         UndoTag = "analysis"
	UndoAdminStored      UndoTag = "admin_stored"
	UndoLabOverride      UndoTag = "lab_override"
	UndoDeleteRestore    UndoTag = "delete_restore"
	UndoAdminReturnNotes UndoTag = "admin_return_notes"
	UndoIssueReasons     UndoTag = "issue_reasons"
	UndoConflict         UndoTag = "conflict"
)

// DefaultUndoCapacity bounds the undo log when no capacity is configured.
const DefaultUndoCapacity = 20

// UndoMeta links a record to the mutation that produced it.
type UndoMeta struct {
	MutationID string    `json:"mutation_id"`
	EntityID   string    `json:"entity_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Meta returns the record metadata.
func (m *UndoMeta) Meta() UndoMeta { return *m }

func (m *UndoMeta) stamp(mutationID string, at time.Time) {
	m.MutationID = mutationID
	m.RecordedAt = at
}

// UndoRecord is a prior-state snapshot. The concrete types below are the
// only implementations.
type UndoRecord interface {
	Tag() UndoTag
	Meta() UndoMeta
	stamp(mutationID string, at time.Time)
}

// labSnapshot captures the lab override bundle of one sample.
type labSnapshot struct {
	Status   *domain.SampleStatus `json:"status,omitempty"`
	Returned bool                 `json:"returned"`
}

func captureLab(o domain.Overrides, id string) labSnapshot {
	snap := labSnapshot{Returned: o.LabReturned[id]}
	if st, ok := o.LabStatus[id]; ok {
		snap.Status = &st
	}
	return snap
}

func (s labSnapshot) restore(o domain.Overrides, id string) {
	if s.Status != nil {
		o.LabStatus[id] = *s.Status
	} else {
		delete(o.LabStatus, id)
	}
	setFlag(o.LabReturned, id, s.Returned)
}

func setFlag(m map[string]bool, id string, on bool) {
	if on {
		m[id] = true
	} else {
		delete(m, id)
	}
}

func setList(m map[string][]string, id string, list []string) {
	if len(list) == 0 {
		delete(m, id)
		return
	}
	m[id] = append([]string(nil), list...)
}

// SampleFieldsUndo restores every canonical sample field.
type SampleFieldsUndo struct {
	UndoMeta
	Prior domain.Sample `json:"prior"`
}

// Tag implements UndoRecord.
func (*SampleFieldsUndo) Tag() UndoTag { return UndoSampleFields }

// CreationUndo removes a locally created sample.
type CreationUndo struct {
	UndoMeta
}

// Tag implements UndoRecord.
func (*CreationUndo) Tag() UndoTag { return UndoCreation }

// AnalysisUndo restores method records of one sample together with the
// fields touched by auto-completion.
type AnalysisUndo struct {
	UndoMeta
	Prior         []domain.PlannedAnalysis `json:"prior"`
	Lab           labSnapshot              `json:"lab"`
	Status        domain.SampleStatus      `json:"status"`
	StatusTouched bool                     `json:"status_touched"`
}

// Tag implements UndoRecord.
func (*AnalysisUndo) Tag() UndoTag { return UndoAnalysis }

// AdminStoredUndo restores the admin-stored flag.
type AdminStoredUndo struct {
	UndoMeta
	Prior *domain.StoredFlag `json:"prior,omitempty"`
}

// Tag implements UndoRecord.
func (*AdminStoredUndo) Tag() UndoTag { return UndoAdminStored }

// LabOverrideUndo restores the lab override bundle.
type LabOverrideUndo struct {
	UndoMeta
	Lab labSnapshot `json:"lab"`
}

// Tag implements UndoRecord.
func (*LabOverrideUndo) Tag() UndoTag { return UndoLabOverride }

// DeleteRestoreUndo covers soft delete and restore of a sample.
type DeleteRestoreUndo struct {
	UndoMeta
	Deleted       *domain.DeletedInfo `json:"deleted,omitempty"`
	Stored        *domain.StoredFlag  `json:"stored,omitempty"`
	Lab           labSnapshot         `json:"lab"`
	Status        domain.SampleStatus `json:"status"`
	StatusTouched bool                `json:"status_touched"`
}

// Tag implements UndoRecord.
func (*DeleteRestoreUndo) Tag() UndoTag { return UndoDeleteRestore }

// AdminReturnNotesUndo reverts an admin return.
type AdminReturnNotesUndo struct {
	UndoMeta
	Notes             []string            `json:"notes"`
	Lab               labSnapshot         `json:"lab"`
	WarehouseReturned bool                `json:"warehouse_returned"`
	Status            domain.SampleStatus `json:"status"`
	StatusTouched     bool                `json:"status_touched"`
}

// Tag implements UndoRecord.
func (*AdminReturnNotesUndo) Tag() UndoTag { return UndoAdminReturnNotes }

// IssueReasonsUndo reverts a lab "needs attention" flag.
type IssueReasonsUndo struct {
	UndoMeta
	Reasons []string    `json:"reasons"`
	Lab     labSnapshot `json:"lab"`
}

// Tag implements UndoRecord.
func (*IssueReasonsUndo) Tag() UndoTag { return UndoIssueReasons }

// ConflictUndo restores a conflict's status and resolution note.
type ConflictUndo struct {
	UndoMeta
	Prior domain.Conflict `json:"prior"`
}

// Tag implements UndoRecord.
func (*ConflictUndo) Tag() UndoTag { return UndoConflict }

// applyUndo writes the record's snapshot into st and returns the backend
// calls needed for canonical entities it touched. Applying a record twice
// leaves st unchanged the second time.
func applyUndo(st *domain.State, rec UndoRecord) []remoteStep {
	id := rec.Meta().EntityID
	o := st.Overrides
	switch r := rec.(type) {
	case *SampleFieldsUndo:
		if _, ok := st.Samples[id]; !ok {
			return nil
		}
		st.Samples[id] = r.Prior
		return []remoteStep{patchSampleStep(id, backend.FullSamplePatch(r.Prior))}
	case *CreationUndo:
		if _, ok := st.Samples[id]; !ok {
			return nil
		}
		delete(st.Samples, id)
		delete(o.CreatedMarkers, id)
		for aid, a := range st.Analyses {
			if a.SampleID == id {
				delete(st.Analyses, aid)
			}
		}
		return []remoteStep{deleteSampleStep(id)}
	case *AnalysisUndo:
		var steps []remoteStep
		for _, prior := range r.Prior {
			if _, ok := st.Analyses[prior.ID]; !ok {
				continue
			}
			st.Analyses[prior.ID] = prior.Clone()
			status := prior.Status
			assignees := append([]string{}, prior.AssignedTo...)
			steps = append(steps, patchAnalysisStep(prior.ID, backend.AnalysisPatch{Status: &status, AssignedTo: &assignees}))
		}
		r.Lab.restore(o, id)
		return append(steps, restoreStatus(st, id, r.Status, r.StatusTouched)...)
	case *AdminStoredUndo:
		restoreStored(o, id, r.Prior)
		return nil
	case *LabOverrideUndo:
		r.Lab.restore(o, id)
		return nil
	case *DeleteRestoreUndo:
		if r.Deleted != nil {
			o.Deleted[id] = *r.Deleted
		} else {
			delete(o.Deleted, id)
		}
		restoreStored(o, id, r.Stored)
		r.Lab.restore(o, id)
		return restoreStatus(st, id, r.Status, r.StatusTouched)
	case *AdminReturnNotesUndo:
		setList(o.AdminReturnNotes, id, r.Notes)
		r.Lab.restore(o, id)
		setFlag(o.WarehouseReturned, id, r.WarehouseReturned)
		return restoreStatus(st, id, r.Status, r.StatusTouched)
	case *IssueReasonsUndo:
		setList(o.IssueReasons, id, r.Reasons)
		r.Lab.restore(o, id)
		return nil
	case *ConflictUndo:
		if _, ok := st.Conflicts[r.Prior.ID]; !ok {
			return nil
		}
		st.Conflicts[r.Prior.ID] = r.Prior
		status, note := r.Prior.Status, r.Prior.ResolutionNote
		return []remoteStep{patchConflictStep(r.Prior.ID, backend.ConflictPatch{Status: &status, ResolutionNote: &note})}
	}
	return nil
}

func restoreStored(o domain.Overrides, id string, flag *domain.StoredFlag) {
	if flag != nil {
		o.AdminStored[id] = *flag
	} else {
		delete(o.AdminStored, id)
	}
}

func restoreStatus(st *domain.State, id string, status domain.SampleStatus, touched bool) []remoteStep {
	if !touched {
		return nil
	}
	s, ok := st.Samples[id]
	if !ok {
		return nil
	}
	s.Status = status
	st.Samples[id] = s
	return []remoteStep{patchSampleStep(id, backend.SamplePatch{Status: &status})}
}

// UndoLog is a bounded LIFO of undo records. When full, the oldest record is
// discarded.
type UndoLog struct {
	mu       sync.Mutex
	capacity int
	records  []UndoRecord
}

// NewUndoLog creates a log holding at most capacity records.
func NewUndoLog(capacity int) *UndoLog {
	if capacity <= 0 {
		capacity = DefaultUndoCapacity
	}
	return &UndoLog{capacity: capacity}
}

// Push records rec as the most recent entry.
func (l *UndoLog) Push(rec UndoRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	if over := len(l.records) - l.capacity; over > 0 {
		l.records = append([]UndoRecord(nil), l.records[over:]...)
	}
}

// Pop removes and returns the most recent record.
func (l *UndoLog) Pop() (UndoRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return nil, false
	}
	rec := l.records[len(l.records)-1]
	l.records = l.records[:len(l.records)-1]
	return rec, true
}

// Remove drops the record produced by a mutation, used when that mutation
// rolls back.
func (l *UndoLog) Remove(mutationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, rec := range l.records {
		if rec.Meta().MutationID == mutationID {
			l.records = append(l.records[:i], l.records[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of records.
func (l *UndoLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns the records newest first.
func (l *UndoLog) Records() []UndoRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UndoRecord, 0, len(l.records))
	for i := len(l.records) - 1; i >= 0; i-- {
		out = append(out, l.records[i])
	}
	return out
}
