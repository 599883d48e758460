// Package domain defines the canonical workflow entities, view-scoped override
// annotations, and guard evaluation primitives used by sampleflow.
package domain

import "strings"

// EntityType identifies the type of record tracked by the entity store.
type EntityType string

// Supported entity type identifiers used in mutation records and persistence buckets.
const (
	// EntitySample identifies a physical lab sample.
	EntitySample EntityType = "sample"
	// EntityAnalysis identifies a planned analysis (method) attached to a sample.
	EntityAnalysis EntityType = "planned_analysis"
	// EntityConflict identifies an upload conflict awaiting supervision.
	EntityConflict EntityType = "conflict"
	// EntityBatch identifies an uploaded action batch.
	EntityBatch EntityType = "action_batch"
)

// SampleStatus enumerates the canonical sample lifecycle columns.
type SampleStatus string

// Canonical sample statuses. The same identifiers double as board column ids for
// the warehouse, lab and action supervision roles.
const (
	SampleStatusNew      SampleStatus = "new"
	SampleStatusProgress SampleStatus = "progress"
	// SampleStatusReview marks a sample that arrived and is stored.
	SampleStatusReview SampleStatus = "review"
	SampleStatusDone   SampleStatus = "done"
)

// Valid reports whether s is one of the canonical sample statuses.
func (s SampleStatus) Valid() bool {
	switch s {
	case SampleStatusNew, SampleStatusProgress, SampleStatusReview, SampleStatusDone:
		return true
	}
	return false
}

// AnalysisStatus enumerates planned analysis states.
type AnalysisStatus string

// Canonical analysis statuses.
const (
	AnalysisPlanned    AnalysisStatus = "planned"
	AnalysisInProgress AnalysisStatus = "in_progress"
	AnalysisReview     AnalysisStatus = "review"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// Priority ranks analysis statuses when redundant records of one method disagree.
// Unknown statuses rank below failed.
func (s AnalysisStatus) Priority() int {
	switch s {
	case AnalysisCompleted:
		return 4
	case AnalysisReview:
		return 3
	case AnalysisInProgress:
		return 2
	case AnalysisPlanned:
		return 1
	case AnalysisFailed:
		return 0
	}
	return -1
}

// ConflictStatus enumerates conflict resolution states.
type ConflictStatus string

// Canonical conflict statuses.
const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// Role identifies a workflow participant and the board it works from.
type Role string

// Supported roles.
const (
	RoleWarehouse         Role = "warehouse"
	RoleLab               Role = "lab"
	RoleAdmin             Role = "admin"
	RoleActionSupervision Role = "action_supervision"
)

// Roles lists every role in board order.
func Roles() []Role {
	return []Role{RoleWarehouse, RoleLab, RoleAdmin, RoleActionSupervision}
}

// Valid reports whether r names a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleWarehouse, RoleLab, RoleAdmin, RoleActionSupervision:
		return true
	}
	return false
}

// Sample is a physical specimen tracked through warehouse, lab and admin stages.
type Sample struct {
	SampleID        string       `json:"sample_id"`
	WellID          string       `json:"well_id"`
	Horizon         string       `json:"horizon"`
	SamplingDate    string       `json:"sampling_date"`
	StorageLocation string       `json:"storage_location"`
	AssignedTo      string       `json:"assigned_to"`
	Status          SampleStatus `json:"status"`
}

// PlannedAnalysis is one analysis method planned or performed on a sample.
type PlannedAnalysis struct {
	ID           string         `json:"id"`
	SampleID     string         `json:"sample_id"`
	AnalysisType string         `json:"analysis_type"`
	Status       AnalysisStatus `json:"status"`
	AssignedTo   []string       `json:"assigned_to"`
}

// Clone returns a copy that does not share the assignee slice.
func (a PlannedAnalysis) Clone() PlannedAnalysis {
	cp := a
	cp.AssignedTo = append([]string(nil), a.AssignedTo...)
	return cp
}

// Conflict captures two competing payloads for the same uploaded record.
type Conflict struct {
	ID             string         `json:"id"`
	OldPayload     string         `json:"old_payload"`
	NewPayload     string         `json:"new_payload"`
	Status         ConflictStatus `json:"status"`
	ResolutionNote string         `json:"resolution_note"`
}

// ActionBatch is an uploaded batch of actions, independent of samples.
type ActionBatch struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Date   string       `json:"date"`
	Status SampleStatus `json:"status"`
}

// Method is the merged, display-level view of one analysis type on a sample.
type Method struct {
	Name       string         `json:"name"`
	Status     AnalysisStatus `json:"status"`
	AssignedTo []string       `json:"assigned_to"`
}

// SameMethod reports whether two analysis type names identify the same method.
func SameMethod(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// User is a backend account with its assigned roles.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
}
