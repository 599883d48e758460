package domain

import (
	"sort"
	"time"
)

// StoredSource records which admin bucket a sample was archived from.
type StoredSource string

// Admin store sources.
const (
	StoredFromIssues         StoredSource = "issues"
	StoredFromNeedsAttention StoredSource = "needs_attention"
)

// StoredFlag marks a sample as archived by an admin.
type StoredFlag struct {
	Source StoredSource `json:"source"`
}

// DeletedInfo is the soft-delete annotation kept for a sample.
type DeletedInfo struct {
	Reason     string       `json:"reason"`
	PrevStatus SampleStatus `json:"prev_status"`
}

// Comment is one entry of a sample's comment thread.
type Comment struct {
	Author    string    `json:"author"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SortKey selects the single board sort key.
type SortKey string

// Supported sort keys. SortNone keeps column order as projected.
const (
	SortNone         SortKey = ""
	SortSampleID     SortKey = "sample_id"
	SortSamplingDate SortKey = "sampling_date"
	SortCompleted    SortKey = "completed_methods"
)

// SortPreference is a persisted per-role, per-user board ordering.
type SortPreference struct {
	Key        SortKey `json:"key"`
	Descending bool    `json:"descending"`
}

// Overrides holds the view-scoped annotations layered on top of canonical
// entity state. All maps are keyed by sample id except SortPrefs, which is
// keyed by SortPrefKey.
type Overrides struct {
	LabStatus         map[string]SampleStatus   `json:"lab_status"`
	LabReturned       map[string]bool           `json:"lab_returned"`
	WarehouseReturned map[string]bool           `json:"warehouse_returned"`
	AdminStored       map[string]StoredFlag     `json:"admin_stored"`
	Deleted           map[string]DeletedInfo    `json:"deleted"`
	IssueReasons      map[string][]string       `json:"issue_reasons"`
	AdminReturnNotes  map[string][]string       `json:"admin_return_notes"`
	Comments          map[string][]Comment      `json:"comments"`
	CreatedMarkers    map[string]bool           `json:"created_markers"`
	SortPrefs         map[string]SortPreference `json:"sort_prefs"`
}

// NewOverrides returns an Overrides value with every map allocated.
func NewOverrides() Overrides {
	return Overrides{
		LabStatus:         make(map[string]SampleStatus),
		LabReturned:       make(map[string]bool),
		WarehouseReturned: make(map[string]bool),
		AdminStored:       make(map[string]StoredFlag),
		Deleted:           make(map[string]DeletedInfo),
		IssueReasons:      make(map[string][]string),
		AdminReturnNotes:  make(map[string][]string),
		Comments:          make(map[string][]Comment),
		CreatedMarkers:    make(map[string]bool),
		SortPrefs:         make(map[string]SortPreference),
	}
}

// SortPrefKey builds the SortPrefs key for a role and user.
func SortPrefKey(role Role, user string) string {
	return string(role) + ":" + user
}

// Clone returns a deep copy of the override maps.
func (o Overrides) Clone() Overrides {
	cp := NewOverrides()
	for k, v := range o.LabStatus {
		cp.LabStatus[k] = v
	}
	for k, v := range o.LabReturned {
		cp.LabReturned[k] = v
	}
	for k, v := range o.WarehouseReturned {
		cp.WarehouseReturned[k] = v
	}
	for k, v := range o.AdminStored {
		cp.AdminStored[k] = v
	}
	for k, v := range o.Deleted {
		cp.Deleted[k] = v
	}
	for k, v := range o.IssueReasons {
		cp.IssueReasons[k] = append([]string(nil), v...)
	}
	for k, v := range o.AdminReturnNotes {
		cp.AdminReturnNotes[k] = append([]string(nil), v...)
	}
	for k, v := range o.Comments {
		cp.Comments[k] = append([]Comment(nil), v...)
	}
	for k, v := range o.CreatedMarkers {
		cp.CreatedMarkers[k] = v
	}
	for k, v := range o.SortPrefs {
		cp.SortPrefs[k] = v
	}
	return cp
}

// State is a point-in-time view of canonical entities plus overrides.
type State struct {
	Samples   map[string]Sample          `json:"samples"`
	Analyses  map[string]PlannedAnalysis `json:"analyses"`
	Conflicts map[string]Conflict        `json:"conflicts"`
	Batches   map[string]ActionBatch     `json:"batches"`
	Overrides Overrides                  `json:"overrides"`
}

// NewState returns an empty State with allocated collections.
func NewState() State {
	return State{
		Samples:   make(map[string]Sample),
		Analyses:  make(map[string]PlannedAnalysis),
		Conflicts: make(map[string]Conflict),
		Batches:   make(map[string]ActionBatch),
		Overrides: NewOverrides(),
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	cp := NewState()
	for k, v := range s.Samples {
		cp.Samples[k] = v
	}
	for k, v := range s.Analyses {
		cp.Analyses[k] = v.Clone()
	}
	for k, v := range s.Conflicts {
		cp.Conflicts[k] = v
	}
	for k, v := range s.Batches {
		cp.Batches[k] = v
	}
	cp.Overrides = s.Overrides.Clone()
	return cp
}

// AnalysesFor returns the planned analyses attached to a sample ordered by id.
func (s State) AnalysesFor(sampleID string) []PlannedAnalysis {
	var out []PlannedAnalysis
	for _, a := range s.Analyses {
		if a.SampleID == sampleID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
