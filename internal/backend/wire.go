package backend

import (
	"bytes"
	"encoding/json"
	"strconv"

	"sampleflow/pkg/domain"
)

// flexID accepts identifiers encoded either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexID(n.String())
	return nil
}

// flexList accepts either a JSON array of strings or a single delimited string.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = nil
			return nil
		}
		*f = flexList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = list
	return nil
}

type wireAnalysis struct {
	ID           flexID                `json:"id"`
	SampleID     flexID                `json:"sample_id"`
	AnalysisType string                `json:"analysis_type"`
	Status       domain.AnalysisStatus `json:"status"`
	AssignedTo   flexList              `json:"assigned_to"`
}

func (w wireAnalysis) domain() domain.PlannedAnalysis {
	return domain.PlannedAnalysis{
		ID:           string(w.ID),
		SampleID:     string(w.SampleID),
		AnalysisType: w.AnalysisType,
		Status:       w.Status,
		AssignedTo:   []string(w.AssignedTo),
	}
}

type wireBatch struct {
	ID     flexID              `json:"id"`
	Title  string              `json:"title"`
	Date   string              `json:"date"`
	Status domain.SampleStatus `json:"status"`
}

func (w wireBatch) domain() domain.ActionBatch {
	return domain.ActionBatch{ID: string(w.ID), Title: w.Title, Date: w.Date, Status: w.Status}
}

type wireConflict struct {
	ID             flexID                `json:"id"`
	OldPayload     string                `json:"old_payload"`
	NewPayload     string                `json:"new_payload"`
	Status         domain.ConflictStatus `json:"status"`
	ResolutionNote string                `json:"resolution_note"`
}

func (w wireConflict) domain() domain.Conflict {
	return domain.Conflict{
		ID:             string(w.ID),
		OldPayload:     w.OldPayload,
		NewPayload:     w.NewPayload,
		Status:         w.Status,
		ResolutionNote: w.ResolutionNote,
	}
}

type wireUser struct {
	ID    flexID   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles flexList `json:"roles"`
}

func (w wireUser) domain() domain.User {
	return domain.User{ID: string(w.ID), Name: w.Name, Email: w.Email, Roles: []string(w.Roles)}
}
