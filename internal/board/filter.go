package board

import (
	"strings"

	"sampleflow/pkg/domain"
)

// Query holds the cross-cutting filters and sort applied after bucketing.
type Query struct {
	// Search is a case-insensitive substring matched against every display field.
	Search string `json:"search,omitempty"`
	// Methods keeps cards carrying at least one of the named methods.
	Methods []string `json:"methods,omitempty"`
	// AssignedTo keeps cards where the user appears as an assignee token.
	AssignedTo string `json:"assigned_to,omitempty"`
	// IncompleteOnly keeps cards with at least one method not completed.
	IncompleteOnly bool                  `json:"incomplete_only,omitempty"`
	Sort           domain.SortPreference `json:"sort"`
}

func (q Query) filter(cards []Card) []Card {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	user := strings.TrimSpace(q.AssignedTo)
	out := cards[:0:0]
	for _, c := range cards {
		if needle != "" && !matchesSearch(c, needle) {
			continue
		}
		if len(q.Methods) > 0 && !hasAnyMethod(c, q.Methods) {
			continue
		}
		if user != "" && !assignedTo(c, user) {
			continue
		}
		if q.IncompleteOnly && !incomplete(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func displayFields(c Card) []string {
	fields := []string{c.ID, c.StatusLabel, c.DeletedReason}
	if s := c.Sample; s != nil {
		fields = append(fields, s.SampleID, s.WellID, s.Horizon, s.SamplingDate, s.StorageLocation, s.AssignedTo)
	}
	if b := c.Batch; b != nil {
		fields = append(fields, b.Title, b.Date)
	}
	if cf := c.Conflict; cf != nil {
		fields = append(fields, cf.OldPayload, cf.NewPayload, cf.ResolutionNote, string(cf.Status))
	}
	for _, m := range c.Methods {
		fields = append(fields, m.Name)
		fields = append(fields, m.AssignedTo...)
	}
	fields = append(fields, c.IssueReasons...)
	fields = append(fields, c.ReturnNotes...)
	return fields
}

func matchesSearch(c Card, needle string) bool {
	for _, f := range displayFields(c) {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func hasAnyMethod(c Card, names []string) bool {
	for _, m := range c.Methods {
		for _, n := range names {
			if domain.SameMethod(m.Name, n) {
				return true
			}
		}
	}
	return false
}

// assigneeTokens splits a free-text assignee field on commas and semicolons.
func assigneeTokens(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func assignedTo(c Card, user string) bool {
	var tokens []string
	if c.Sample != nil {
		tokens = append(tokens, assigneeTokens(c.Sample.AssignedTo)...)
	}
	for _, m := range c.Methods {
		for _, a := range m.AssignedTo {
			tokens = append(tokens, assigneeTokens(a)...)
		}
	}
	for _, t := range tokens {
		if strings.EqualFold(t, user) {
			return true
		}
	}
	return false
}

func incomplete(c Card) bool {
	for _, m := range c.Methods {
		if m.Status != domain.AnalysisCompleted {
			return true
		}
	}
	return false
}
