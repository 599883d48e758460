// Package status reduces a sample's analysis records to merged methods and a
// single composite lifecycle status. Everything here is pure.
package status

import (
	"strings"

	"sampleflow/pkg/domain"
)

// FromAnalyses converts planned analysis records into unmerged methods,
// preserving input order.
func FromAnalyses(analyses []domain.PlannedAnalysis) []domain.Method {
	out := make([]domain.Method, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, domain.Method{
			Name:       a.AnalysisType,
			Status:     a.Status,
			AssignedTo: append([]string(nil), a.AssignedTo...),
		})
	}
	return out
}

// MergeMethods collapses same-named methods (case-insensitive). For each name
// the highest-priority status wins, with later entries winning ties, and the
// assignees of every instance are unioned in first-seen order. Output order is
// the order in which each name first appears, so MergeMethods is idempotent.
func MergeMethods(methods []domain.Method) []domain.Method {
	if len(methods) == 0 {
		return nil
	}
	index := make(map[string]int, len(methods))
	out := make([]domain.Method, 0, len(methods))
	for _, m := range methods {
		key := methodKey(m.Name)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, domain.Method{
				Name:       m.Name,
				Status:     m.Status,
				AssignedTo: unionAssignees(nil, m.AssignedTo),
			})
			continue
		}
		kept := &out[i]
		if m.Status.Priority() >= kept.Status.Priority() {
			kept.Name = m.Name
			kept.Status = m.Status
		}
		kept.AssignedTo = unionAssignees(kept.AssignedTo, m.AssignedTo)
	}
	return out
}

// MergeAnalyses is FromAnalyses followed by MergeMethods.
func MergeAnalyses(analyses []domain.PlannedAnalysis) []domain.Method {
	return MergeMethods(FromAnalyses(analyses))
}

func methodKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func unionAssignees(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, name := range extra {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" || containsFold(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func containsFold(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
