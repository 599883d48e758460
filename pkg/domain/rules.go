package domain

import (
	"fmt"
	"strings"
)

// Severity captures guard outcomes.
type Severity string

// Guard severities determine whether an action is accepted.
const (
	// SeverityBlock rejects the action before any optimistic change.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but the action proceeds.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed transition guard.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates guard violations.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// GuardError is returned when a role-specific transition guard rejects an action.
type GuardError struct {
	Role   Role
	Result Result
}

func (e GuardError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("%s action blocked by guards", e.Role)
	}
	return fmt.Sprintf("%s action blocked: %s", e.Role, strings.Join(msgs, "; "))
}
