package core

import (
	"fmt"

	"sampleflow/internal/board"
	"sampleflow/pkg/domain"
)

const (
	ruleTransition = "transition_guard"
	rulePermission = "role_permission"
)

type transitionMachine struct {
	label    string
	columns  map[string]struct{}
	terminal map[string]string
	allowed  map[string]map[string]struct{}
	rejectTo map[string]string
}

var transitionMachines = map[domain.Role]transitionMachine{
	domain.RoleWarehouse: {
		label:    "warehouse",
		columns:  toSet("new", "progress", "review", "done"),
		terminal: map[string]string{"done": "issues are terminal for the warehouse"},
		allowed: map[string]map[string]struct{}{
			"new":      toSet("progress", "review"),
			"progress": toSet("new", "review"),
			"review":   toSet("done"),
		},
	},
	domain.RoleLab: {
		label:   "lab",
		columns: toSet("new", "progress", "review", "done"),
		terminal: map[string]string{
			"review": "samples needing attention are handled by an admin",
			"done":   "completed samples cannot be moved",
		},
		allowed: map[string]map[string]struct{}{
			"new":      toSet("progress", "review"),
			"progress": toSet("progress", "review"),
		},
		rejectTo: map[string]string{
			"done": "completion is automatic once every method is completed",
		},
	},
	domain.RoleAdmin: {
		label:   "admin",
		columns: toSet(board.AdminNeedsAttention, board.AdminIssues, board.AdminStored, board.AdminDeleted),
		terminal: map[string]string{
			board.AdminStored:  "stored samples can only be restored",
			board.AdminDeleted: "deleted samples can only be restored",
		},
		allowed: map[string]map[string]struct{}{
			board.AdminNeedsAttention: toSet(board.AdminStored, board.AdminDeleted),
			board.AdminIssues:         toSet(board.AdminStored, board.AdminDeleted),
		},
	},
	domain.RoleActionSupervision: {
		label:   "action supervision",
		columns: toSet("new", "progress", "done"),
		rejectTo: map[string]string{
			"new":      "action supervision cards move through conflict resolution",
			"progress": "action supervision cards move through conflict resolution",
			"done":     "action supervision cards move through conflict resolution",
		},
	},
}

// CheckTransition evaluates a drag of card id from one column to another on
// the role's board. Same-column drops are accepted.
func CheckTransition(role domain.Role, id, from, to string) domain.Result {
	machine, ok := transitionMachines[role]
	if !ok {
		return blocked(ruleTransition, id, fmt.Sprintf("unknown role %q", role))
	}
	if _, ok := machine.columns[to]; !ok {
		return blocked(ruleTransition, id, fmt.Sprintf("%s board has no column %q", machine.label, to))
	}
	if msg, ok := machine.rejectTo[to]; ok {
		return blocked(ruleTransition, id, fmt.Sprintf("cannot move %s to %s: %s", id, to, msg))
	}
	if from == to {
		return domain.Result{}
	}
	if msg, ok := machine.terminal[from]; ok {
		return blocked(ruleTransition, id, fmt.Sprintf("cannot move %s from %s: %s", id, from, msg))
	}
	if _, ok := machine.allowed[from][to]; !ok {
		return blocked(ruleTransition, id, fmt.Sprintf("%s cannot move %s from %s to %s", machine.label, id, from, to))
	}
	return domain.Result{}
}

var kindRoles = map[ActionKind]map[domain.Role]struct{}{
	ActionMoveCard:          roleSet(domain.RoleWarehouse, domain.RoleLab, domain.RoleAdmin, domain.RoleActionSupervision),
	ActionUpdateSampleField: roleSet(domain.RoleWarehouse, domain.RoleAdmin),
	ActionToggleMethod:      roleSet(domain.RoleLab, domain.RoleAdmin),
	ActionResolveConflict:   roleSet(domain.RoleActionSupervision, domain.RoleAdmin),
	ActionAddComment:        roleSet(domain.RoleWarehouse, domain.RoleLab, domain.RoleAdmin, domain.RoleActionSupervision),
	ActionCreateSample:      roleSet(domain.RoleWarehouse),
	ActionDeleteSample:      roleSet(domain.RoleAdmin),
	ActionRestoreSample:     roleSet(domain.RoleAdmin),
	ActionAdminStore:        roleSet(domain.RoleAdmin),
	ActionAdminReturn:       roleSet(domain.RoleAdmin),
	ActionAssignOperator:    roleSet(domain.RoleLab, domain.RoleAdmin),
	ActionPlanAnalysis:      roleSet(domain.RoleLab, domain.RoleAdmin),
}

// CheckPermission reports whether role may issue the action kind.
func CheckPermission(role domain.Role, kind ActionKind) domain.Result {
	roles, ok := kindRoles[kind]
	if !ok {
		return blocked(rulePermission, "", fmt.Sprintf("unknown action %q", kind))
	}
	if _, ok := roles[role]; !ok {
		return blocked(rulePermission, "", fmt.Sprintf("role %s may not %s", role, kind))
	}
	return domain.Result{}
}

func blocked(rule, id, msg string) domain.Result {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntitySample,
		EntityID: id,
	}}}
}

func guardError(role domain.Role, res domain.Result) error {
	if !res.HasBlocking() {
		return nil
	}
	return domain.GuardError{Role: role, Result: res}
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func roleSet(roles ...domain.Role) map[domain.Role]struct{} {
	set := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}
