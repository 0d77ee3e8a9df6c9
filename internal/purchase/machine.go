package purchase

import (
	"strings"
	"time"
)

// Role is the approver acting on a purchase.
type Role string

const (
	RoleDirector Role = "director"
	RoleFinance  Role = "finance"
)

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleDirector, RoleFinance:
		return r, true
	}
	return "", false
}

// Action is a decision an approver can take.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction converts raw input into an Action.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionReject:
		return a, true
	}
	return "", false
}

// Apply runs the approval rules for role taking action on p at time now. It
// returns the updated purchase, or a *TransitionRefusedError leaving p as is.
func Apply(p Purchase, role Role, action Action, now time.Time) (Purchase, error) {
	refuse := func(reason RefusalReason) (Purchase, error) {
		return p, &TransitionRefusedError{Reason: reason, Role: role, Action: action, Status: p.Status}
	}

	if role != RoleDirector && role != RoleFinance {
		return refuse(ReasonNotAuthorized)
	}
	if p.FinanceApproved() || p.Status.Terminal() {
		return refuse(ReasonAlreadyFinalized)
	}

	next := p
	switch action {
	case ActionReject:
		next.Status = StatusRejected
		next.DirectorApproval = nil
		next.FinanceApproval = nil
		return next, nil
	case ActionApprove:
		switch role {
		case RoleDirector:
			if !p.RequiresDirector() {
				return refuse(ReasonThresholdNotMet)
			}
			if p.Status != StatusPending || p.DirectorApproved() {
				return refuse(ReasonAlreadyFinalized)
			}
			next.Status = StatusDirectorApproved
			next.DirectorApproval = &Approval{Approved: true, Date: now}
			return next, nil
		case RoleFinance:
			if p.RequiresDirector() && !p.DirectorApproved() {
				return refuse(ReasonThresholdNotMet)
			}
			next.Status = StatusFinanceApproved
			next.FinanceApproval = &Approval{Approved: true, Date: now}
			return next, nil
		}
	}
	return refuse(ReasonNotAuthorized)
}

// Allowed lists the actions role may currently take on p.
func Allowed(p Purchase, role Role) []Action {
	var actions []Action
	for _, action := range []Action{ActionApprove, ActionReject} {
		if _, err := Apply(p, role, action, time.Time{}); err == nil {
			actions = append(actions, action)
		}
	}
	return actions
}

// ActionForStatus maps a requested target status onto the action that role
// must take to reach it.
func ActionForStatus(target Status, role Role) (Action, error) {
	switch target {
	case StatusRejected:
		return ActionReject, nil
	case StatusDirectorApproved:
		if role == RoleDirector {
			return ActionApprove, nil
		}
	case StatusFinanceApproved:
		if role == RoleFinance {
			return ActionApprove, nil
		}
	case StatusPending:
		return "", invalid("status", "cannot be set back to pending")
	default:
		return "", invalid("status", "is not a known status")
	}
	return "", &TransitionRefusedError{Reason: ReasonNotAuthorized, Role: role, Action: ActionApprove}
}
