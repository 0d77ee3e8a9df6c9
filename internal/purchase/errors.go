package purchase

import (
	"errors"
	"fmt"

	"github.com/Additional-Code/procura/pkg/errorbank"
)

// ValidationError reports a malformed draft or update.
type ValidationError struct {
	Field   string
	Message string
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// RefusalReason explains why a transition was refused.
type RefusalReason string

const (
	ReasonNotAuthorized    RefusalReason = "not_authorized_for_role"
	ReasonAlreadyFinalized RefusalReason = "already_finalized"
	ReasonThresholdNotMet  RefusalReason = "threshold_not_met"
)

// TransitionRefusedError is returned when a role may not take an action on a
// purchase in its current state. The purchase is never modified.
type TransitionRefusedError struct {
	Reason RefusalReason
	Role   Role
	Action Action
	Status Status
}

func (e *TransitionRefusedError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s cannot %s: %s", e.Role, e.Action, e.Reason)
	}
	return fmt.Sprintf("%s cannot %s a %s purchase: %s", e.Role, e.Action, e.Status, e.Reason)
}

// AppError renders err for transports. Validation failures become bad requests
// naming the field and refused transitions become conflicts carrying the
// reason. Application errors pass through; anything else is internal.
func AppError(err error) *errorbank.AppError {
	if err == nil {
		return nil
	}
	var appErr *errorbank.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return errorbank.BadRequest(validation.Error(), errorbank.WithCause(err), errorbank.WithDetail("field", validation.Field))
	}
	var refused *TransitionRefusedError
	if errors.As(err, &refused) {
		details := map[string]any{"reason": string(refused.Reason)}
		if refused.Status != "" {
			details["status"] = string(refused.Status)
		}
		if refused.Role != "" {
			details["role"] = string(refused.Role)
		}
		if refused.Action != "" {
			details["action"] = string(refused.Action)
		}
		return errorbank.Conflict(refused.Error(), errorbank.WithCause(err), errorbank.WithDetails(details))
	}
	return errorbank.From(err)
}
