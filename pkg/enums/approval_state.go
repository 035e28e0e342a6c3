package enums

import (
	"fmt"
	"strings"
)

// ApprovalState tracks where a user sits in the manual approval workflow.
type ApprovalState string

const (
	ApprovalPendiente  ApprovalState = "pendiente"
	ApprovalAprobado   ApprovalState = "aprobado"
	ApprovalRechazado  ApprovalState = "rechazado"
	ApprovalSuspendido ApprovalState = "suspendido"
)

var validApprovalStates = []ApprovalState{
	ApprovalPendiente,
	ApprovalAprobado,
	ApprovalRechazado,
	ApprovalSuspendido,
}

func (s ApprovalState) String() string {
	return string(s)
}

func (s ApprovalState) IsValid() bool {
	for _, candidate := range validApprovalStates {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s ApprovalState) IsApproved() bool {
	return s == ApprovalAprobado
}

// ParseApprovalState converts raw input into an ApprovalState.
func ParseApprovalState(value string) (ApprovalState, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validApprovalStates {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid approval state %q", value)
}
