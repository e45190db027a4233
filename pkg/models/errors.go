package models

import "errors"

// Sentinel errors for the coordination core. Callers classify failures with
// errors.Is and the HTTP layer maps each one to a stable code and status.
var (
	ErrNotFound                = errors.New("not found")
	ErrAccessDenied            = errors.New("access denied")
	ErrInvalidState            = errors.New("invalid state")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrValidation              = errors.New("validation error")
	ErrServiceUnavailable      = errors.New("service unavailable")
	ErrDuplicateStep           = errors.New("duplicate step")
	ErrSupersededStep          = errors.New("step already superseded")
	ErrRecoveryInProgress      = errors.New("recovery already in progress")
	ErrAlreadyRunning          = errors.New("workflow already running")
	ErrNoRecoverableCheckpoint = errors.New("no recoverable checkpoint")
	ErrCheckpointNotFound      = errors.New("checkpoint not found")
)

// ErrorCode returns the machine-readable code for an error, suitable for the
// ErrorResponse envelope.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, ErrDuplicateStep):
		return "DUPLICATE_STEP"
	case errors.Is(err, ErrSupersededStep):
		return "SUPERSEDED_STEP"
	case errors.Is(err, ErrRecoveryInProgress):
		return "RECOVERY_IN_PROGRESS"
	case errors.Is(err, ErrAlreadyRunning):
		return "ALREADY_RUNNING"
	case errors.Is(err, ErrNoRecoverableCheckpoint):
		return "NO_RECOVERABLE_CHECKPOINT"
	case errors.Is(err, ErrCheckpointNotFound):
		return "CHECKPOINT_NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
