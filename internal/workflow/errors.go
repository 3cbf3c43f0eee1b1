package workflow

import "github.com/pesio-ai/be-permits-portal/internal/platform/errors"

var (
	ErrInvalidTransition           = errors.New(errors.ErrCodeConflict, "invalid status transition")
	ErrMissingComment              = errors.New(errors.ErrCodeInvalidInput, "an official comment is required")
	ErrMissingRevisionInstructions = errors.New(errors.ErrCodeInvalidInput, "revision instructions are required")
	ErrNoDocumentsProvided         = errors.New(errors.ErrCodeInvalidInput, "at least one revised document is required")
	ErrEmptyComment                = errors.New(errors.ErrCodeInvalidInput, "comment must not be empty")
	ErrApplicationClosed           = errors.New(errors.ErrCodeConflict, "application is closed")
	ErrConcurrentModification      = errors.New(errors.ErrCodeConflict, "application was modified concurrently")
	ErrUnknownStatus               = errors.New(errors.ErrCodeInvalidInput, "unknown status")
	ErrInvariantViolation          = errors.New(errors.ErrCodeInternal, "application invariant violated")
)
