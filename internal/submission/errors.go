package submission

import (
	"fmt"

	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

var (
	ErrUnsupportedFileType   = errors.New(errors.ErrCodeInvalidInput, "unsupported file type")
	ErrFileTooLarge          = errors.New(errors.ErrCodeInvalidInput, "file exceeds the 5 MiB limit")
	ErrCannotRemovePersisted = errors.New(errors.ErrCodeConflict, "cannot remove a persisted document")
	ErrUploadInProgress      = errors.New(errors.ErrCodeConflict, "document upload in progress")
	ErrDocumentNotStaged     = errors.New(errors.ErrCodeNotFound, "document is not staged")
	ErrStagerClosed          = errors.New(errors.ErrCodeConflict, "document stager is closed")
	ErrWizardClosed          = errors.New(errors.ErrCodeConflict, "submission form is closed")
	ErrSubmitFromReview      = errors.New(errors.ErrCodeInvalidInput, "review step is completed by submitting")
	ErrNotAtReview           = errors.New(errors.ErrCodeInvalidInput, "submission is only possible from the review step")
	ErrFailedDocuments       = errors.New(errors.ErrCodeInvalidInput, "remove or retry failed documents before continuing")
)

// ValidationError names the first applicant field that failed validation.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) ErrorCode() errors.Code {
	return errors.ErrCodeInvalidInput
}
