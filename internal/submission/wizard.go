package submission

import "context"

// Step is one page of the submission form.
type Step int

const (
	StepRequirements Step = iota
	StepPersonalInfo
	StepDocuments
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepRequirements:
		return "requirements"
	case StepPersonalInfo:
		return "personal_info"
	case StepDocuments:
		return "documents"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

// SubmitFunc performs the actual submission from the review step.
type SubmitFunc func(ctx context.Context, applicant Applicant, stager *Stager) error

// Wizard is the linear four-step submission form. Moving forward requires the
// current step to validate; moving back never does. The review step ends with
// Submit rather than Next.
type Wizard struct {
	step      Step
	applicant Applicant
	stager    *Stager
	closed    bool
}

// NewWizard starts a form at the requirements step. The wizard owns stager and
// releases it on Cancel or Close.
func NewWizard(stager *Stager) *Wizard {
	return &Wizard{step: StepRequirements, stager: stager}
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) Applicant() Applicant { return w.applicant }

func (w *Wizard) Stager() *Stager { return w.stager }

// SetApplicant replaces the personal details entered so far.
func (w *Wizard) SetApplicant(a Applicant) {
	w.applicant = a
}

// Stage adds a file to the form's documents.
func (w *Wizard) Stage(f File) (*Document, error) {
	if w.closed {
		return nil, ErrWizardClosed
	}
	return w.stager.Stage(f)
}

// Next validates the current step and advances.
func (w *Wizard) Next() error {
	if w.closed {
		return ErrWizardClosed
	}
	switch w.step {
	case StepPersonalInfo:
		if err := w.applicant.Validate(); err != nil {
			return err
		}
	case StepDocuments:
		if len(w.stager.Failed()) > 0 {
			return ErrFailedDocuments
		}
	case StepReview:
		return ErrSubmitFromReview
	}
	w.step++
	return nil
}

// Back returns to the previous step. It is a no-op on the first step.
func (w *Wizard) Back() {
	if w.closed || w.step == StepRequirements {
		return
	}
	w.step--
}

// Submit runs fn from the review step. The personal details are checked again
// in case they changed after the form passed that step. A failed submission
// leaves the form open so it can be retried.
func (w *Wizard) Submit(ctx context.Context, fn SubmitFunc) error {
	if w.closed {
		return ErrWizardClosed
	}
	if w.step != StepReview {
		return ErrNotAtReview
	}
	if err := w.applicant.Validate(); err != nil {
		return err
	}
	if err := fn(ctx, w.applicant.Normalize(), w.stager); err != nil {
		return err
	}
	return nil
}

// Cancel abandons the form and releases every staged document.
func (w *Wizard) Cancel() error {
	return w.Close()
}

// Close releases the form's resources. It is safe to call after Cancel.
func (w *Wizard) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.stager.Close()
}
