package workflow

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/pesio-ai/be-permits-portal/internal/submission"
)

// HistoryRecord is one immutable entry of an application's history: either a
// status change or a client comment.
type HistoryRecord struct {
	Seq                  int64     `json:"seq"`
	ApplicationID        string    `json:"application_id"`
	Status               Status    `json:"status"`
	Comment              string    `json:"comment"`
	RevisionInstructions *string   `json:"revision_instructions,omitempty"`
	Actor                Actor     `json:"actor"`
	ActorID              string    `json:"actor_id,omitempty"`
	At                   time.Time `json:"at"`
}

// ChangesStatus is false for client comments, which only restate the current
// status.
func (r HistoryRecord) ChangesStatus() bool {
	return r.Actor != ActorClient
}

// Application is the workflow aggregate.
type Application struct {
	ID                   string               `json:"id"`
	CatalogEntryID       string               `json:"catalog_entry_id"`
	UserID               string               `json:"user_id"`
	Applicant            submission.Applicant `json:"applicant"`
	Status               Status               `json:"status"`
	History              []HistoryRecord      `json:"history"`
	RevisionInstructions *string              `json:"revision_instructions,omitempty"`
	ApprovedAt           *time.Time           `json:"approved_at,omitempty"`
	Version              int                  `json:"version"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// ReferenceNumber is the citizen-facing reference, e.g. "APP-3F2A9C01".
func (a *Application) ReferenceNumber() string {
	hex := strings.ReplaceAll(a.ID, "-", "")
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "APP-" + strings.ToUpper(hex)
}

// IsActionableByApplicant reports whether the applicant has to act.
func (a *Application) IsActionableByApplicant() bool {
	return a.Status == StatusNeedsRevision
}

// Timeline derives the progress steps. See DeriveTimeline.
func (a *Application) Timeline(policy RejectionPolicy) iter.Seq[TimelineStep] {
	return DeriveTimeline(a, policy)
}

// Clone returns a deep copy so callers can mutate without affecting a shared
// instance.
func (a *Application) Clone() *Application {
	c := *a
	c.History = make([]HistoryRecord, len(a.History))
	copy(c.History, a.History)
	if a.RevisionInstructions != nil {
		v := *a.RevisionInstructions
		c.RevisionInstructions = &v
	}
	if a.ApprovedAt != nil {
		v := *a.ApprovedAt
		c.ApprovedAt = &v
	}
	return &c
}

// LastStatusChange returns the most recent status-changing record.
func (a *Application) LastStatusChange() (HistoryRecord, bool) {
	for i := len(a.History) - 1; i >= 0; i-- {
		if a.History[i].ChangesStatus() {
			return a.History[i], true
		}
	}
	return HistoryRecord{}, false
}

// CheckInvariants verifies that the aggregate is consistent with its history.
func CheckInvariants(a *Application) error {
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvariantViolation, a.Status)
	}
	if len(a.History) == 0 {
		return fmt.Errorf("%w: empty history", ErrInvariantViolation)
	}
	first := a.History[0]
	if first.Status != StatusSubmitted || first.Actor != ActorSystem {
		return fmt.Errorf("%w: history must start with the system submission record", ErrInvariantViolation)
	}
	if last := a.History[len(a.History)-1]; last.Status != a.Status {
		return fmt.Errorf("%w: last record is %s, application is %s", ErrInvariantViolation, last.Status, a.Status)
	}
	for i := 1; i < len(a.History); i++ {
		if a.History[i].At.Before(a.History[i-1].At) {
			return fmt.Errorf("%w: history out of order at %d", ErrInvariantViolation, i)
		}
	}
	if (a.RevisionInstructions != nil) != (a.Status == StatusNeedsRevision) {
		return fmt.Errorf("%w: revision instructions do not match status %s", ErrInvariantViolation, a.Status)
	}

	var firstApproval *time.Time
	for _, r := range a.History {
		if r.ChangesStatus() && r.Status == StatusApproved {
			at := r.At
			firstApproval = &at
			break
		}
	}
	switch {
	case firstApproval == nil && a.ApprovedAt != nil:
		return fmt.Errorf("%w: approved_at set without an approval", ErrInvariantViolation)
	case firstApproval != nil && (a.ApprovedAt == nil || !a.ApprovedAt.Equal(*firstApproval)):
		return fmt.Errorf("%w: approved_at does not match the first approval", ErrInvariantViolation)
	}
	return nil
}
