package workflow

import (
	"strings"
	"time"

	"github.com/pesio-ai/be-permits-portal/internal/submission"
)

const (
	submittedComment   = "Application has been submitted"
	resubmittedComment = "Resubmitted with revised documents"
)

// Engine applies workflow operations to applications. It enforces state
// preconditions only; who may call an operation is decided by the caller.
// Every operation validates before mutating, so a failed call leaves the
// application untouched.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine. A nil clock means time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Submit builds a new application in the initial state. It is the only way to
// create one.
func (e *Engine) Submit(id, catalogEntryID, userID string, applicant submission.Applicant) (*Application, error) {
	if err := applicant.Validate(); err != nil {
		return nil, err
	}
	now := e.now()
	app := &Application{
		ID:             id,
		CatalogEntryID: catalogEntryID,
		UserID:         userID,
		Applicant:      applicant.Normalize(),
		Status:         StatusSubmitted,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	app.History = []HistoryRecord{{
		Seq:           1,
		ApplicationID: id,
		Status:        StatusSubmitted,
		Comment:       submittedComment,
		Actor:         ActorSystem,
		ActorID:       userID,
		At:            now,
	}}
	return app, nil
}

// ── Transition ───────────────────────────────────────────────────────────────

// Transition moves app to target on behalf of a reviewer and returns the
// appended record. Revision instructions are kept only for NeedsRevision.
func (e *Engine) Transition(app *Application, target Status, comment, revisionInstructions, actorID string) (HistoryRecord, error) {
	if app.Status.IsTerminal() || !target.IsValid() || target == StatusSubmitted {
		return HistoryRecord{}, ErrInvalidTransition
	}
	instructions := strings.TrimSpace(revisionInstructions)
	if target == StatusNeedsRevision && instructions == "" {
		return HistoryRecord{}, ErrMissingRevisionInstructions
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return HistoryRecord{}, ErrMissingComment
	}

	rec := e.record(app, target, comment, ActorAdmin, actorID)
	if target == StatusNeedsRevision {
		rec.RevisionInstructions = &instructions
	}
	e.apply(app, rec)
	return rec, nil
}

// ── Resubmit ─────────────────────────────────────────────────────────────────

// Resubmit closes a revision cycle: the applicant supplied new documents and
// the application goes back under review.
func (e *Engine) Resubmit(app *Application, docs []*submission.Document, actorID string) (HistoryRecord, error) {
	if app.Status != StatusNeedsRevision {
		return HistoryRecord{}, ErrInvalidTransition
	}
	if len(docs) == 0 {
		return HistoryRecord{}, ErrNoDocumentsProvided
	}

	rec := e.record(app, StatusUnderReview, resubmittedComment, ActorSystem, actorID)
	e.apply(app, rec)
	return rec, nil
}

// ── Comments ─────────────────────────────────────────────────────────────────

// AddClientComment appends an unofficial applicant comment. The status does
// not change.
func (e *Engine) AddClientComment(app *Application, message, actorID string) (HistoryRecord, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return HistoryRecord{}, ErrEmptyComment
	}
	if app.Status.IsTerminal() {
		return HistoryRecord{}, ErrApplicationClosed
	}

	rec := e.record(app, app.Status, message, ActorClient, actorID)
	app.History = append(app.History, rec)
	app.UpdatedAt = rec.At
	return rec, nil
}

func (e *Engine) record(app *Application, status Status, comment string, actor Actor, actorID string) HistoryRecord {
	at := e.now()
	// The history must stay ordered even if the clock steps backwards.
	if n := len(app.History); n > 0 && at.Before(app.History[n-1].At) {
		at = app.History[n-1].At
	}
	var seq int64 = 1
	if n := len(app.History); n > 0 {
		seq = app.History[n-1].Seq + 1
	}
	return HistoryRecord{
		Seq:           seq,
		ApplicationID: app.ID,
		Status:        status,
		Comment:       comment,
		Actor:         actor,
		ActorID:       actorID,
		At:            at,
	}
}

func (e *Engine) apply(app *Application, rec HistoryRecord) {
	app.History = append(app.History, rec)
	app.Status = rec.Status
	app.RevisionInstructions = rec.RevisionInstructions
	if rec.Status == StatusApproved && app.ApprovedAt == nil {
		at := rec.At
		app.ApprovedAt = &at
	}
	app.UpdatedAt = rec.At
}
