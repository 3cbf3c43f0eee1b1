package workflow

import (
	"iter"
	"slices"
	"time"
)

// RejectionPolicy decides what the timeline of a rejected application shows
// for the steps before the rejection.
type RejectionPolicy int

const (
	// RejectionBlank clears every step except the rejection itself.
	RejectionBlank RejectionPolicy = iota
	// RejectionPreserve keeps completed steps and their dates.
	RejectionPreserve
)

// ParseRejectionPolicy accepts "blank" or "preserve".
func ParseRejectionPolicy(v string) (RejectionPolicy, bool) {
	switch v {
	case "blank", "":
		return RejectionBlank, true
	case "preserve":
		return RejectionPreserve, true
	default:
		return RejectionBlank, false
	}
}

// TimelineStep is one rendered progress step.
type TimelineStep struct {
	Key         string     `json:"key"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Done        bool       `json:"done"`
	Current     bool       `json:"current"`
	At          *time.Time `json:"at,omitempty"`
}

type stepTemplate struct {
	key         string
	title       string
	description string
	rank        int
	matches     []Status
}

var timelineTemplate = []stepTemplate{
	{
		key:         "submitted",
		title:       "Submitted",
		description: "Application received",
		rank:        1,
		matches:     []Status{StatusSubmitted},
	},
	{
		key:         "document_verification",
		title:       "Document Verification",
		description: "Supporting documents are checked for completeness",
		rank:        1,
	},
	{
		key:         "under_review",
		title:       "Under Review",
		description: "An officer is reviewing the application",
		rank:        2,
		matches:     []Status{StatusUnderReview, StatusNeedsRevision},
	},
	{
		key:         "final_assessment",
		title:       "Final Assessment",
		description: "Final assessment of the application",
		rank:        3,
	},
	{
		key:         "decision",
		title:       "Decision",
		description: "Awaiting decision",
		rank:        4,
		matches:     []Status{StatusApproved, StatusRejected},
	},
}

// DeriveTimeline recomputes the progress steps from the application's status
// and history. The sequence is finite, and ranging over it again recomputes
// the same steps while the application is unchanged.
//
// A step is done when its rank is below the current status order. The step
// matching the current status is current and dated by the latest record that
// entered that status. While a revision is requested the Under Review step is
// not done and shows the revision instructions. A rejected application shows
// only the rejection under RejectionBlank.
func DeriveTimeline(app *Application, policy RejectionPolicy) iter.Seq[TimelineStep] {
	return func(yield func(TimelineStep) bool) {
		for _, tmpl := range timelineTemplate {
			if !yield(deriveStep(app, tmpl, policy)) {
				return
			}
		}
	}
}

func deriveStep(app *Application, tmpl stepTemplate, policy RejectionPolicy) TimelineStep {
	step := TimelineStep{
		Key:         tmpl.key,
		Title:       tmpl.title,
		Description: tmpl.description,
	}
	current := slices.Contains(tmpl.matches, app.Status)
	order := app.Status.Order()

	if tmpl.key == "decision" && app.Status.IsTerminal() {
		step.Title = app.Status.DisplayName()
		if rec, ok := latestEntry(app, app.Status); ok {
			step.Description = rec.Comment
		}
	}

	if app.Status == StatusRejected && policy == RejectionBlank && !current {
		step.Description = ""
		return step
	}

	switch {
	case current:
		step.Current = true
		step.Done = app.Status.IsTerminal()
		if rec, ok := latestEntry(app, app.Status); ok {
			at := rec.At
			step.At = &at
		}
	case tmpl.rank < order:
		step.At = completedAt(app, tmpl)
		// A rejection can skip steps; only those actually reached count.
		step.Done = app.Status != StatusRejected || step.At != nil
	}

	if tmpl.key == "under_review" && app.Status == StatusNeedsRevision {
		step.Done = false
		step.Description = "Revision requested"
		if app.RevisionInstructions != nil {
			step.Description = "Revision requested: " + *app.RevisionInstructions
		}
	}
	return step
}

// latestEntry returns the most recent status-changing record into status.
func latestEntry(app *Application, status Status) (HistoryRecord, bool) {
	for i := len(app.History) - 1; i >= 0; i-- {
		r := app.History[i]
		if r.ChangesStatus() && r.Status == status {
			return r, true
		}
	}
	return HistoryRecord{}, false
}

// completedAt dates a finished step. Steps tied to a status use the latest
// entry into one of those statuses; the others use the first record that
// moved past their rank.
func completedAt(app *Application, tmpl stepTemplate) *time.Time {
	if len(tmpl.matches) > 0 {
		for i := len(app.History) - 1; i >= 0; i-- {
			r := app.History[i]
			if r.ChangesStatus() && slices.Contains(tmpl.matches, r.Status) {
				at := r.At
				return &at
			}
		}
		return nil
	}
	for _, r := range app.History {
		if r.ChangesStatus() && r.Status.Order() > tmpl.rank {
			at := r.At
			return &at
		}
	}
	return nil
}
