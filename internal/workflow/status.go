// Package workflow is the application status state machine: legal
// transitions, the append-only history, the revision cycle and the derived
// progress timeline.
package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the workflow state of an application. The zero value is invalid.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusUnderReview   Status = "under_review"
	StatusNeedsRevision Status = "needs_revision"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

var statusOrder = map[Status]int{
	StatusSubmitted:     1,
	StatusUnderReview:   2,
	StatusNeedsRevision: 3,
	StatusApproved:      4,
	StatusRejected:      5,
}

var statusDisplay = map[Status]string{
	StatusSubmitted:     "Submitted",
	StatusUnderReview:   "Under Review",
	StatusNeedsRevision: "Needs Revision",
	StatusApproved:      "Approved",
	StatusRejected:      "Rejected",
}

// Statuses lists every status in total order.
func Statuses() []Status {
	return []Status{StatusSubmitted, StatusUnderReview, StatusNeedsRevision, StatusApproved, StatusRejected}
}

func (s Status) String() string { return string(s) }

// Order is the position in the total order, or 0 for an invalid status.
func (s Status) Order() int { return statusOrder[s] }

func (s Status) IsValid() bool { return s.Order() > 0 }

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// DisplayName is the human label.
func (s Status) DisplayName() string { return statusDisplay[s] }

// ParseStatus converts external input into a Status. It accepts the canonical
// name, the display name in any case, and the numeric order.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		for s, o := range statusOrder {
			if o == n {
				return s, nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, v)
	}

	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(v))
	if s := Status(norm); s.IsValid() {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, v)
}

// Actor is the role that authored a history record.
type Actor string

const (
	ActorAdmin  Actor = "admin"
	ActorClient Actor = "client"
	ActorSystem Actor = "system"
)

func (a Actor) IsValid() bool {
	return a == ActorAdmin || a == ActorClient || a == ActorSystem
}

// ParseActor converts a stored actor role.
func ParseActor(v string) (Actor, error) {
	a := Actor(strings.ToLower(strings.TrimSpace(v)))
	if !a.IsValid() {
		return "", fmt.Errorf("unknown actor %q", v)
	}
	return a, nil
}
