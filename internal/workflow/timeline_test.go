package workflow

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steps(app *Application, policy RejectionPolicy) map[string]TimelineStep {
	out := map[string]TimelineStep{}
	for s := range DeriveTimeline(app, policy) {
		out[s.Key] = s
	}
	return out
}

func TestTimelineTemplateOrder(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)

	var keys []string
	for s := range app.Timeline(RejectionBlank) {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"submitted", "document_verification", "under_review", "final_assessment", "decision"}, keys)
}

func TestTimelineSubmitted(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)

	got := steps(app, RejectionBlank)
	assert.True(t, got["submitted"].Current)
	require.NotNil(t, got["submitted"].At)
	assert.Equal(t, app.History[0].At, *got["submitted"].At)
	for _, k := range []string{"document_verification", "under_review", "final_assessment", "decision"} {
		assert.False(t, got[k].Done, k)
		assert.False(t, got[k].Current, k)
	}
}

func TestTimelineUnderReview(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)
	rec, err := e.Transition(app, StatusUnderReview, "reviewing", "", "admin-1")
	require.NoError(t, err)

	got := steps(app, RejectionBlank)
	assert.True(t, got["submitted"].Done)
	assert.True(t, got["document_verification"].Done)
	assert.Equal(t, rec.At, *got["document_verification"].At)
	assert.True(t, got["under_review"].Current)
	assert.False(t, got["under_review"].Done)
	assert.Equal(t, rec.At, *got["under_review"].At)
	assert.False(t, got["final_assessment"].Done)
}

func TestTimelineNeedsRevision(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)
	_, err := e.Transition(app, StatusUnderReview, "reviewing", "", "admin-1")
	require.NoError(t, err)
	rec, err := e.Transition(app, StatusNeedsRevision, "please fix plans", "update measurements", "admin-1")
	require.NoError(t, err)
	_, err = e.AddClientComment(app, "working on it", "user-1")
	require.NoError(t, err)

	got := steps(app, RejectionBlank)
	review := got["under_review"]
	assert.False(t, review.Done)
	assert.True(t, review.Current)
	assert.Contains(t, review.Description, "update measurements")
	require.NotNil(t, review.At)
	assert.Equal(t, rec.At, *review.At, "client comments do not move the step date")
	assert.True(t, got["submitted"].Done)
	assert.False(t, got["final_assessment"].Done)
}

func TestTimelineApproved(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)
	_, err := e.Transition(app, StatusUnderReview, "reviewing", "", "admin-1")
	require.NoError(t, err)
	rec, err := e.Transition(app, StatusApproved, "permit granted", "", "admin-1")
	require.NoError(t, err)

	got := steps(app, RejectionBlank)
	for _, k := range []string{"submitted", "document_verification", "under_review", "final_assessment"} {
		assert.True(t, got[k].Done, k)
		assert.NotNil(t, got[k].At, k)
	}
	decision := got["decision"]
	assert.Equal(t, "Approved", decision.Title)
	assert.True(t, decision.Done)
	assert.True(t, decision.Current)
	assert.Equal(t, "permit granted", decision.Description)
	assert.Equal(t, rec.At, *decision.At)
}

func rejectedApp(t *testing.T) (*Application, HistoryRecord) {
	t.Helper()
	e, _ := newTestEngine()
	app := submitted(t, e)
	_, err := e.Transition(app, StatusUnderReview, "reviewing", "", "admin-1")
	require.NoError(t, err)
	rec, err := e.Transition(app, StatusRejected, "zoning does not allow this use", "", "admin-1")
	require.NoError(t, err)
	return app, rec
}

func TestTimelineRejectedBlank(t *testing.T) {
	app, rec := rejectedApp(t)

	got := steps(app, RejectionBlank)
	for _, k := range []string{"submitted", "document_verification", "under_review", "final_assessment"} {
		assert.False(t, got[k].Done, k)
		assert.Nil(t, got[k].At, k)
		assert.Empty(t, got[k].Description, k)
	}
	decision := got["decision"]
	assert.Equal(t, "Rejected", decision.Title)
	assert.True(t, decision.Current)
	assert.Equal(t, rec.At, *decision.At)
	assert.Equal(t, "zoning does not allow this use", decision.Description)
}

func TestTimelineRejectedPreserve(t *testing.T) {
	app, _ := rejectedApp(t)

	got := steps(app, RejectionPreserve)
	assert.True(t, got["submitted"].Done)
	assert.Equal(t, app.History[0].At, *got["submitted"].At)
	assert.True(t, got["under_review"].Done)
	assert.Equal(t, app.History[1].At, *got["under_review"].At)
	assert.True(t, got["decision"].Current)
}

func TestTimelineRejectedPreserveSkipsUnreachedSteps(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)
	_, err := e.Transition(app, StatusRejected, "ineligible", "", "admin-1")
	require.NoError(t, err)

	got := steps(app, RejectionPreserve)
	assert.True(t, got["submitted"].Done)
	assert.False(t, got["under_review"].Done)
	assert.True(t, got["final_assessment"].Done)
}

func TestTimelineIsDeterministicAndRestartable(t *testing.T) {
	app, _ := rejectedApp(t)
	seq := DeriveTimeline(app, RejectionPreserve)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
	assert.Equal(t, first, slices.Collect(DeriveTimeline(app, RejectionPreserve)))
}

func TestTimelineStopsEarly(t *testing.T) {
	e, _ := newTestEngine()
	app := submitted(t, e)

	n := 0
	for range DeriveTimeline(app, RejectionBlank) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestParseRejectionPolicy(t *testing.T) {
	p, ok := ParseRejectionPolicy("preserve")
	assert.True(t, ok)
	assert.Equal(t, RejectionPreserve, p)

	_, ok = ParseRejectionPolicy("forget")
	assert.False(t, ok)
}
