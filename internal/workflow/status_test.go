package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"submitted", StatusSubmitted},
		{"Under Review", StatusUnderReview},
		{"needs-revision", StatusNeedsRevision},
		{"NEEDS_REVISION", StatusNeedsRevision},
		{"4", StatusApproved},
		{" 5 ", StatusRejected},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "pending", "0", "6", "approved!"} {
		_, err := ParseStatus(bad)
		assert.ErrorIs(t, err, ErrUnknownStatus, bad)
	}
}

func TestStatusOrderAndTerminal(t *testing.T) {
	for i, s := range Statuses() {
		assert.Equal(t, i+1, s.Order())
		assert.True(t, s.IsValid())
		assert.NotEmpty(t, s.DisplayName())
	}
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusNeedsRevision.IsTerminal())
	assert.False(t, Status("").IsValid())
}

func TestParseActor(t *testing.T) {
	a, err := ParseActor("Admin")
	require.NoError(t, err)
	assert.Equal(t, ActorAdmin, a)

	_, err = ParseActor("reviewer")
	assert.Error(t, err)
}
