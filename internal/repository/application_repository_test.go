package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

func TestBuildListFilter(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		name      string
		filter    ApplicationFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "no filter",
			filter:    ApplicationFilter{},
			wantWhere: "",
		},
		{
			name:      "user only",
			filter:    ApplicationFilter{UserID: "user-1"},
			wantWhere: " WHERE user_id = $1",
			wantArgs:  []any{"user-1"},
		},
		{
			name:      "all fields",
			filter:    ApplicationFilter{UserID: "user-1", Status: workflow.StatusNeedsRevision, From: &from, To: &to},
			wantWhere: " WHERE user_id = $1 AND status = $2::application_status AND created_at >= $3 AND created_at < $4",
			wantArgs:  []any{"user-1", "needs_revision", from, to},
		},
		{
			name:      "status and range",
			filter:    ApplicationFilter{Status: workflow.StatusApproved, To: &to},
			wantWhere: " WHERE status = $1::application_status AND created_at < $2",
			wantArgs:  []any{"approved", to},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildListFilter(tt.filter)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPageBounds(t *testing.T) {
	limit, offset := pageBounds(ApplicationFilter{})
	assert.Equal(t, defaultListLimit, limit)
	assert.Equal(t, 0, offset)

	limit, offset = pageBounds(ApplicationFilter{Limit: 10_000, Offset: -4})
	assert.Equal(t, maxListLimit, limit)
	assert.Equal(t, 0, offset)

	limit, offset = pageBounds(ApplicationFilter{Limit: 20, Offset: 40})
	assert.Equal(t, 20, limit)
	assert.Equal(t, 40, offset)
}
