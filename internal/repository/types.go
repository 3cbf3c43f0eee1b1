package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// ApplicationFilter narrows List. Zero fields do not filter.
type ApplicationFilter struct {
	UserID string
	Status workflow.Status
	From   *time.Time // created_at >= From
	To     *time.Time // created_at < To
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)
