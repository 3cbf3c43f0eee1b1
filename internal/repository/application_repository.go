package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-permits-portal/internal/platform/database"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

// ApplicationRepository persists workflow applications. Status changes are
// guarded by the row version so two reviewers acting on the same application
// cannot both win.
type ApplicationRepository struct {
	db      *database.DB
	history *StatusHistoryRepository
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *database.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db, history: NewStatusHistoryRepository(db)}
}

const applicationColumns = `
	id, catalog_entry_id, user_id,
	full_name, contact_number, address, purpose,
	status, revision_instructions, approved_at,
	version, created_at, updated_at
`

// Create inserts a new application together with its initial history.
func (r *ApplicationRepository) Create(ctx context.Context, app *workflow.Application) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO applications (id, catalog_entry_id, user_id,
			                          full_name, contact_number, address, purpose,
			                          status, revision_instructions, approved_at,
			                          version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::application_status, $9, $10, $11, $12, $13)
		`

		_, err := tx.Exec(ctx, query,
			app.ID,
			app.CatalogEntryID,
			app.UserID,
			app.Applicant.FullName,
			app.Applicant.ContactNumber,
			app.Applicant.Address,
			app.Applicant.Purpose,
			string(app.Status),
			app.RevisionInstructions,
			app.ApprovedAt,
			app.Version,
			app.CreatedAt,
			app.UpdatedAt,
		)
		if err != nil {
			return errors.IOError(err, "failed to create application")
		}

		for i := range app.History {
			if err := appendHistory(ctx, tx, &app.History[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns an application with its full history.
func (r *ApplicationRepository) Get(ctx context.Context, id string) (*workflow.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, err
	}

	app.History, err = r.history.ListByApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// List returns one page of applications matching filter, newest first, and the
// total number of matches.
func (r *ApplicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]*workflow.Application, int, error) {
	where, args := buildListFilter(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM applications` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.IOError(err, "failed to count applications")
	}

	limit, offset := pageBounds(filter)
	query := fmt.Sprintf(`SELECT %s FROM applications%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		applicationColumns, where, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.IOError(err, "failed to list applications")
	}
	defer rows.Close()

	var (
		apps []*workflow.Application
		ids  []string
	)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, app)
		ids = append(ids, app.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.IOError(err, "failed to read applications")
	}

	histories, err := r.history.ListByApplications(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, app := range apps {
		app.History = histories[app.ID]
	}
	return apps, total, nil
}

// buildListFilter renders the WHERE clause for List.
func buildListFilter(f ApplicationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d::application_status", string(f.Status))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pageBounds(f ApplicationFilter) (int, int) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// UpdateApplicationStatus writes the workflow fields if the stored version
// still equals expectedVersion, and returns the new version. approvedAt is
// only written when the column is still empty.
func (r *ApplicationRepository) UpdateApplicationStatus(
	ctx context.Context,
	id string,
	status workflow.Status,
	revisionInstructions *string,
	approvedAt *time.Time,
	expectedVersion int,
) (int, error) {
	return updateStatus(ctx, r.db, id, status, revisionInstructions, approvedAt, expectedVersion)
}

func updateStatus(
	ctx context.Context,
	q querier,
	id string,
	status workflow.Status,
	revisionInstructions *string,
	approvedAt *time.Time,
	expectedVersion int,
) (int, error) {
	query := `
		UPDATE applications
		SET status = $2::application_status,
		    revision_instructions = $3,
		    approved_at = COALESCE(approved_at, $4),
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING version
	`

	var version int
	err := q.QueryRow(ctx, query, id, string(status), revisionInstructions, approvedAt, expectedVersion).Scan(&version)
	if err == pgx.ErrNoRows {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return 0, errors.IOError(err, "failed to check application")
		}
		if !exists {
			return 0, errors.NotFound("application", id)
		}
		return 0, workflow.ErrConcurrentModification
	}
	if err != nil {
		return 0, errors.IOError(err, "failed to update application status")
	}
	return version, nil
}

// RecordTransition appends rec and stores app's workflow fields in one
// transaction. Client comments go through here as well so that they are
// ordered against concurrent status changes. On success app.Version and
// rec.Seq are updated.
func (r *ApplicationRepository) RecordTransition(ctx context.Context, app *workflow.Application, rec *workflow.HistoryRecord, expectedVersion int) error {
	var version int
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		version, err = updateStatus(ctx, tx, app.ID, app.Status, app.RevisionInstructions, app.ApprovedAt, expectedVersion)
		if err != nil {
			return err
		}
		return appendHistory(ctx, tx, rec)
	})
	if err != nil {
		return err
	}

	app.Version = version
	if n := len(app.History); n > 0 && app.History[n-1].ApplicationID == rec.ApplicationID && app.History[n-1].At.Equal(rec.At) {
		app.History[n-1].Seq = rec.Seq
	}
	return nil
}

// Delete removes an application that has not reached a decision. Decided
// applications are retained.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM applications WHERE id = $1 AND status NOT IN ('approved', 'rejected')`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return errors.IOError(err, "failed to delete application")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.IOError(err, "failed to check application")
	}
	if !exists {
		return errors.NotFound("application", id)
	}
	return workflow.ErrApplicationClosed
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanApplication(sc scanner) (*workflow.Application, error) {
	app := &workflow.Application{}
	var status string

	err := sc.Scan(
		&app.ID,
		&app.CatalogEntryID,
		&app.UserID,
		&app.Applicant.FullName,
		&app.Applicant.ContactNumber,
		&app.Applicant.Address,
		&app.Applicant.Purpose,
		&status,
		&app.RevisionInstructions,
		&app.ApprovedAt,
		&app.Version,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.IOError(err, "failed to scan application")
	}

	if app.Status, err = workflow.ParseStatus(status); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "stored application has an unknown status")
	}
	return app, nil
}
