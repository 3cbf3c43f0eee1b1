package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-permits-portal/internal/platform/database"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

// StatusHistoryRepository appends and reads application history records. The
// table rejects updates, so Append is the only mutation.
type StatusHistoryRepository struct {
	db *database.DB
}

// NewStatusHistoryRepository creates a new StatusHistoryRepository.
func NewStatusHistoryRepository(db *database.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

// Append inserts one record and sets its sequence id.
func (r *StatusHistoryRepository) Append(ctx context.Context, rec *workflow.HistoryRecord) error {
	return appendHistory(ctx, r.db, rec)
}

func appendHistory(ctx context.Context, q querier, rec *workflow.HistoryRecord) error {
	query := `
		INSERT INTO application_status_history
		    (application_id, status, comment, revision_instructions,
		     actor, actor_id, created_at)
		VALUES ($1, $2::application_status, $3, $4,
		        $5::history_actor, $6, $7)
		RETURNING seq
	`

	err := q.QueryRow(ctx, query,
		rec.ApplicationID,
		string(rec.Status),
		rec.Comment,
		rec.RevisionInstructions,
		string(rec.Actor),
		rec.ActorID,
		rec.At,
	).Scan(&rec.Seq)
	if err != nil {
		return errors.IOError(err, "failed to append status history")
	}
	return nil
}

// ListByApplication returns the history of one application oldest-first.
func (r *StatusHistoryRepository) ListByApplication(ctx context.Context, applicationID string) ([]workflow.HistoryRecord, error) {
	query := `
		SELECT seq, application_id, status, comment, revision_instructions,
		       actor, actor_id, created_at
		FROM application_status_history
		WHERE application_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.IOError(err, "failed to get status history")
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

// ListByApplications returns the histories of several applications keyed by
// application id.
func (r *StatusHistoryRepository) ListByApplications(ctx context.Context, applicationIDs []string) (map[string][]workflow.HistoryRecord, error) {
	out := make(map[string][]workflow.HistoryRecord, len(applicationIDs))
	if len(applicationIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT seq, application_id, status, comment, revision_instructions,
		       actor, actor_id, created_at
		FROM application_status_history
		WHERE application_id = ANY($1::uuid[])
		ORDER BY application_id, seq ASC
	`

	rows, err := r.db.Query(ctx, query, applicationIDs)
	if err != nil {
		return nil, errors.IOError(err, "failed to get status histories")
	}
	defer rows.Close()

	records, err := scanHistoryRows(rows)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		out[rec.ApplicationID] = append(out[rec.ApplicationID], rec)
	}
	return out, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanHistoryRows(rows pgx.Rows) ([]workflow.HistoryRecord, error) {
	var records []workflow.HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOError(err, "failed to read status history")
	}
	return records, nil
}

func scanHistory(sc scanner) (workflow.HistoryRecord, error) {
	var (
		rec           workflow.HistoryRecord
		status, actor string
	)
	err := sc.Scan(
		&rec.Seq,
		&rec.ApplicationID,
		&status,
		&rec.Comment,
		&rec.RevisionInstructions,
		&actor,
		&rec.ActorID,
		&rec.At,
	)
	if err != nil {
		return rec, errors.IOError(err, "failed to scan status history")
	}

	if rec.Status, err = workflow.ParseStatus(status); err != nil {
		return rec, errors.Wrap(err, errors.ErrCodeInternal, "stored history has an unknown status")
	}
	if rec.Actor, err = workflow.ParseActor(actor); err != nil {
		return rec, errors.Wrap(err, errors.ErrCodeInternal, "stored history has an unknown actor")
	}
	return rec, nil
}
