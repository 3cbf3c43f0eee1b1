package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-permits-portal/internal/platform/database"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/submission"
)

// DocumentRepository stores metadata for uploaded application documents.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, application_id, tracking_id, file_name, content_type, size_bytes, storage_ref, created_at`

// InsertDocuments writes all rows or none and sets each document's ID.
func (r *DocumentRepository) InsertDocuments(ctx context.Context, docs []*submission.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `
		INSERT INTO application_documents
		    (application_id, tracking_id, file_name, content_type, size_bytes, storage_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range docs {
			batch.Queue(query,
				d.ApplicationID,
				d.TrackingID,
				d.FileName,
				d.ContentType,
				d.Size,
				d.StorageRef,
				d.CreatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for _, d := range docs {
			if err := br.QueryRow().Scan(&d.ID); err != nil {
				br.Close()
				return errors.IOError(err, "failed to insert document metadata")
			}
		}
		if err := br.Close(); err != nil {
			return errors.IOError(err, "failed to insert document metadata")
		}
		return nil
	})
}

// ListByApplication returns the persisted documents of an application in
// upload order.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID string) ([]*submission.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM application_documents WHERE application_id = $1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.IOError(err, "failed to list documents")
	}
	defer rows.Close()

	var docs []*submission.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOError(err, "failed to read documents")
	}
	return docs, nil
}

// Get retrieves one document by ID.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*submission.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM application_documents WHERE id = $1`

	d, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanDocument(sc scanner) (*submission.Document, error) {
	d := &submission.Document{Status: submission.DocumentSuccess}
	err := sc.Scan(
		&d.ID,
		&d.ApplicationID,
		&d.TrackingID,
		&d.FileName,
		&d.ContentType,
		&d.Size,
		&d.StorageRef,
		&d.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.IOError(err, "failed to scan document")
	}
	return d, nil
}
