package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-permits-portal/internal/catalog"
	"github.com/pesio-ai/be-permits-portal/internal/platform/database"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

// CatalogRepository reads and publishes catalog entries.
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const catalogColumns = `id, title, category, description, requirements, application_fee, processing_fee`

// Get retrieves a catalog entry by ID.
func (r *CatalogRepository) Get(ctx context.Context, id string) (*catalog.Entry, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_entries WHERE id = $1`

	e, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("catalog entry", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns every entry ordered by category and title.
func (r *CatalogRepository) List(ctx context.Context) ([]*catalog.Entry, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_entries ORDER BY category, title`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.IOError(err, "failed to list catalog")
	}
	defer rows.Close()

	var entries []*catalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IOError(err, "failed to read catalog")
	}
	return entries, nil
}

// Upsert inserts or replaces entries in one transaction.
func (r *CatalogRepository) Upsert(ctx context.Context, entries []catalog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO catalog_entries (id, title, category, description, requirements, application_fee, processing_fee)
		VALUES ($1, $2, $3::catalog_category, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    title = EXCLUDED.title,
		    category = EXCLUDED.category,
		    description = EXCLUDED.description,
		    requirements = EXCLUDED.requirements,
		    application_fee = EXCLUDED.application_fee,
		    processing_fee = EXCLUDED.processing_fee,
		    updated_at = now()
	`

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			reqs := e.Requirements
			if reqs == nil {
				reqs = []string{}
			}
			batch.Queue(query, e.ID, e.Title, string(e.Category), e.Description, reqs, e.ApplicationFee, e.ProcessingFee)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.IOError(err, "failed to upsert catalog")
		}
		return nil
	})
}

func scanEntry(sc scanner) (*catalog.Entry, error) {
	e := &catalog.Entry{}
	var category string
	err := sc.Scan(
		&e.ID,
		&e.Title,
		&category,
		&e.Description,
		&e.Requirements,
		&e.ApplicationFee,
		&e.ProcessingFee,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.IOError(err, "failed to scan catalog entry")
	}
	e.Category = catalog.Category(category)
	return e, nil
}
