package repository

import (
	"context"
	"database/sql"

	"smart_bottle/internal/models"
)

type DocumentRepo interface {
	// Load returns a zero Document (Version 0) when nothing is stored at path.
	Load(ctx context.Context, path string) (models.Document, error)
	// Replace overwrites the body at path; a nil body deletes it.
	Replace(ctx context.Context, path string, body []byte) (models.Document, error)
	// Merge patches top-level fields of the object at path. Nil values delete fields.
	Merge(ctx context.Context, path string, fields map[string]any) (models.Document, error)
}

type Repository struct {
	Documents DocumentRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Documents: NewDocumentSQLite(db),
	}
}
