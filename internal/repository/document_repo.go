package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smart_bottle/internal/models"
)

type DocumentSQLite struct {
	db *sql.DB
}

func NewDocumentSQLite(db *sql.DB) *DocumentSQLite {
	return &DocumentSQLite{db: db}
}

// Ensure implementation of DocumentRepo interface at compile time.
var _ DocumentRepo = (*DocumentSQLite)(nil)

const (
	selectDocumentSQL = `SELECT path, body, version, updated_at FROM documents WHERE path = ?`

	upsertDocumentSQL = `
		INSERT INTO documents (path, body, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			body=excluded.body,
			version=excluded.version,
			updated_at=excluded.updated_at
	`

	deleteDocumentSQL = `DELETE FROM documents WHERE path = ?`
)

// queryer lets load run inside or outside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Load fetches the document at path.
func (r *DocumentSQLite) Load(ctx context.Context, path string) (models.Document, error) {
	return loadDocument(ctx, r.db, path)
}

// Replace overwrites the document at path with body.
func (r *DocumentSQLite) Replace(ctx context.Context, path string, body []byte) (models.Document, error) {
	return r.inTx(ctx, path, func(models.Document) ([]byte, error) {
		return body, nil
	})
}

// Merge applies fields on top of the stored object. A stored value that is
// not an object is replaced, as a partial update of a scalar would be.
func (r *DocumentSQLite) Merge(ctx context.Context, path string, fields map[string]any) (models.Document, error) {
	return r.inTx(ctx, path, func(cur models.Document) ([]byte, error) {
		return mergeFields(cur.Body, fields)
	})
}

// inTx reads the current row, computes the next body and writes it with a
// bumped version, all in one transaction.
func (r *DocumentSQLite) inTx(ctx context.Context, path string, next func(models.Document) ([]byte, error)) (models.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Document{}, fmt.Errorf("begin document transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cur, err := loadDocument(ctx, tx, path)
	if err != nil {
		return models.Document{}, err
	}
	body, err := next(cur)
	if err != nil {
		return models.Document{}, err
	}

	out := models.Document{
		Path:      path,
		Version:   cur.Version + 1,
		UpdatedAt: time.Now().UTC(),
	}
	if isEmptyBody(body) {
		if err := deleteDocument(ctx, tx, path); err != nil {
			return models.Document{}, err
		}
		// absent documents always report version 0
		out.Version = 0
	} else {
		out.Body = body
		if _, err := tx.ExecContext(ctx, upsertDocumentSQL, path, string(body), out.Version, out.UpdatedAt); err != nil {
			return models.Document{}, fmt.Errorf("save document %q: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Document{}, fmt.Errorf("commit document %q: %w", path, err)
	}
	return out, nil
}

func loadDocument(ctx context.Context, q queryer, path string) (models.Document, error) {
	var (
		d    models.Document
		body string
	)
	err := q.QueryRowContext(ctx, selectDocumentSQL, path).Scan(&d.Path, &body, &d.Version, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Document{}, nil // nothing stored yet
		}
		return models.Document{}, fmt.Errorf("select document %q: %w", path, err)
	}
	d.Body = json.RawMessage(body)
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func deleteDocument(ctx context.Context, e execer, path string) error {
	if _, err := e.ExecContext(ctx, deleteDocumentSQL, path); err != nil {
		return fmt.Errorf("delete document %q: %w", path, err)
	}
	return nil
}

func isEmptyBody(b []byte) bool {
	return len(b) == 0 || string(b) == "null"
}

// mergeFields patches top-level keys of a JSON object.
func mergeFields(cur json.RawMessage, fields map[string]any) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(cur) > 0 {
		// non-object bodies are dropped in favour of the patch
		_ = json.Unmarshal(cur, &doc)
		if doc == nil {
			doc = map[string]json.RawMessage{}
		}
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		doc[k] = b
	}
	if len(doc) == 0 {
		return nil, nil
	}
	return json.Marshal(doc)
}
