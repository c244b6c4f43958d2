package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillmark/quill/internal/apperr"
	"github.com/quillmark/quill/internal/model"
)

const documentCols = `id, name, owner_id, base_file_url, local_file_url, created_at, updated_at, deleted_at`

func scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	var (
		d       model.Document
		id      string
		created sql.NullTime
		updated sql.NullTime
		deleted sql.NullTime
	)
	err := row.Scan(&id, &d.Name, &d.OwnerID, &d.BaseFileURL, &d.LocalFileURL, &created, &updated, &deleted)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("store: document id %q: %w", id, err)
	}
	d.ID = parsed
	d.CreatedAt = timePtr(created)
	d.UpdatedAt = timePtr(updated)
	d.DeletedAt = timePtr(deleted)
	d.Annotations = []*model.Annotation{}
	return &d, nil
}

// CreateDocument inserts a new document. The id must not exist yet, even as a
// soft-deleted row.
func (s *Store) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO documents (id, name, owner_id, base_file_url, local_file_url, created_at, updated_at, deleted_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM documents WHERE id = ?)
	`, doc.ID.String(), doc.Name, doc.OwnerID, doc.BaseFileURL, doc.LocalFileURL,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt), nullTime(doc.DeletedAt), doc.ID.String())
	if err != nil {
		return nil, fmt.Errorf("store: create document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: create document %s: %w", doc.ID, apperr.ErrAlreadyExists)
	}
	return s.getDocument(ctx, doc.ID, true)
}

// GetDocument returns one document with its live annotations hydrated.
// Soft-deleted documents are reported as absent unless includeDeleted is set.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.Document, error) {
	return s.getDocument(ctx, id, includeDeleted)
}

func (s *Store) getDocument(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.Document, error) {
	q := `SELECT ` + documentCols + ` FROM documents WHERE id = ?`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	doc, err := scanDocument(s.conn.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	anns, err := s.annotationsForDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Annotations = anns
	return doc, nil
}

// ListOwnDocuments returns the live documents owned by the user, ordered by
// creation time.
func (s *Store) ListOwnDocuments(ctx context.Context, ownerID string) ([]*model.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentCols+` FROM documents
		WHERE owner_id = ? AND deleted_at IS NULL
		ORDER BY created_at`, ownerID)
}

// ListSharedDocuments returns the live documents shared with the user.
func (s *Store) ListSharedDocuments(ctx context.Context, userID string) ([]*model.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentCols+` FROM documents
		WHERE deleted_at IS NULL AND id IN (SELECT document_id FROM document_shares WHERE user_id = ?)
		ORDER BY created_at`, userID)
}

// AddDocumentShare records that a document is shared with a user.
func (s *Store) AddDocumentShare(ctx context.Context, documentID uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO document_shares (document_id, user_id) VALUES (?, ?)`,
		documentID.String(), userID)
	if err != nil {
		return fmt.Errorf("store: add share: %w", err)
	}
	return nil
}

func (s *Store) listDocuments(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	out := []*model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, doc := range out {
		anns, err := s.annotationsForDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		doc.Annotations = anns
	}
	return out, nil
}

// UpdateDocument rewrites the mutable fields of an existing document.
func (s *Store) UpdateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.conn.ExecContext(ctx, `
		UPDATE documents
		SET name = ?, base_file_url = ?, local_file_url = ?, updated_at = ?
		WHERE id = ?
	`, doc.Name, doc.BaseFileURL, doc.LocalFileURL, nullTime(doc.UpdatedAt), doc.ID.String())
	if err != nil {
		return nil, fmt.Errorf("store: update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: document %s: %w", doc.ID, apperr.ErrNotFound)
	}
	return s.getDocument(ctx, doc.ID, true)
}

// DeleteDocument soft-deletes the document and cascades the mark onto its
// annotations and their selection boxes in one transaction, so a crash
// mid-cascade never leaves live orphans. Deleting an unknown id is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deletedAt := nullTime(doc.DeletedAt)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		deletedAt, doc.ID.String())
	if err != nil {
		return nil, fmt.Errorf("store: delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already gone (or never here): deletes are idempotent no-ops.
		_ = tx.Rollback()
		return doc, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE selection_boxes SET deleted_at = ?
		WHERE deleted_at IS NULL
		  AND annotation_id IN (SELECT id FROM annotations WHERE document_id = ?)
	`, deletedAt, doc.ID.String()); err != nil {
		return nil, fmt.Errorf("store: cascade delete boxes: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE annotations SET deleted_at = ? WHERE document_id = ? AND deleted_at IS NULL`,
		deletedAt, doc.ID.String()); err != nil {
		return nil, fmt.Errorf("store: cascade delete annotations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit delete: %w", err)
	}
	return s.getDocument(ctx, doc.ID, true)
}

// CreateOrUpdateDocument upserts the document keyed by id, soft-delete aware:
// an existing row (deleted or not) is updated in place, otherwise a new row
// is inserted. Owned annotations in the payload are upserted the same way.
// Applying the same payload twice leaves the store identical.
func (s *Store) CreateOrUpdateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertDocumentTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	for _, ann := range doc.Annotations {
		if err := upsertAnnotationTx(ctx, tx, ann); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit upsert: %w", err)
	}
	return s.getDocument(ctx, doc.ID, true)
}

// CreateOrUpdateDocuments bulk-upserts in one transaction. Used by the
// reconciliation path and realtime envelope application only.
func (s *Store) CreateOrUpdateDocuments(ctx context.Context, docs []*model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, doc := range docs {
		if err := upsertDocumentTx(ctx, tx, doc); err != nil {
			return err
		}
		for _, ann := range doc.Annotations {
			if err := upsertAnnotationTx(ctx, tx, ann); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func upsertDocumentTx(ctx context.Context, tx *sql.Tx, doc *model.Document) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, owner_id, base_file_url, local_file_url, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name           = excluded.name,
			owner_id       = excluded.owner_id,
			base_file_url  = excluded.base_file_url,
			local_file_url = excluded.local_file_url,
			created_at     = excluded.created_at,
			updated_at     = excluded.updated_at,
			deleted_at     = excluded.deleted_at
	`, doc.ID.String(), doc.Name, doc.OwnerID, doc.BaseFileURL, doc.LocalFileURL,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt), nullTime(doc.DeletedAt))
	if err != nil {
		return fmt.Errorf("store: upsert document: %w", err)
	}
	return nil
}

// DocumentsUpdatedAfter returns every document, soft-deleted included, whose
// lifecycle advanced after t. This is the resync gathering query: a
// brand-new unsent document counts through created_at, a deletion through
// deleted_at.
func (s *Store) DocumentsUpdatedAfter(ctx context.Context, t time.Time) ([]*model.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentCols+` FROM documents
		WHERE created_at > ? OR updated_at > ? OR deleted_at > ?
		ORDER BY created_at`, t.UTC(), t.UTC(), t.UTC())
}

// DocumentsCreatedAfter returns every document, soft-deleted included,
// created strictly after t.
func (s *Store) DocumentsCreatedAfter(ctx context.Context, t time.Time) ([]*model.Document, error) {
	return s.listDocuments(ctx, `
		SELECT `+documentCols+` FROM documents
		WHERE created_at > ?
		ORDER BY created_at`, t.UTC())
}
