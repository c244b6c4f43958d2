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

const annotationCols = `id, document_id, owner_id, origin_x, origin_y, width, created_at, updated_at, deleted_at`

func scanAnnotation(row interface{ Scan(...any) error }) (*model.Annotation, error) {
	var (
		a       model.Annotation
		id      string
		docID   string
		created sql.NullTime
		updated sql.NullTime
		deleted sql.NullTime
	)
	err := row.Scan(&id, &docID, &a.OwnerID, &a.Origin.X, &a.Origin.Y, &a.Width, &created, &updated, &deleted)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("store: annotation id %q: %w", id, err)
	}
	a.ID = parsed
	parsedDoc, err := uuid.Parse(docID)
	if err != nil {
		return nil, fmt.Errorf("store: annotation document id %q: %w", docID, err)
	}
	a.DocumentID = parsedDoc
	a.CreatedAt = timePtr(created)
	a.UpdatedAt = timePtr(updated)
	a.DeletedAt = timePtr(deleted)
	return &a, nil
}

// CreateAnnotation inserts a new annotation with its parts and optional
// selection box in one transaction.
func (s *Store) CreateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM annotations WHERE id = ?`, ann.ID.String()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: check annotation: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("store: annotation %s: %w", ann.ID, apperr.ErrAlreadyExists)
	}
	if err := upsertAnnotationTx(ctx, tx, ann); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit create annotation: %w", err)
	}
	return s.getAnnotation(ctx, ann.ID, true)
}

// GetAnnotation returns one annotation with parts and selection box hydrated.
func (s *Store) GetAnnotation(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.Annotation, error) {
	return s.getAnnotation(ctx, id, includeDeleted)
}

func (s *Store) getAnnotation(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.Annotation, error) {
	q := `SELECT ` + annotationCols + ` FROM annotations WHERE id = ?`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	ann, err := scanAnnotation(s.conn.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: annotation %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get annotation: %w", err)
	}
	if err := s.hydrateAnnotation(ctx, ann); err != nil {
		return nil, err
	}
	return ann, nil
}

func (s *Store) hydrateAnnotation(ctx context.Context, ann *model.Annotation) error {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, annotation_id, kind, ord, height, content, handwriting
		FROM annotation_parts WHERE annotation_id = ? ORDER BY ord
	`, ann.ID.String())
	if err != nil {
		return fmt.Errorf("store: load parts: %w", err)
	}
	defer rows.Close()

	ann.Parts = []*model.AnnotationPart{}
	for rows.Next() {
		var (
			p     model.AnnotationPart
			id    string
			annID string
		)
		if err := rows.Scan(&id, &annID, &p.Kind, &p.Order, &p.Height, &p.Content, &p.Handwriting); err != nil {
			return fmt.Errorf("store: scan part: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("store: part id %q: %w", id, err)
		}
		p.ID = parsed
		parsedAnn, err := uuid.Parse(annID)
		if err != nil {
			return fmt.Errorf("store: part annotation id %q: %w", annID, err)
		}
		p.AnnotationID = parsedAnn
		ann.Parts = append(ann.Parts, &p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	ann.EnsureParts(s.logger)

	box, err := s.selectionBoxFor(ctx, ann.ID)
	if err != nil {
		return err
	}
	ann.SelectionBox = box
	return nil
}

func (s *Store) selectionBoxFor(ctx context.Context, annID uuid.UUID) (*model.SelectionBox, error) {
	var (
		b       model.SelectionBox
		id      string
		created sql.NullTime
		updated sql.NullTime
		deleted sql.NullTime
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, start_x, start_y, end_x, end_y, created_at, updated_at, deleted_at
		FROM selection_boxes WHERE annotation_id = ?
	`, annID.String()).Scan(&id, &b.StartPoint.X, &b.StartPoint.Y, &b.EndPoint.X, &b.EndPoint.Y,
		&created, &updated, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load selection box: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("store: selection box id %q: %w", id, err)
	}
	b.ID = parsed
	b.AnnotationID = annID
	b.CreatedAt = timePtr(created)
	b.UpdatedAt = timePtr(updated)
	b.DeletedAt = timePtr(deleted)
	return &b, nil
}

// annotationsForDocument returns the live annotations of a document.
func (s *Store) annotationsForDocument(ctx context.Context, docID uuid.UUID) ([]*model.Annotation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+annotationCols+` FROM annotations
		WHERE document_id = ? AND deleted_at IS NULL
		ORDER BY created_at
	`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("store: annotations for document: %w", err)
	}
	defer rows.Close()

	out := []*model.Annotation{}
	for rows.Next() {
		ann, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan annotation: %w", err)
		}
		out = append(out, ann)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, ann := range out {
		if err := s.hydrateAnnotation(ctx, ann); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateAnnotation rewrites an existing annotation, replacing its parts and
// upserting its selection box in the same transaction.
func (s *Store) UpdateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM annotations WHERE id = ?`, ann.ID.String()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: check annotation: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("store: annotation %s: %w", ann.ID, apperr.ErrNotFound)
	}
	if err := upsertAnnotationTx(ctx, tx, ann); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit update annotation: %w", err)
	}
	return s.getAnnotation(ctx, ann.ID, true)
}

// DeleteAnnotation soft-deletes the annotation and its selection box in one
// transaction. Deleting an unknown id is a no-op.
func (s *Store) DeleteAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deletedAt := nullTime(ann.DeletedAt)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE annotations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		deletedAt, ann.ID.String())
	if err != nil {
		return nil, fmt.Errorf("store: delete annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ann, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE selection_boxes SET deleted_at = ? WHERE annotation_id = ? AND deleted_at IS NULL`,
		deletedAt, ann.ID.String()); err != nil {
		return nil, fmt.Errorf("store: cascade delete box: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit delete annotation: %w", err)
	}
	return s.getAnnotation(ctx, ann.ID, true)
}

// CreateOrUpdateAnnotation upserts the annotation keyed by id, soft-delete
// aware and idempotent. Used by envelope application and reconciliation, never
// by the direct user-initiated path.
func (s *Store) CreateOrUpdateAnnotation(ctx context.Context, ann *model.Annotation) (*model.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertAnnotationTx(ctx, tx, ann); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit upsert annotation: %w", err)
	}
	return s.getAnnotation(ctx, ann.ID, true)
}

// CreateOrUpdateAnnotations bulk-upserts in one transaction.
func (s *Store) CreateOrUpdateAnnotations(ctx context.Context, anns []*model.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ann := range anns {
		if err := upsertAnnotationTx(ctx, tx, ann); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// upsertAnnotationTx writes the annotation row, replaces its parts wholesale
// (the annotation owns them, so the incoming sequence is authoritative), and
// upserts the selection box when present.
func upsertAnnotationTx(ctx context.Context, tx *sql.Tx, ann *model.Annotation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO annotations (id, document_id, owner_id, origin_x, origin_y, width, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			owner_id    = excluded.owner_id,
			origin_x    = excluded.origin_x,
			origin_y    = excluded.origin_y,
			width       = excluded.width,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at,
			deleted_at  = excluded.deleted_at
	`, ann.ID.String(), ann.DocumentID.String(), ann.OwnerID, ann.Origin.X, ann.Origin.Y, ann.Width,
		nullTime(ann.CreatedAt), nullTime(ann.UpdatedAt), nullTime(ann.DeletedAt))
	if err != nil {
		return fmt.Errorf("store: upsert annotation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM annotation_parts WHERE annotation_id = ?`, ann.ID.String()); err != nil {
		return fmt.Errorf("store: clear parts: %w", err)
	}
	for _, p := range ann.Parts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO annotation_parts (id, annotation_id, kind, ord, height, content, handwriting)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID.String(), ann.ID.String(), string(p.Kind), p.Order, p.Height, p.Content, p.Handwriting); err != nil {
			return fmt.Errorf("store: insert part: %w", err)
		}
	}

	if box := ann.SelectionBox; box != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO selection_boxes (id, annotation_id, start_x, start_y, end_x, end_y, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				annotation_id = excluded.annotation_id,
				start_x       = excluded.start_x,
				start_y       = excluded.start_y,
				end_x         = excluded.end_x,
				end_y         = excluded.end_y,
				created_at    = excluded.created_at,
				updated_at    = excluded.updated_at,
				deleted_at    = excluded.deleted_at
		`, box.ID.String(), ann.ID.String(), box.StartPoint.X, box.StartPoint.Y, box.EndPoint.X, box.EndPoint.Y,
			nullTime(box.CreatedAt), nullTime(box.UpdatedAt), nullTime(box.DeletedAt)); err != nil {
			return fmt.Errorf("store: upsert selection box: %w", err)
		}
	}
	return nil
}

// AnnotationsUpdatedAfter returns every annotation, soft-deleted included,
// whose lifecycle advanced after t.
func (s *Store) AnnotationsUpdatedAfter(ctx context.Context, t time.Time) ([]*model.Annotation, error) {
	return s.listAnnotations(ctx, `
		SELECT `+annotationCols+` FROM annotations
		WHERE created_at > ? OR updated_at > ? OR deleted_at > ?
		ORDER BY created_at`, t.UTC(), t.UTC(), t.UTC())
}

// AnnotationsCreatedAfter returns every annotation created strictly after t.
func (s *Store) AnnotationsCreatedAfter(ctx context.Context, t time.Time) ([]*model.Annotation, error) {
	return s.listAnnotations(ctx, `
		SELECT `+annotationCols+` FROM annotations
		WHERE created_at > ?
		ORDER BY created_at`, t.UTC())
}

func (s *Store) listAnnotations(ctx context.Context, query string, args ...any) ([]*model.Annotation, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list annotations: %w", err)
	}
	defer rows.Close()

	out := []*model.Annotation{}
	for rows.Next() {
		ann, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan annotation: %w", err)
		}
		out = append(out, ann)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, ann := range out {
		if err := s.hydrateAnnotation(ctx, ann); err != nil {
			return nil, err
		}
	}
	return out, nil
}
