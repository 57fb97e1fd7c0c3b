package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

const documentColumns = `id, user_id, filename, text_preview, full_text, created_at`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.TextPreview, &d.FullText, &d.CreatedAt)
	return d, err
}

// CreateDocument stores a document and its extracted pages in one transaction.
func (s *Store) CreateDocument(ctx context.Context, d model.Document, pages []model.ContextPage) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO documents (user_id, filename, text_preview, full_text, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		d.UserID, d.Filename, d.TextPreview, d.FullText, now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_pages (document_id, source_name, page_number, text) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, p := range pages {
		if _, err := stmt.ExecContext(ctx, id, p.SourceName, p.PageNumber, p.Text); err != nil {
			return 0, fmt.Errorf("insert page %s:%d: %w", p.SourceName, p.PageNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocument returns a document owned by userID, or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, userID, id int64) (model.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return d, err
}

// ListDocumentsByUser returns the user's documents, newest first.
func (s *Store) ListDocumentsByUser(ctx context.Context, userID int64) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocumentPages returns the pages of a document in upload order.
func (s *Store) GetDocumentPages(ctx context.Context, documentID int64) ([]model.ContextPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_name, page_number, text FROM document_pages WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pages []model.ContextPage
	for rows.Next() {
		var p model.ContextPage
		if err := rows.Scan(&p.SourceName, &p.PageNumber, &p.Text); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// DeleteDocument removes a document owned by userID with its pages and questions.
func (s *Store) DeleteDocument(ctx context.Context, userID, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owned int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 AND user_id = $2`, id, userID).Scan(&owned)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM questions WHERE document_id = $1`,
		`DELETE FROM document_pages WHERE document_id = $1`,
		`DELETE FROM documents WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
