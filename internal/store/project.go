package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onepurp/Mutarjim-Pro/internal/segment"
)

// ErrNoProject is returned when no project has been imported.
var ErrNoProject = errors.New("store: no project")

// ImportProject atomically replaces the entire database contents with the
// given project and its segments.
func (s *Store) ImportProject(ctx context.Context, p *Project, segments []segment.Segment) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM segments"); err != nil {
			return fmt.Errorf("failed to clear segments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM project"); err != nil {
			return fmt.Errorf("failed to clear project: %w", err)
		}
		if err := insertProject(ctx, tx, p); err != nil {
			return err
		}
		return insertSegments(ctx, tx, segments)
	})
}

func insertProject(ctx context.Context, tx *sql.Tx, p *Project) error {
	const q = `
		INSERT INTO project (id, title, author, translated_title, cover_bytes,
		                     source_bytes, total_segments, translated_segments,
		                     schema_version, batch_char_limit, text_alignment, force_alignment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		p.ID, p.Title, p.Author, p.TranslatedTitle, p.CoverBytes,
		p.SourceBytes, p.TotalSegments, p.TranslatedSegments,
		p.SchemaVersion, p.BatchCharLimit, p.TextAlignment, p.ForceAlignment)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, segments []segment.Segment) error {
	const q = `
		INSERT INTO segments (id, doc_path, batch_index, original_html,
		                      translated_html, status, retry_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segments {
		if _, err := stmt.ExecContext(ctx,
			seg.ID, seg.DocPath, seg.BatchIndex, seg.OriginalHTML,
			seg.TranslatedHTML, string(seg.Status), seg.RetryCount, seg.Error); err != nil {
			return fmt.Errorf("failed to insert segment %s: %w", seg.ID, err)
		}
	}
	return nil
}

// GetProject returns the single project record.
func (s *Store) GetProject(ctx context.Context) (*Project, error) {
	const q = `
		SELECT id, title, author, translated_title, cover_bytes, source_bytes,
		       total_segments, translated_segments, schema_version,
		       batch_char_limit, text_alignment, force_alignment,
		       created_at, updated_at
		FROM project LIMIT 1`

	p := &Project{}
	err := s.db.QueryRowContext(ctx, q).Scan(
		&p.ID, &p.Title, &p.Author, &p.TranslatedTitle, &p.CoverBytes,
		&p.SourceBytes, &p.TotalSegments, &p.TranslatedSegments,
		&p.SchemaVersion, &p.BatchCharLimit, &p.TextAlignment, &p.ForceAlignment,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProject
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	return p, nil
}

// UpdateProjectSettings mutates the user-editable project fields: the
// translated title, a replacement cover, and export settings.
func (s *Store) UpdateProjectSettings(ctx context.Context, translatedTitle string, cover []byte, alignment string, force bool) error {
	const q = `
		UPDATE project
		SET translated_title = ?,
		    cover_bytes = COALESCE(?, cover_bytes),
		    text_alignment = ?,
		    force_alignment = ?,
		    updated_at = CURRENT_TIMESTAMP`
	res, err := s.db.ExecContext(ctx, q, translatedTitle, cover, alignment, force)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoProject
	}
	return nil
}
