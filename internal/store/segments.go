package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onepurp/Mutarjim-Pro/internal/segment"
)

const segmentColumns = `id, doc_path, batch_index, original_html, translated_html, status, retry_count, error`

func scanSegment(row interface{ Scan(...any) error }) (segment.Segment, error) {
	var seg segment.Segment
	var status string
	err := row.Scan(&seg.ID, &seg.DocPath, &seg.BatchIndex, &seg.OriginalHTML,
		&seg.TranslatedHTML, &status, &seg.RetryCount, &seg.Error)
	seg.Status = segment.Status(status)
	return seg, err
}

// ClaimNext atomically selects one claimable segment, preferring PENDING
// over FAILED, marks it TRANSLATING and returns it. Returns nil when no
// segment is available.
func (s *Store) ClaimNext(ctx context.Context) (*segment.Segment, error) {
	var claimed *segment.Segment
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, status := range []segment.Status{segment.StatusPending, segment.StatusFailed} {
			q := fmt.Sprintf(`SELECT %s FROM segments WHERE status = ? ORDER BY doc_path, batch_index LIMIT 1`, segmentColumns)
			seg, err := scanSegment(tx.QueryRowContext(ctx, q, string(status)))
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to select claimable segment: %w", err)
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE segments SET status = ? WHERE id = ?`,
				string(segment.StatusTranslating), seg.ID); err != nil {
				return fmt.Errorf("failed to claim segment %s: %w", seg.ID, err)
			}
			seg.Status = segment.StatusTranslating
			claimed = &seg
			return nil
		}
		return nil
	})
	return claimed, err
}

// CompleteSegment marks a segment TRANSLATED, stores its translated markup,
// clears any error and refreshes the project's translated count from the
// authoritative count of TRANSLATED rows.
func (s *Store) CompleteSegment(ctx context.Context, id, translated string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE segments SET status = ?, translated_html = ?, error = '' WHERE id = ?`,
			string(segment.StatusTranslated), translated, id)
		if err != nil {
			return fmt.Errorf("failed to complete segment %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("segment %s not found", id)
		}
		return refreshTranslatedCount(ctx, tx)
	})
}

func refreshTranslatedCount(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE project
		SET translated_segments = (SELECT COUNT(*) FROM segments WHERE status = ?),
		    updated_at = CURRENT_TIMESTAMP`,
		string(segment.StatusTranslated))
	if err != nil {
		return fmt.Errorf("failed to refresh translated count: %w", err)
	}
	return nil
}

// FailSegment records a failed translation attempt. A quota failure reverts
// the segment to PENDING without touching its retry budget; any other
// failure increments the retry count and moves the segment to SKIPPED once
// the count reaches maxRetries, FAILED otherwise. The resulting status is
// returned.
func (s *Store) FailSegment(ctx context.Context, id, errMsg string, isQuota bool, maxRetries int) (segment.Status, error) {
	var result segment.Status
	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		if isQuota {
			result = segment.StatusPending
			if _, err := tx.ExecContext(ctx,
				`UPDATE segments SET status = ?, error = ? WHERE id = ?`,
				string(segment.StatusPending), errMsg, id); err != nil {
				return fmt.Errorf("failed to release segment %s: %w", id, err)
			}
			return nil
		}

		var retries int
		err := tx.QueryRowContext(ctx, `SELECT retry_count FROM segments WHERE id = ?`, id).Scan(&retries)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("segment %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to read retry count for %s: %w", id, err)
		}

		retries++
		result = segment.StatusFailed
		if retries >= maxRetries {
			result = segment.StatusSkipped
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE segments SET status = ?, retry_count = ?, error = ? WHERE id = ?`,
			string(result), retries, errMsg, id); err != nil {
			return fmt.Errorf("failed to fail segment %s: %w", id, err)
		}
		return nil
	})
	return result, err
}

// RetrySkipped resets every SKIPPED segment to PENDING with a fresh retry
// budget. Returns the number of segments reset.
func (s *Store) RetrySkipped(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE segments SET status = ?, retry_count = 0, error = '' WHERE status = ?`,
		string(segment.StatusPending), string(segment.StatusSkipped))
	if err != nil {
		return 0, fmt.Errorf("failed to retry skipped segments: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats summarises the segment set by status.
type Stats struct {
	Total      int `json:"total"`
	Translated int `json:"translated"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Pending    int `json:"pending"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM segments GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return st, fmt.Errorf("failed to scan stats row: %w", err)
		}
		st.Total += count
		switch segment.Status(status) {
		case segment.StatusTranslated:
			st.Translated = count
		case segment.StatusFailed:
			st.Failed = count
		case segment.StatusSkipped:
			st.Skipped = count
		case segment.StatusPending:
			st.Pending = count
		}
	}
	return st, rows.Err()
}

// GetSegment returns one segment by id.
func (s *Store) GetSegment(ctx context.Context, id string) (*segment.Segment, error) {
	q := fmt.Sprintf(`SELECT %s FROM segments WHERE id = ?`, segmentColumns)
	seg, err := scanSegment(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("segment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read segment %s: %w", id, err)
	}
	return &seg, nil
}

// ListSegments returns every segment ordered by document and batch index.
func (s *Store) ListSegments(ctx context.Context) ([]segment.Segment, error) {
	q := fmt.Sprintf(`SELECT %s FROM segments ORDER BY doc_path, batch_index`, segmentColumns)
	return s.querySegments(ctx, q)
}

// SegmentsForDoc returns a document's segments ordered by batch index.
func (s *Store) SegmentsForDoc(ctx context.Context, docPath string) ([]segment.Segment, error) {
	q := fmt.Sprintf(`SELECT %s FROM segments WHERE doc_path = ? ORDER BY batch_index`, segmentColumns)
	return s.querySegments(ctx, q, docPath)
}

func (s *Store) querySegments(ctx context.Context, q string, args ...any) ([]segment.Segment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []segment.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}
