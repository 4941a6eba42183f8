package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/copydesk/classify"
	"github.com/hazyhaar/copydesk/idgen"
)

var newDuplicateID = idgen.Prefixed("dup_", idgen.Default)

// InsertDuplicateLog appends one dedup decision. Entries are never
// updated or deleted.
func (s *Store) InsertDuplicateLog(ctx context.Context, entry *DuplicateLog) error {
	if entry.ID == "" {
		entry.ID = newDuplicateID()
	}
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO duplicate_logs
			(duplicate_id, kind, effective_submission_id, superseded_submission_id,
			 subject, source_unit, media, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.EffectiveID, entry.SupersededID,
		entry.Subject, entry.SourceUnit, string(entry.Media), now)
	if err != nil {
		return fmt.Errorf("store: insert duplicate log: %w", err)
	}
	entry.CreatedAt = fromMilli(now)
	return nil
}

// ListDuplicateLog returns decisions newest first.
func (s *Store) ListDuplicateLog(ctx context.Context, limit int) ([]DuplicateLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT duplicate_id, kind, effective_submission_id, superseded_submission_id,
			subject, source_unit, media, created_at
		FROM duplicate_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list duplicate log: %w", err)
	}
	defer rows.Close()

	var out []DuplicateLog
	for rows.Next() {
		var e DuplicateLog
		var media string
		var created int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.EffectiveID, &e.SupersededID,
			&e.Subject, &e.SourceUnit, &media, &created); err != nil {
			return nil, fmt.Errorf("store: list duplicate log: %w", err)
		}
		e.Media = classify.MediaCode(media)
		e.CreatedAt = fromMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
