package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/copydesk/dbopen"
	"github.com/hazyhaar/copydesk/idgen"
	"github.com/hazyhaar/copydesk/placeholder"
)

// VersionRetention caps stored snapshots per draft. The newest snapshots
// within the cap and the draft row itself are never pruned.
const VersionRetention = 30

var newVersionID = idgen.Prefixed("ver_", idgen.Default)

const draftCols = `draft_id, submission_id, text, media_map, version, status,
	site_id, post_id, created_at, updated_at`

// CreateDraft inserts the draft at version 1 together with its first
// snapshot. Returns ErrExists when the submission already has a draft;
// idempotent callers fetch the existing draft instead of failing.
func (s *Store) CreateDraft(ctx context.Context, d *Draft) error {
	mm, err := marshalMap(d.Media)
	if err != nil {
		return err
	}
	now := nowMilli()
	d.Version = 1
	d.Status = DraftEditing

	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO drafts (`+draftCols+`)
			VALUES (?, ?, ?, ?, 1, ?, '', 0, ?, ?)`,
			d.ID, d.SubmissionID, d.Text, mm, string(DraftEditing), now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: draft for submission %s", ErrExists, d.SubmissionID)
			}
			return fmt.Errorf("insert draft: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO draft_versions (version_id, draft_id, version, text, media_map, author_id, created_at)
			VALUES (?, ?, 1, ?, ?, '', ?)`,
			newVersionID(), d.ID, d.Text, mm, now)
		if err != nil {
			return fmt.Errorf("insert version 1: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return err
		}
		return fmt.Errorf("store: create draft: %w", err)
	}
	d.CreatedAt = fromMilli(now)
	d.UpdatedAt = fromMilli(now)
	return nil
}

// AppendVersion applies an edit inside one transaction: it re-reads the
// current text, detects a no-op by byte comparison, and otherwise bumps
// the version, rewrites the draft and appends a snapshot. Concurrent
// editors are last-write-wins at this transaction boundary.
func (s *Store) AppendVersion(ctx context.Context, draftID, text string, media placeholder.Map, authorID string) (version int, changed bool, err error) {
	mm, err := marshalMap(media)
	if err != nil {
		return 0, false, err
	}

	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var current string
		var cur int
		row := tx.QueryRowContext(ctx,
			`SELECT text, version FROM drafts WHERE draft_id = ?`, draftID)
		if err := row.Scan(&current, &cur); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: draft %s", ErrNotFound, draftID)
			}
			return fmt.Errorf("read draft: %w", err)
		}

		if current == text {
			version, changed = cur, false
			return nil
		}

		now := nowMilli()
		next := cur + 1
		if _, err := tx.ExecContext(ctx, `
			UPDATE drafts SET text = ?, media_map = ?, version = ?, updated_at = ?
			WHERE draft_id = ?`,
			text, mm, next, now, draftID); err != nil {
			return fmt.Errorf("update draft: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO draft_versions (version_id, draft_id, version, text, media_map, author_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newVersionID(), draftID, next, text, mm, authorID, now); err != nil {
			return fmt.Errorf("insert version %d: %w", next, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM draft_versions
			WHERE draft_id = ? AND version <= ?`,
			draftID, next-VersionRetention); err != nil {
			return fmt.Errorf("prune versions: %w", err)
		}
		version, changed = next, true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, err
		}
		return 0, false, fmt.Errorf("store: append version: %w", err)
	}
	return version, changed, nil
}

func (s *Store) GetDraft(ctx context.Context, draftID string) (*Draft, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+draftCols+` FROM drafts WHERE draft_id = ?`, draftID)
	return scanDraft(row)
}

func (s *Store) DraftBySubmission(ctx context.Context, submissionID string) (*Draft, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+draftCols+` FROM drafts WHERE submission_id = ?`, submissionID)
	return scanDraft(row)
}

// GetVersion fetches one immutable snapshot by number.
func (s *Store) GetVersion(ctx context.Context, draftID string, version int) (*DraftVersion, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT version_id, draft_id, version, text, media_map, author_id, created_at
		FROM draft_versions WHERE draft_id = ? AND version = ?`, draftID, version)

	var v DraftVersion
	var mm string
	var created int64
	err := row.Scan(&v.ID, &v.DraftID, &v.Version, &v.Text, &mm, &v.AuthorID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: draft %s version %d", ErrNotFound, draftID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get version: %w", err)
	}
	if v.Media, err = unmarshalMap(mm); err != nil {
		return nil, err
	}
	v.CreatedAt = fromMilli(created)
	return &v, nil
}

// ListVersions returns snapshot metadata newest first, without text bodies.
func (s *Store) ListVersions(ctx context.Context, draftID string) ([]DraftVersion, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT version_id, draft_id, version, author_id, created_at
		FROM draft_versions WHERE draft_id = ? ORDER BY version DESC`, draftID)
	if err != nil {
		return nil, fmt.Errorf("store: list versions: %w", err)
	}
	defer rows.Close()

	var out []DraftVersion
	for rows.Next() {
		var v DraftVersion
		var created int64
		if err := rows.Scan(&v.ID, &v.DraftID, &v.Version, &v.AuthorID, &created); err != nil {
			return nil, fmt.Errorf("store: list versions: %w", err)
		}
		v.CreatedAt = fromMilli(created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkPublished records the publish target. Status stays published on
// later edits; republish is an explicit action in the service.
func (s *Store) MarkPublished(ctx context.Context, draftID, siteID string, postID int64) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE drafts SET status = ?, site_id = ?, post_id = ?, updated_at = ?
		WHERE draft_id = ?`,
		string(DraftPublished), siteID, postID, nowMilli(), draftID)
	if err != nil {
		return fmt.Errorf("store: mark published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: draft %s", ErrNotFound, draftID)
	}
	return nil
}

func scanDraft(r rowScanner) (*Draft, error) {
	var d Draft
	var mm, status string
	var created, updated int64
	err := r.Scan(&d.ID, &d.SubmissionID, &d.Text, &mm, &d.Version, &status,
		&d.SiteID, &d.PostID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: draft", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan draft: %w", err)
	}
	if d.Media, err = unmarshalMap(mm); err != nil {
		return nil, err
	}
	d.Status = DraftStatus(status)
	d.CreatedAt = fromMilli(created)
	d.UpdatedAt = fromMilli(updated)
	return &d, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
