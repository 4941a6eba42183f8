package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/copydesk/classify"
	"github.com/hazyhaar/copydesk/dedup"
)

const submissionCols = `submission_id, subject, sender, received_at, content_type,
	cooperation, media, source_unit, title, body_text, raw_html, status,
	error_message, created_at, updated_at`

func (s *Store) InsertSubmission(ctx context.Context, sub *Submission) error {
	now := nowMilli()
	if sub.Status == "" {
		sub.Status = StatusPending
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Subject, sub.Sender, sub.ReceivedAt.UnixMilli(),
		string(sub.ContentType), string(sub.Cooperation), string(sub.Media),
		sub.SourceUnit, sub.Title, sub.BodyText, sub.RawHTML,
		string(sub.Status), sub.ErrorMessage, now, now)
	if err != nil {
		return fmt.Errorf("store: insert submission: %w", err)
	}
	sub.CreatedAt = fromMilli(now)
	sub.UpdatedAt = fromMilli(now)
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE submission_id = ?`, id)
	return scanSubmission(row)
}

// UpdateExtraction persists the fields the pipeline handler fills in:
// article body, raw HTML and the extracted title when it improves on the
// subject-derived one.
func (s *Store) UpdateExtraction(ctx context.Context, sub *Submission) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE submissions
		SET body_text = ?, raw_html = ?, title = ?, updated_at = ?
		WHERE submission_id = ?`,
		sub.BodyText, sub.RawHTML, sub.Title, nowMilli(), sub.ID)
	if err != nil {
		return fmt.Errorf("store: update extraction: %w", err)
	}
	return requireRow(res, sub.ID)
}

// SetStatus moves a submission through its lifecycle. The message is
// cleared on any non-failed status.
func (s *Store) SetStatus(ctx context.Context, id string, status SubmissionStatus, message string) error {
	if status != StatusFailed {
		message = ""
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE submissions SET status = ?, error_message = ?, updated_at = ?
		WHERE submission_id = ?`,
		string(status), message, nowMilli(), id)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return requireRow(res, id)
}

// ListSubmissions returns submissions newest first, excluding any id that
// appears as a superseded id in the duplicate log.
func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+submissionCols+` FROM submissions
		WHERE submission_id NOT IN (
			SELECT superseded_submission_id FROM duplicate_logs
			WHERE superseded_submission_id != ''
		)
		ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// BySubject implements dedup.Lookup: exact raw-subject match among
// non-superseded submissions, nil when absent.
func (s *Store) BySubject(ctx context.Context, subject string) (*dedup.Meta, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT submission_id, subject, cooperation, media, source_unit, title, received_at
		FROM submissions
		WHERE subject = ? AND submission_id NOT IN (
			SELECT superseded_submission_id FROM duplicate_logs
			WHERE superseded_submission_id != ''
		)
		ORDER BY received_at ASC LIMIT 1`, subject)
	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: by subject: %w", err)
	}
	return meta, nil
}

// Candidates implements dedup.Lookup: non-superseded submissions sharing
// media and source unit. Title matching stays with the resolver.
func (s *Store) Candidates(ctx context.Context, media classify.MediaCode, sourceUnit string) ([]dedup.Meta, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT submission_id, subject, cooperation, media, source_unit, title, received_at
		FROM submissions
		WHERE media = ? AND source_unit = ? AND submission_id NOT IN (
			SELECT superseded_submission_id FROM duplicate_logs
			WHERE superseded_submission_id != ''
		)`, string(media), sourceUnit)
	if err != nil {
		return nil, fmt.Errorf("store: candidates: %w", err)
	}
	defer rows.Close()

	var out []dedup.Meta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("store: candidates: %w", err)
		}
		out = append(out, *meta)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(r rowScanner) (*Submission, error) {
	var sub Submission
	var ct, coop, media, status string
	var received, created, updated int64
	err := r.Scan(&sub.ID, &sub.Subject, &sub.Sender, &received, &ct,
		&coop, &media, &sub.SourceUnit, &sub.Title, &sub.BodyText,
		&sub.RawHTML, &status, &sub.ErrorMessage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: submission", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan submission: %w", err)
	}
	sub.ReceivedAt = fromMilli(received)
	sub.ContentType = classify.ContentType(ct)
	sub.Cooperation = classify.Cooperation(coop)
	sub.Media = classify.MediaCode(media)
	sub.Status = SubmissionStatus(status)
	sub.CreatedAt = fromMilli(created)
	sub.UpdatedAt = fromMilli(updated)
	return &sub, nil
}

func scanMeta(r rowScanner) (*dedup.Meta, error) {
	var m dedup.Meta
	var coop, media string
	var received int64
	if err := r.Scan(&m.ID, &m.Subject, &coop, &media, &m.SourceUnit, &m.Title, &received); err != nil {
		return nil, err
	}
	m.Cooperation = classify.Cooperation(coop)
	m.Media = classify.MediaCode(media)
	m.ReceivedAt = fromMilli(received)
	return &m, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return nil
}
