package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/copydesk/classify"
	"github.com/hazyhaar/copydesk/dedup"
	"github.com/hazyhaar/copydesk/desk/internal/pipeline"
	"github.com/hazyhaar/copydesk/desk/internal/store"
	"github.com/hazyhaar/copydesk/mailroom"
)

// IngestBatch processes one poll cycle's messages. The batch is
// deduplicated by exact subject before anything is dispatched, a run id
// is minted once and carried by every task-log row of the cycle, and a
// failing message never aborts the rest of the batch.
func (s *Service) IngestBatch(ctx context.Context, msgs []mailroom.Message) error {
	runID := s.newRunID()
	logger := s.logger.With("run_id", runID)

	batch := mailroom.DedupeBatch(msgs)
	s.logTask(ctx, runID, "ingest_batch", "", "started",
		fmt.Sprintf("%d messages, %d after batch dedup", len(msgs), len(batch)))

	var failed int
	for _, msg := range batch {
		if err := s.ingestOne(ctx, runID, msg); err != nil {
			failed++
			logger.Error("message ingest failed", "subject", msg.Subject, "error", err)
		}
	}

	s.logTask(ctx, runID, "ingest_batch", "", "completed",
		fmt.Sprintf("%d processed, %d failed", len(batch)-failed, failed))
	logger.Info("batch finished", "processed", len(batch)-failed, "failed", failed)
	return nil
}

func (s *Service) ingestOne(ctx context.Context, runID string, msg mailroom.Message) error {
	subject := strings.TrimSpace(msg.Subject)
	routing := classify.ParseSubject(subject)
	id := s.newSubmissionID()

	decision, err := s.resolver.Resolve(ctx, dedup.Meta{
		ID:          id,
		Subject:     subject,
		Cooperation: routing.Cooperation,
		Media:       routing.Media,
		SourceUnit:  routing.SourceUnit,
		Title:       routing.Title,
		ReceivedAt:  msg.Date,
	})
	if err != nil {
		return err
	}

	// A skipped retransmit is logged and dropped before any extraction
	// cost: no fetch, no document parse.
	if decision.Kind == dedup.Skip {
		if err := s.store.InsertDuplicateLog(ctx, &store.DuplicateLog{
			Kind:        string(dedup.Skip),
			EffectiveID: decision.EffectiveID,
			Subject:     subject,
			SourceUnit:  routing.SourceUnit,
			Media:       routing.Media,
		}); err != nil {
			return err
		}
		s.logTask(ctx, runID, "ingest_message", decision.EffectiveID, "skipped",
			fmt.Sprintf("duplicate of %s: %s", decision.EffectiveID, subject))
		return nil
	}

	body := msg.BodyText
	if strings.TrimSpace(body) == "" {
		body = msg.BodyHTML
	}
	atts := make([]classify.Attachment, len(msg.Attachments))
	for i, a := range msg.Attachments {
		atts[i] = classify.Attachment{Filename: a.Filename}
	}
	contentType := classify.Detect(body, atts)

	sub := &store.Submission{
		ID:          id,
		Subject:     subject,
		Sender:      msg.From,
		ReceivedAt:  msg.Date,
		ContentType: contentType,
		Cooperation: routing.Cooperation,
		Media:       routing.Media,
		SourceUnit:  routing.SourceUnit,
		Title:       routing.Title,
		BodyText:    body,
		RawHTML:     msg.BodyHTML,
		Status:      store.StatusProcessing,
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return err
	}
	s.logTask(ctx, runID, "ingest_message", id, "started",
		fmt.Sprintf("%s: %s", contentType, subject))

	res, err := s.pipe.Process(ctx, &pipeline.Item{
		Submission:  sub,
		Attachments: msg.Attachments,
		URL:         classify.ExtractURL(body, contentType),
	})
	if err != nil {
		s.failSubmission(ctx, runID, id, err)
		return err
	}

	sub.BodyText = res.Text
	if res.RawHTML != "" {
		sub.RawHTML = res.RawHTML
	}
	if res.Title != "" {
		sub.Title = res.Title
	}
	if err := s.store.UpdateExtraction(ctx, sub); err != nil {
		s.failSubmission(ctx, runID, id, err)
		return err
	}

	// The supersession entry is written only after the replacement is
	// safely persisted; the old submission stays, read models filter it.
	if decision.Kind == dedup.Supersede {
		if err := s.store.InsertDuplicateLog(ctx, &store.DuplicateLog{
			Kind:         string(dedup.Supersede),
			EffectiveID:  id,
			SupersededID: decision.SupersededID,
			Subject:      subject,
			SourceUnit:   routing.SourceUnit,
			Media:        routing.Media,
		}); err != nil {
			return err
		}
		s.logTask(ctx, runID, "ingest_message", id, "superseded",
			fmt.Sprintf("replaces %s", decision.SupersededID))
	}

	if res.Manual {
		s.logTask(ctx, runID, "ingest_message", id, "manual", res.Note)
	} else if err := s.ensureDraft(ctx, sub, res); err != nil {
		s.failSubmission(ctx, runID, id, err)
		return err
	}

	if err := s.store.SetStatus(ctx, id, store.StatusCompleted, ""); err != nil {
		return err
	}
	s.logTask(ctx, runID, "ingest_message", id, "completed", "")

	if s.transformer != nil && !res.Manual {
		if err := s.Transform(ctx, id); err != nil {
			s.logger.Warn("transform failed", "run_id", runID, "submission_id", id, "error", err)
		}
	}
	return nil
}

// ensureDraft creates the version-1 draft; a concurrent or repeated
// create is treated as fetch-existing, not an error.
func (s *Service) ensureDraft(ctx context.Context, sub *store.Submission, res *pipeline.Result) error {
	draft := &store.Draft{
		ID:           s.newDraftID(),
		SubmissionID: sub.ID,
		Text:         res.Text,
		Media:        res.Media,
	}
	err := s.store.CreateDraft(ctx, draft)
	if errors.Is(err, store.ErrExists) {
		return nil
	}
	return err
}

func (s *Service) failSubmission(ctx context.Context, runID, id string, cause error) {
	if err := s.store.SetStatus(ctx, id, store.StatusFailed, cause.Error()); err != nil {
		s.logger.Error("marking submission failed", "submission_id", id, "error", err)
	}
	s.logTask(ctx, runID, "ingest_message", id, "failed", cause.Error())
}

// logTask appends a structured status row; a logging failure is itself
// logged but never fails the operation it annotates.
func (s *Service) logTask(ctx context.Context, runID, taskType, refID, status, message string) {
	err := s.store.LogTask(ctx, &store.TaskEntry{
		RunID:    runID,
		TaskType: taskType,
		RefID:    refID,
		Status:   status,
		Message:  message,
	})
	if err != nil {
		s.logger.Error("task log write failed", "run_id", runID, "error", err)
	}
}
