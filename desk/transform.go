package desk

import (
	"context"
	"fmt"

	"github.com/hazyhaar/copydesk/desk/internal/store"
)

// Transform produces a rewritten alternate version of a submission's
// draft through the completion client. The quality gate inside the
// transformer guarantees every placeholder token survives, so the
// draft's media map stays valid for the new text. Failure marks the
// submission failed with the reason; it never panics the worker.
func (s *Service) Transform(ctx context.Context, submissionID string) error {
	if s.transformer == nil {
		return fmt.Errorf("%w: no transformer", ErrNotConfigured)
	}
	draft, err := s.store.DraftBySubmission(ctx, submissionID)
	if err != nil {
		return err
	}

	out, err := s.transformer.Transform(ctx, draft.Text)
	if err != nil {
		if serr := s.store.SetStatus(ctx, submissionID, store.StatusFailed, "AI转换失败: "+err.Error()); serr != nil {
			s.logger.Error("marking transform failure", "submission_id", submissionID, "error", serr)
		}
		return fmt.Errorf("desk: transform %s: %w", submissionID, err)
	}

	version, changed, err := s.store.AppendVersion(ctx, draft.ID, out, draft.Media, "ai")
	if err != nil {
		return err
	}
	if !changed {
		s.logger.Info("transform produced identical text", "submission_id", submissionID)
		return nil
	}
	s.logger.Info("transform version created",
		"submission_id", submissionID, "draft_id", draft.ID, "version", version)
	return nil
}
