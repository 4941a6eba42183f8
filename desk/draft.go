package desk

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/copydesk/desk/internal/store"
	"github.com/hazyhaar/copydesk/kit"
	"github.com/hazyhaar/copydesk/wppub"
)

// DraftDetail is the editor-facing read model: the draft with its text
// hydrated to rich HTML, plus version metadata.
type DraftDetail struct {
	Draft       *store.Draft         `json:"draft"`
	RichContent string               `json:"rich_content"`
	Versions    []store.DraftVersion `json:"versions"`
}

func (s *Service) DraftDetail(ctx context.Context, draftID string) (*DraftDetail, error) {
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	rich, err := s.codec.Decode(draft.Text, draft.Media)
	if err != nil {
		return nil, fmt.Errorf("desk: decode draft %s: %w", draftID, err)
	}
	versions, err := s.store.ListVersions(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return &DraftDetail{Draft: draft, RichContent: rich, Versions: versions}, nil
}

func (s *Service) DraftBySubmission(ctx context.Context, submissionID string) (*store.Draft, error) {
	return s.store.DraftBySubmission(ctx, submissionID)
}

// ApplyEdit encodes editor HTML back to storage format against the
// draft's current map and appends a snapshot. A byte-identical result is
// a no-op: the counter does not move. Concurrent editors are
// last-write-wins at the transaction boundary.
func (s *Service) ApplyEdit(ctx context.Context, draftID, richHTML string) (version int, changed bool, err error) {
	if strings.TrimSpace(richHTML) == "" {
		return 0, false, fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return 0, false, err
	}
	text, m, err := s.codec.Encode(richHTML, draft.Media)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, false, fmt.Errorf("%w: content reduces to nothing", ErrInvalidInput)
	}
	version, changed, err = s.store.AppendVersion(ctx, draftID, text, m, kit.GetEditorID(ctx))
	if err != nil {
		return 0, false, err
	}
	if changed {
		s.logger.Info("draft edited", "draft_id", draftID, "version", version,
			"editor_id", kit.GetEditorID(ctx))
	}
	return version, changed, nil
}

// Restore re-applies an old snapshot as a new version. History is
// additive: intervening versions stay untouched.
func (s *Service) Restore(ctx context.Context, draftID string, version int) (int, error) {
	v, err := s.store.GetVersion(ctx, draftID, version)
	if err != nil {
		return 0, err
	}
	newVersion, changed, err := s.store.AppendVersion(ctx, draftID, v.Text, v.Media, kit.GetEditorID(ctx))
	if err != nil {
		return 0, err
	}
	if changed {
		s.logger.Info("draft restored", "draft_id", draftID,
			"from_version", version, "new_version", newVersion)
	}
	return newVersion, nil
}

// Publish renders the draft to final HTML (no placeholder tokens, no
// internal identifiers) and sends it to the publishing client. A draft
// already holding a post id is republished to the same post; status
// never reverts after the first publish.
func (s *Service) Publish(ctx context.Context, draftID string) (int64, error) {
	if s.publisher == nil {
		return 0, fmt.Errorf("%w: no publisher", ErrNotConfigured)
	}
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return 0, err
	}
	sub, err := s.store.GetSubmission(ctx, draft.SubmissionID)
	if err != nil {
		return 0, err
	}
	html, err := s.codec.RenderFinal(draft.Text, draft.Media)
	if err != nil {
		return 0, fmt.Errorf("desk: render draft %s: %w", draftID, err)
	}

	if draft.PostID != 0 {
		if err := s.publisher.UpdatePost(ctx, draft.PostID, sub.Title, html, wppub.StatusPublish); err != nil {
			s.recordPublishFailure(ctx, sub.ID, err)
			return 0, err
		}
		s.logger.Info("draft republished", "draft_id", draftID, "post_id", draft.PostID)
		return draft.PostID, nil
	}

	postID, err := s.publisher.CreatePost(ctx, sub.Title, html, wppub.StatusPublish)
	if err != nil {
		s.recordPublishFailure(ctx, sub.ID, err)
		return 0, err
	}
	if err := s.store.MarkPublished(ctx, draftID, s.cfg.SiteID, postID); err != nil {
		return 0, err
	}
	s.logger.Info("draft published", "draft_id", draftID, "post_id", postID, "site_id", s.cfg.SiteID)
	return postID, nil
}

func (s *Service) recordPublishFailure(ctx context.Context, submissionID string, cause error) {
	if err := s.store.SetStatus(ctx, submissionID, store.StatusFailed, "发布失败: "+cause.Error()); err != nil {
		s.logger.Error("marking publish failure", "submission_id", submissionID, "error", err)
	}
}

// ListSubmissions is the editor list view; superseded submissions are
// filtered out by the store query.
func (s *Service) ListSubmissions(ctx context.Context, limit int) ([]store.Submission, error) {
	return s.store.ListSubmissions(ctx, limit)
}

func (s *Service) GetSubmission(ctx context.Context, id string) (*store.Submission, error) {
	return s.store.GetSubmission(ctx, id)
}

func (s *Service) DuplicateLog(ctx context.Context, limit int) ([]store.DuplicateLog, error) {
	return s.store.ListDuplicateLog(ctx, limit)
}

func (s *Service) RunLog(ctx context.Context, runID string) ([]store.TaskEntry, error) {
	return s.store.TasksByRun(ctx, runID)
}
