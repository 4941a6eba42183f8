package store

import (
	"time"

	"github.com/hazyhaar/copydesk/classify"
	"github.com/hazyhaar/copydesk/placeholder"
)

type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusCompleted  SubmissionStatus = "completed"
	StatusFailed     SubmissionStatus = "failed"
)

// Submission is one inbound piece of content. Routing fields come from the
// subject parser; body fields are filled by the pipeline handler.
type Submission struct {
	ID           string
	Subject      string
	Sender       string
	ReceivedAt   time.Time
	ContentType  classify.ContentType
	Cooperation  classify.Cooperation
	Media        classify.MediaCode
	SourceUnit   string
	Title        string
	BodyText     string
	RawHTML      string
	Status       SubmissionStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DraftStatus string

const (
	DraftEditing   DraftStatus = "draft"
	DraftPublished DraftStatus = "published"
)

// Draft is the editable article derived from a submission, 1:1.
type Draft struct {
	ID           string
	SubmissionID string
	Text         string
	Media        placeholder.Map
	Version      int
	Status       DraftStatus
	SiteID       string
	PostID       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DraftVersion is an immutable snapshot, one per content-changing edit.
type DraftVersion struct {
	ID        string
	DraftID   string
	Version   int
	Text      string
	Media     placeholder.Map
	AuthorID  string
	CreatedAt time.Time
}

// DuplicateLog records one dedup decision, append-only.
type DuplicateLog struct {
	ID           string
	Kind         string
	EffectiveID  string
	SupersededID string
	Subject      string
	SourceUnit   string
	Media        classify.MediaCode
	CreatedAt    time.Time
}

// TaskEntry is one structured status line in the per-run task log.
type TaskEntry struct {
	ID        string
	RunID     string
	TaskType  string
	RefID     string
	Status    string
	Message   string
	CreatedAt time.Time
}
