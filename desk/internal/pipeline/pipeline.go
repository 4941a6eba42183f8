// Package pipeline turns classified inbound submissions into normalized
// article content. One handler per content type, selected through a
// dispatch table; adding a type means adding a handler, not growing a
// conditional.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/copydesk/classify"
	"github.com/hazyhaar/copydesk/desk/internal/store"
	"github.com/hazyhaar/copydesk/docpipe"
	"github.com/hazyhaar/copydesk/mailroom"
	"github.com/hazyhaar/copydesk/objstore"
	"github.com/hazyhaar/copydesk/placeholder"
	"github.com/hazyhaar/copydesk/webfetch"
)

// ErrCollaborator marks failures of an external collaborator (fetch,
// conversion, upload). The service records them on the submission instead
// of crashing the worker.
var ErrCollaborator = errors.New("pipeline: collaborator failure")

// Item is one classified submission plus its transport payload.
type Item struct {
	Submission  *store.Submission
	Attachments []mailroom.Attachment
	// URL is the extracted content link for link-typed submissions.
	URL string
}

// Result is a handler's normalized article.
type Result struct {
	Title   string
	Text    string
	Media   placeholder.Map
	RawHTML string
	// Manual marks content held for an editor instead of a draft
	// (archives, oversized attachments).
	Manual bool
	// Note is a human-readable line for the task log.
	Note string
}

// Handler normalizes one content type.
type Handler interface {
	Handle(ctx context.Context, item *Item) (*Result, error)
}

// Deps are the collaborators handlers draw on.
type Deps struct {
	Docs    *docpipe.Pipeline
	Objects objstore.Store
	Client  *webfetch.Client
	Weixin  webfetch.Fetcher
	Meipian webfetch.Fetcher
	Generic webfetch.Fetcher
	Logger  *slog.Logger
}

type Pipeline struct {
	handlers map[classify.ContentType]Handler
	logger   *slog.Logger
}

func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "pipeline")

	p := &Pipeline{logger: logger}
	p.handlers = map[classify.ContentType]Handler{
		classify.TypeArchive:         &archiveHandler{},
		classify.TypeLargeAttachment: &largeAttachmentHandler{},
		classify.TypeWeixin:          &linkHandler{fetcher: deps.Weixin, deps: deps, platform: "weixin"},
		classify.TypeMeipian:         &linkHandler{fetcher: deps.Meipian, deps: deps, platform: "meipian"},
		classify.TypeOtherURL:        &linkHandler{fetcher: deps.Generic, deps: deps, platform: "web"},
		classify.TypeDocument:        &documentHandler{deps: deps},
		classify.TypeVideo:           &videoHandler{deps: deps},
		classify.TypePlainText:       &textHandler{},
	}
	return p
}

// Process dispatches the item to its content-type handler. Unknown types
// fall back to the plain-text handler.
func (p *Pipeline) Process(ctx context.Context, item *Item) (*Result, error) {
	t := item.Submission.ContentType
	h, ok := p.handlers[t]
	if !ok {
		p.logger.Warn("no handler for content type, treating as text", "content_type", t)
		h = p.handlers[classify.TypePlainText]
	}
	res, err := h.Handle(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s: %w", t, err)
	}
	if res.Title == "" {
		res.Title = item.Submission.Title
	}
	return res, nil
}

// textHandler takes the mail body as the article.
type textHandler struct{}

func (textHandler) Handle(_ context.Context, item *Item) (*Result, error) {
	text, m := placeholder.EncodeFromRaw(item.Submission.BodyText, nil)
	return &Result{Text: text, Media: m}, nil
}

// archiveHandler holds the submission for manual unpacking.
type archiveHandler struct{}

func (archiveHandler) Handle(_ context.Context, item *Item) (*Result, error) {
	return &Result{
		Text:   item.Submission.BodyText,
		Media:  placeholder.Map{},
		Manual: true,
		Note:   "压缩包来稿，待人工处理",
	}, nil
}

// largeAttachmentHandler records the hosted download link for an editor.
type largeAttachmentHandler struct{}

func (largeAttachmentHandler) Handle(_ context.Context, item *Item) (*Result, error) {
	text := item.Submission.BodyText
	if item.URL != "" {
		text = fmt.Sprintf("%s\n\n下载链接：%s", text, item.URL)
	}
	return &Result{
		Text:   text,
		Media:  placeholder.Map{},
		Manual: true,
		Note:   "超大附件来稿，待人工下载",
	}, nil
}
