// Package desk orchestrates the editorial submission flow: inbound mail is
// classified, checked for duplicates, normalized by the per-type pipeline,
// and turned into an editable, versioned draft that can be transformed and
// published.
package desk

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/hazyhaar/copydesk/dedup"
	"github.com/hazyhaar/copydesk/desk/internal/pipeline"
	"github.com/hazyhaar/copydesk/desk/internal/store"
	"github.com/hazyhaar/copydesk/docpipe"
	"github.com/hazyhaar/copydesk/idgen"
	"github.com/hazyhaar/copydesk/llm"
	"github.com/hazyhaar/copydesk/objstore"
	"github.com/hazyhaar/copydesk/placeholder"
	"github.com/hazyhaar/copydesk/webfetch"
	"github.com/hazyhaar/copydesk/wppub"
)

var (
	// ErrInvalidInput rejects malformed edit content before persistence.
	ErrInvalidInput = errors.New("desk: invalid input")
	// ErrNotConfigured marks an operation whose collaborator was not wired
	// (no publisher, no transformer).
	ErrNotConfigured = errors.New("desk: collaborator not configured")
	// ErrNotFound surfaces the store sentinel to callers outside the
	// internal tree.
	ErrNotFound = store.ErrNotFound
)

// Schema is the sqlite schema the service persists into, exposed for the
// entry point to pass to dbopen.
const Schema = store.Schema

type Config struct {
	// SiteID labels the publish target recorded on published drafts.
	SiteID string `json:"site_id" yaml:"site_id"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.SiteID == "" {
		c.SiteID = "default"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Deps are the service collaborators. DB is required; everything else is
// optional and the matching pipeline handlers or operations degrade
// (ErrNotConfigured, ErrCollaborator) without it.
type Deps struct {
	DB *sql.DB

	Docs    *docpipe.Pipeline
	Objects objstore.Store
	Client  *webfetch.Client
	Weixin  webfetch.Fetcher
	Meipian webfetch.Fetcher
	Generic webfetch.Fetcher

	Transformer *llm.Transformer
	Publisher   wppub.Publisher
}

// Service is the orchestrator behind the HTTP and MCP surfaces and the
// mailroom poller.
type Service struct {
	cfg         Config
	store       *store.Store
	pipe        *pipeline.Pipeline
	codec       *placeholder.Codec
	resolver    *dedup.Resolver
	transformer *llm.Transformer
	publisher   wppub.Publisher
	logger      *slog.Logger

	newSubmissionID idgen.Generator
	newDraftID      idgen.Generator
	newRunID        idgen.Generator
}

func New(deps Deps, cfg Config) *Service {
	cfg.defaults()
	logger := cfg.Logger.With("component", "desk")
	st := store.New(deps.DB)
	return &Service{
		cfg:   cfg,
		store: st,
		pipe: pipeline.New(pipeline.Deps{
			Docs:    deps.Docs,
			Objects: deps.Objects,
			Client:  deps.Client,
			Weixin:  deps.Weixin,
			Meipian: deps.Meipian,
			Generic: deps.Generic,
			Logger:  cfg.Logger,
		}),
		codec:           placeholder.NewCodec(),
		resolver:        dedup.New(st, logger),
		transformer:     deps.Transformer,
		publisher:       deps.Publisher,
		logger:          logger,
		newSubmissionID: idgen.Prefixed("sub_", idgen.Default),
		newDraftID:      idgen.Prefixed("drf_", idgen.Default),
		newRunID:        idgen.Prefixed("run_", idgen.Default),
	}
}
