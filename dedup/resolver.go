// Package dedup decides whether an inbound submission is new, a retransmit
// to skip, or a higher-priority duplicate that supersedes an earlier one.
// The resolver is pure over a Lookup collaborator; it never mutates storage
// itself and a duplicate is a decision, not an error.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/copydesk/classify"
)

// Kind labels a dedup decision. Skip and Supersede values double as the
// duplicate-log entry kind.
type Kind string

const (
	Accept    Kind = "accept"
	Skip      Kind = "skipped"
	Supersede Kind = "superseded"
)

// Meta carries the dedup-relevant fields of one submission.
type Meta struct {
	ID          string
	Subject     string
	Cooperation classify.Cooperation
	Media       classify.MediaCode
	SourceUnit  string
	Title       string
	ReceivedAt  time.Time
}

// title is the string compared across candidates. It falls back to the
// subject-derived title when the extraction step left Title empty.
func (m Meta) title() string {
	if t := strings.TrimSpace(m.Title); t != "" {
		return t
	}
	return strings.TrimSpace(classify.TitleForDedup(m.Subject))
}

// Decision is the resolver's verdict. EffectiveID names the submission that
// remains authoritative; SupersededID is set only for Supersede.
type Decision struct {
	Kind         Kind
	EffectiveID  string
	SupersededID string
}

// Score orders duplicate candidates. Lower rank is better: partner
// submissions outrank free ones regardless of recency, and within the same
// cooperation tier the most recently received submission wins.
type Score struct {
	CooperationRank int
	ReceivedAt      time.Time
}

// ScoreOf computes the comparator tuple for a submission.
func ScoreOf(m Meta) Score {
	rank := 1
	if m.Cooperation == classify.CoopPartner {
		rank = 0
	}
	return Score{CooperationRank: rank, ReceivedAt: m.ReceivedAt}
}

// Better reports whether s strictly outranks other.
func (s Score) Better(other Score) bool {
	if s.CooperationRank != other.CooperationRank {
		return s.CooperationRank < other.CooperationRank
	}
	return s.ReceivedAt.After(other.ReceivedAt)
}

// Lookup is the query surface the resolver needs from the submission store.
type Lookup interface {
	// BySubject returns the submission whose raw subject string equals
	// subject exactly, or nil when none exists.
	BySubject(ctx context.Context, subject string) (*Meta, error)

	// Candidates returns previously accepted submissions sharing the given
	// target media and source unit. Title matching is the resolver's job.
	Candidates(ctx context.Context, media classify.MediaCode, sourceUnit string) ([]Meta, error)
}

// Resolver applies the two-step duplicate check over a Lookup.
type Resolver struct {
	lookup Lookup
	logger *slog.Logger
}

func New(lookup Lookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{lookup: lookup, logger: logger.With("component", "dedup")}
}

// Resolve decides the fate of an incoming submission.
//
// Step one skips any exact raw-subject retransmit. Step two runs only when
// media, source unit and title are all present: among stored submissions
// with the same media and unit whose title matches exactly (trimmed), the
// best-scoring one either yields to the incoming submission (Supersede) or
// keeps it out (Skip).
func (r *Resolver) Resolve(ctx context.Context, incoming Meta) (Decision, error) {
	existing, err := r.lookup.BySubject(ctx, incoming.Subject)
	if err != nil {
		return Decision{}, fmt.Errorf("dedup: subject lookup: %w", err)
	}
	if existing != nil {
		r.logger.Debug("exact subject retransmit",
			"incoming_id", incoming.ID, "effective_id", existing.ID)
		return Decision{Kind: Skip, EffectiveID: existing.ID}, nil
	}

	title := incoming.title()
	if incoming.SourceUnit == "" || incoming.Media == "" || title == "" {
		return Decision{Kind: Accept, EffectiveID: incoming.ID}, nil
	}

	candidates, err := r.lookup.Candidates(ctx, incoming.Media, incoming.SourceUnit)
	if err != nil {
		return Decision{}, fmt.Errorf("dedup: candidate lookup: %w", err)
	}

	var best *Meta
	for i := range candidates {
		c := &candidates[i]
		if c.ID == incoming.ID || c.title() != title {
			continue
		}
		if best == nil || ScoreOf(*c).Better(ScoreOf(*best)) {
			best = c
		}
	}
	if best == nil {
		return Decision{Kind: Accept, EffectiveID: incoming.ID}, nil
	}

	if ScoreOf(incoming).Better(ScoreOf(*best)) {
		r.logger.Info("superseding duplicate",
			"incoming_id", incoming.ID, "superseded_id", best.ID, "title", title)
		return Decision{Kind: Supersede, EffectiveID: incoming.ID, SupersededID: best.ID}, nil
	}
	r.logger.Info("skipping duplicate",
		"incoming_id", incoming.ID, "effective_id", best.ID, "title", title)
	return Decision{Kind: Skip, EffectiveID: best.ID}, nil
}
