// Package llm produces alternate draft text through a language-model
// completion service. The model output must carry every placeholder token
// through unchanged; the quality gate enforces that before anything is
// stored.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable marks transient completion failures (rate limits, network,
// upstream 5xx). Callers may retry; anything else is terminal.
var ErrUnavailable = errors.New("llm: service unavailable")

// ErrQuality marks output the quality gate rejected: dropped placeholders,
// refusal boilerplate, or an implausible length.
var ErrQuality = errors.New("llm: output failed quality check")

// Client is the narrow completion contract.
type Client interface {
	// Complete sends one system+user exchange and returns the assistant
	// text.
	Complete(ctx context.Context, system, user string) (string, error)
}
