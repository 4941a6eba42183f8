// Package mailroom models inbound editorial mail and drives the periodic
// fetch cycle. The mailbox transport itself lives behind the Fetcher
// interface so the poll loop and batch handling stay testable.
package mailroom

import (
	"context"
	"strings"
	"time"
)

// Attachment is a file carried by an inbound message, already pulled
// off the transport and held in memory.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is one inbound submission mail.
type Message struct {
	// MessageID is the transport-level id, used for idempotent ingest.
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	// BodyText is the plain-text part; BodyHTML the HTML part when present.
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
}

// Fetcher retrieves unread messages from a mailbox. Implementations mark
// returned messages as read on the transport.
type Fetcher interface {
	FetchUnread(ctx context.Context, limit int) ([]Message, error)
}

// DedupeBatch collapses exact-subject repeats within a single poll,
// keeping the earliest message per subject. Relative order of the kept
// messages is preserved. Senders often re-send the same mail within
// minutes; collapsing here keeps the resolver from logging the repeat
// as a supersession.
func DedupeBatch(msgs []Message) []Message {
	if len(msgs) <= 1 {
		return msgs
	}
	keep := make([]Message, 0, len(msgs))
	seen := make(map[string]int, len(msgs))
	for _, m := range msgs {
		subject := strings.TrimSpace(m.Subject)
		i, ok := seen[subject]
		if !ok {
			seen[subject] = len(keep)
			keep = append(keep, m)
			continue
		}
		if m.Date.Before(keep[i].Date) {
			keep[i] = m
		}
	}
	return keep
}
