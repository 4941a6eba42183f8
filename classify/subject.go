package classify

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Cooperation distinguishes partner-sourced from freely contributed mail.
// It is the primary dedup tie-break: partner outranks free regardless of
// recency.
type Cooperation string

const (
	CoopFree    Cooperation = "free"
	CoopPartner Cooperation = "partner"
)

// MediaCode identifies the target publication.
type MediaCode string

const (
	MediaRongyao   MediaCode = "rongyao"
	MediaShidai    MediaCode = "shidai"
	MediaZhengxian MediaCode = "zhengxian"
	MediaZhengqi   MediaCode = "zhengqi"
	MediaToutiao   MediaCode = "toutiao"
)

var cooperationTable = map[string]Cooperation{
	"投": CoopFree,
	"合": CoopPartner,
}

var mediaTable = map[string]MediaCode{
	"荣": MediaRongyao,
	"时": MediaShidai,
	"争": MediaZhengxian,
	"优": MediaZhengxian,
	"政": MediaZhengqi,
	"头": MediaToutiao,
}

// Routing is the metadata parsed from a structured subject line.
// Zero values mean the subject did not follow the convention; Title is
// always populated (falls back to the whole subject).
type Routing struct {
	Cooperation Cooperation
	Media       MediaCode
	SourceUnit  string
	Title       string
}

var (
	forwardPrefixRe = regexp.MustCompile(`^转发[：:]\s*`)
	delimiterRe     = regexp.MustCompile(`[，,、]`)
)

// ParseSubject parses the subject-line convention
//
//	[cooperation]，[media]，[source unit]，[title]
//
// e.g. "投，时，凤翔区人社局，春风迎归人 人社暖民心". A leading forwarded
// prefix is stripped, the remainder split on comma-class delimiters into at
// most 4 segments. With fewer than 3 segments the routing fields stay empty
// and the whole subject becomes the title. Subjects are NFC-normalized so
// composed and decomposed forms of the same title compare equal downstream.
func ParseSubject(subject string) Routing {
	subject = norm.NFC.String(subject)
	subject = forwardPrefixRe.ReplaceAllString(subject, "")

	parts := splitSubject(subject)
	if len(parts) < 3 {
		return Routing{Title: strings.TrimSpace(subject)}
	}

	r := Routing{
		Cooperation: cooperationTable[parts[0]],
		Media:       mediaTable[parts[1]],
		SourceUnit:  parts[2],
		Title:       strings.TrimSpace(subject),
	}
	if len(parts) >= 4 {
		r.Title = parts[3]
	}
	return r
}

// TitleForDedup extracts only the title using the same segmentation rule as
// ParseSubject. Used exclusively for duplicate-candidate matching.
func TitleForDedup(subject string) string {
	subject = norm.NFC.String(subject)
	subject = forwardPrefixRe.ReplaceAllString(subject, "")

	parts := splitSubject(subject)
	if len(parts) >= 4 {
		return parts[3]
	}
	return strings.TrimSpace(subject)
}

// splitSubject splits on 、 and both comma widths into at most 4 trimmed,
// non-empty segments; the 4th segment keeps any further delimiters intact.
func splitSubject(subject string) []string {
	raw := delimiterRe.Split(subject, 4)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
