package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Map binds placeholder tokens to the current URL of the media they stand
// for. Keys are tokens in the form "[[IMG_n]]", n 1-based.
type Map map[string]string

var tokenRe = regexp.MustCompile(`\[\[IMG_(\d+)\]\]`)

// Token returns the placeholder token for a 1-based media index.
func Token(i int) string {
	return fmt.Sprintf("[[IMG_%d]]", i)
}

// Index returns the numeric index of a token, or 0 if s is not a token.
func Index(s string) int {
	m := tokenRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Tokens returns the placeholder tokens occurring in text, in order of first
// appearance, without repeats.
func Tokens(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(text, -1) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// NextIndex returns the smallest index not used by any key of the given maps.
// Indices are never reused for different media, so allocation always walks
// past the highest key seen.
func NextIndex(maps ...Map) int {
	max := 0
	for _, m := range maps {
		for tok := range m {
			if i := Index(tok); i > max {
				max = i
			}
		}
	}
	return max + 1
}

// Validate checks the coupling between a text and its map: every token in
// the text must have a map entry. Map keys without a textual occurrence are
// legal (retained legacy entries) and are reported by Unreferenced instead.
func Validate(text string, m Map) error {
	var missing []string
	for _, tok := range Tokens(text) {
		if _, ok := m[tok]; !ok {
			missing = append(missing, tok)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: dangling placeholders %s", ErrMalformed, strings.Join(missing, ", "))
	}
	return nil
}

// Unreferenced returns map keys with no occurrence in text, sorted by index.
// These entries are retained across edits rather than dropped, so an editor
// that momentarily loses an embed cannot destroy the underlying media link.
func Unreferenced(text string, m Map) []string {
	referenced := make(map[string]bool)
	for _, tok := range Tokens(text) {
		referenced[tok] = true
	}
	var out []string
	for tok := range m {
		if !referenced[tok] {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Index(out[i]) < Index(out[j]) })
	return out
}

// Merge restores prev entries for tokens that still occur in text but were
// not captured in next. This is the anti-data-loss rule: media the editor
// round-tripped without preserving metadata keep their last known URL.
func Merge(prev, next Map, text string) Map {
	merged := make(Map, len(next))
	for k, v := range next {
		merged[k] = v
	}
	for _, tok := range Tokens(text) {
		if _, ok := merged[tok]; ok {
			continue
		}
		if url, ok := prev[tok]; ok {
			merged[tok] = url
		}
	}
	return merged
}

// Clone returns a shallow copy of m. Version snapshots must not alias the
// draft's live map.
func Clone(m Map) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
