package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/copydesk/classify"
)

type fakeLookup struct {
	bySubject  map[string]*Meta
	candidates []Meta
	err        error
}

func (f *fakeLookup) BySubject(_ context.Context, subject string) (*Meta, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bySubject[subject], nil
}

func (f *fakeLookup) Candidates(_ context.Context, media classify.MediaCode, unit string) ([]Meta, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Meta
	for _, c := range f.candidates {
		if c.Media == media && c.SourceUnit == unit {
			out = append(out, c)
		}
	}
	return out, nil
}

func meta(id string, coop classify.Cooperation, received time.Time) Meta {
	return Meta{
		ID:          id,
		Subject:     "投，时，凤翔区人社局，春风迎归人",
		Cooperation: coop,
		Media:       classify.MediaShidai,
		SourceUnit:  "凤翔区人社局",
		Title:       "春风迎归人",
		ReceivedAt:  received,
	}
}

// WHAT: an exact raw-subject match short-circuits to Skip.
// WHY: retransmitted identical mail must never be reprocessed, whatever its
// cooperation flag or recency says.
func TestResolve_ExactSubjectSkips(t *testing.T) {
	old := meta("sub_old", classify.CoopFree, time.Now().Add(-time.Hour))
	lookup := &fakeLookup{bySubject: map[string]*Meta{old.Subject: &old}}
	r := New(lookup, nil)

	incoming := meta("sub_new", classify.CoopPartner, time.Now())
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Skip || d.EffectiveID != "sub_old" {
		t.Fatalf("got %+v, want Skip keeping sub_old", d)
	}
}

// WHAT: a free, newer submission does not supersede a partner, older one.
// WHY: cooperation rank dominates recency in the score tuple.
func TestResolve_PartnerOutranksNewerFree(t *testing.T) {
	old := meta("sub_partner", classify.CoopPartner, time.Now().Add(-24*time.Hour))
	lookup := &fakeLookup{candidates: []Meta{old}}
	r := New(lookup, nil)

	incoming := meta("sub_free", classify.CoopFree, time.Now())
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Skip || d.EffectiveID != "sub_partner" {
		t.Fatalf("got %+v, want Skip keeping sub_partner", d)
	}
}

// WHAT: within the same cooperation tier the newer submission supersedes.
func TestResolve_NewerFreeSupersedesOlderFree(t *testing.T) {
	old := meta("sub_old", classify.CoopFree, time.Now().Add(-24*time.Hour))
	lookup := &fakeLookup{candidates: []Meta{old}}
	r := New(lookup, nil)

	incoming := meta("sub_new", classify.CoopFree, time.Now())
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Supersede || d.EffectiveID != "sub_new" || d.SupersededID != "sub_old" {
		t.Fatalf("got %+v, want Supersede new over old", d)
	}
}

// WHAT: the best-scoring candidate is the one compared against, not the
// first returned.
func TestResolve_PicksBestCandidate(t *testing.T) {
	free := meta("sub_free", classify.CoopFree, time.Now().Add(-time.Hour))
	partner := meta("sub_partner", classify.CoopPartner, time.Now().Add(-48*time.Hour))
	lookup := &fakeLookup{candidates: []Meta{free, partner}}
	r := New(lookup, nil)

	incoming := meta("sub_new", classify.CoopFree, time.Now())
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Skip || d.EffectiveID != "sub_partner" {
		t.Fatalf("got %+v, want Skip against the partner candidate", d)
	}
}

// WHAT: missing routing metadata disables the semantic check entirely.
func TestResolve_IncompleteRoutingAccepts(t *testing.T) {
	old := meta("sub_old", classify.CoopFree, time.Now().Add(-time.Hour))
	lookup := &fakeLookup{candidates: []Meta{old}}
	r := New(lookup, nil)

	incoming := meta("sub_new", classify.CoopFree, time.Now())
	incoming.Subject = "一封没有路由信息的来稿"
	incoming.SourceUnit = ""
	incoming.Title = ""
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Accept || d.EffectiveID != "sub_new" {
		t.Fatalf("got %+v, want Accept", d)
	}
}

// WHAT: candidates with a different title are not duplicates.
func TestResolve_TitleMismatchAccepts(t *testing.T) {
	old := meta("sub_old", classify.CoopFree, time.Now().Add(-time.Hour))
	old.Title = "另一篇稿件"
	lookup := &fakeLookup{candidates: []Meta{old}}
	r := New(lookup, nil)

	incoming := meta("sub_new", classify.CoopFree, time.Now())
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Accept {
		t.Fatalf("got %+v, want Accept", d)
	}
}

// WHAT: a candidate whose Title field is empty still matches through its
// subject-derived title.
func TestResolve_TitleFallsBackToSubject(t *testing.T) {
	old := meta("sub_old", classify.CoopFree, time.Now().Add(-time.Hour))
	old.Title = ""
	old.Subject = "投，时，凤翔区人社局，春风迎归人"
	lookup := &fakeLookup{candidates: []Meta{old}}
	r := New(lookup, nil)

	incoming := meta("sub_new", classify.CoopFree, time.Now())
	incoming.Subject = "合，时，凤翔区人社局，春风迎归人"
	d, err := r.Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != Supersede || d.SupersededID != "sub_old" {
		t.Fatalf("got %+v, want Supersede via derived title", d)
	}
}

// WHAT: lookup failures surface as errors, not as decisions.
func TestResolve_LookupErrorPropagates(t *testing.T) {
	wantErr := errors.New("db gone")
	r := New(&fakeLookup{err: wantErr}, nil)

	_, err := r.Resolve(context.Background(), meta("sub_new", classify.CoopFree, time.Now()))
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want wrapped lookup error", err)
	}
}
