package index

import (
	"testing"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

func newTestIndex() *Index {
	return NewIndex(NewPageCache())
}

func mustMatcher(name string, op lang.MatchOp, value string) *lang.Matcher {
	return &lang.Matcher{Name: name, Op: op, Value: value}
}

func TestAddSeriesDedup(t *testing.T) {
	ix := newTestIndex()
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})

	sid1 := ix.AddSeries(ls)
	sid2 := ix.AddSeries(ls)
	if sid1 != sid2 {
		t.Fatalf("expected re-ingesting the same label set to return the same SID, got %d and %d", sid1, sid2)
	}
	if ix.SeriesCount() != 1 {
		t.Fatalf("expected 1 series, got %d", ix.SeriesCount())
	}
}

func TestLookupDoesNotRegister(t *testing.T) {
	ix := newTestIndex()
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})

	if _, ok := ix.Lookup(ls); ok {
		t.Fatalf("expected Lookup on an unseen series to report not found")
	}
	if ix.SeriesCount() != 0 {
		t.Fatalf("Lookup must not register a series, got count %d", ix.SeriesCount())
	}

	ix.AddSeries(ls)
	if _, ok := ix.Lookup(ls); !ok {
		t.Fatalf("expected Lookup to find a registered series")
	}
}

func TestResolveMatchersEquality(t *testing.T) {
	ix := newTestIndex()
	a := ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a"}))
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "b"}))

	got, err := ix.ResolveMatchers([]*lang.Matcher{mustMatcher("host", lang.MatchEQ, "a")})
	if err != nil {
		t.Fatalf("ResolveMatchers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 match, got %d", len(got))
	}
	if _, ok := got[a]; !ok {
		t.Fatalf("expected sid %d in result set %v", a, got)
	}
}

func TestResolveMatchersIntersection(t *testing.T) {
	ix := newTestIndex()
	want := ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a", "region": "us"}))
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a", "region": "eu"}))
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "b", "region": "us"}))

	got, err := ix.ResolveMatchers([]*lang.Matcher{
		mustMatcher("host", lang.MatchEQ, "a"),
		mustMatcher("region", lang.MatchEQ, "us"),
	})
	if err != nil {
		t.Fatalf("ResolveMatchers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected intersection to yield 1 series, got %d: %v", len(got), got)
	}
	if _, ok := got[want]; !ok {
		t.Fatalf("expected sid %d in intersection", want)
	}
}

func TestResolveMatchersNotEqual(t *testing.T) {
	ix := newTestIndex()
	a := ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a"}))
	b := ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "b"}))

	got, err := ix.ResolveMatchers([]*lang.Matcher{mustMatcher("host", lang.MatchNEQ, "a")})
	if err != nil {
		t.Fatalf("ResolveMatchers: %v", err)
	}
	if _, ok := got[a]; ok {
		t.Fatalf("NEQ matcher should have excluded sid %d", a)
	}
	if _, ok := got[b]; !ok {
		t.Fatalf("NEQ matcher should have included sid %d", b)
	}
}

func TestResolveMatchersRegex(t *testing.T) {
	ix := newTestIndex()
	a := ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "web-1"}))
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "db-1"}))

	got, err := ix.ResolveMatchers([]*lang.Matcher{mustMatcher("host", lang.MatchEQRegex, "web-.*")})
	if err != nil {
		t.Fatalf("ResolveMatchers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 regex match, got %d", len(got))
	}
	if _, ok := got[a]; !ok {
		t.Fatalf("expected sid %d to match web-.*", a)
	}
}

func TestResolveMatchersRequiresAtLeastOne(t *testing.T) {
	ix := newTestIndex()
	if _, err := ix.ResolveMatchers(nil); err == nil {
		t.Fatalf("expected an error resolving zero matchers")
	}
}

func TestResolveMatchersEmptyResultShortCircuits(t *testing.T) {
	ix := newTestIndex()
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a"}))

	got, err := ix.ResolveMatchers([]*lang.Matcher{
		mustMatcher("host", lang.MatchEQ, "nonexistent"),
		mustMatcher("region", lang.MatchEQ, "us"),
	})
	if err != nil {
		t.Fatalf("ResolveMatchers: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestLabelValues(t *testing.T) {
	ix := newTestIndex()
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a"}))
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "b"}))
	ix.AddSeries(labels.New(map[string]string{"__name__": "cpu", "host": "a"}))

	values := ix.LabelValues("host")
	if len(values) != 2 {
		t.Fatalf("expected 2 distinct host values, got %v", values)
	}
}

func TestGetLabelsRoundTrip(t *testing.T) {
	ix := newTestIndex()
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})
	sid := ix.AddSeries(ls)

	got, ok := ix.GetLabels(sid)
	if !ok {
		t.Fatalf("expected labels for sid %d", sid)
	}
	v, _ := got.Get("host")
	if v != "a" {
		t.Fatalf("expected host=a, got %q", v)
	}
}
