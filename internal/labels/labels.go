// Package labels implements the label set model shared by the index,
// storage, and evaluator packages: an unordered collection of (name,
// value) pairs keyed by name, plus the canonical encodings used for
// grouping and series identity.
package labels

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/nicktill/tinyquery/internal/lang"
)

// MetricName is the distinguished label name carrying the metric name.
const MetricName = "__name__"

// Label is a single (name, value) pair.
type Label struct {
	Name  string
	Value string
}

// Set is a label set: a sequence of Labels, unique by name. Callers that
// build a Set by hand should call Sorted to obtain the canonical form;
// everything returned by this package is already sorted.
type Set []Label

// New builds a sorted Set from a plain map, convenient for tests and for
// the ingestion path.
func New(m map[string]string) Set {
	s := make(Set, 0, len(m))
	for k, v := range m {
		s = append(s, Label{Name: k, Value: v})
	}
	return s.Sorted()
}

// Sorted returns a copy of s ordered by name then value (the canonical
// rendering used for equality keys).
func (s Set) Sorted() Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Get returns the value of the named label, if present.
func (s Set) Get(name string) (string, bool) {
	for _, l := range s {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// Map converts the set to a plain map, for JSON encoding.
func (s Set) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, l := range s {
		m[l.Name] = l.Value
	}
	return m
}

// Without returns a copy of s with the named labels removed.
func (s Set) Without(names ...string) Set {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make(Set, 0, len(s))
	for _, l := range s {
		if !drop[l.Name] {
			out = append(out, l)
		}
	}
	return out
}

// With returns the subset of s restricted to the named labels, in the
// order they appear in s.
func (s Set) With(names ...string) Set {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	out := make(Set, 0, len(names))
	for _, l := range s {
		if keep[l.Name] {
			out = append(out, l)
		}
	}
	return out
}

// CanonicalKey produces a collision-resistant canonical encoding of a
// sorted label set: each label is length-prefixed rather than joined with
// a delimiter, so names or values containing the delimiter characters a
// naive "name:value|" join would use cannot forge a collision.
func (s Set) CanonicalKey() string {
	sorted := s.Sorted()
	var b strings.Builder
	var lenBuf [8]byte
	for _, l := range sorted {
		binary.BigEndian.PutUint32(lenBuf[0:4], uint32(len(l.Name)))
		binary.BigEndian.PutUint32(lenBuf[4:8], uint32(len(l.Value)))
		b.Write(lenBuf[:])
		b.WriteString(l.Name)
		b.WriteString(l.Value)
	}
	return b.String()
}

// Matches reports whether every matcher in ms accepts this label set.
// An empty matcher list matches nothing (the caller must reject it
// earlier; see the index's resolution entry point).
func (s Set) Matches(ms []*lang.Matcher) bool {
	if len(ms) == 0 {
		return false
	}
	for _, m := range ms {
		v, _ := s.Get(m.Name)
		if !MatcherAccepts(m, v) {
			return false
		}
	}
	return true
}

// MatcherAccepts evaluates a single matcher against a label value. Regex
// matchers are anchored, per the match primitive's defined semantics.
func MatcherAccepts(m *lang.Matcher, value string) bool {
	switch m.Op {
	case lang.MatchEQ:
		return value == m.Value
	case lang.MatchNEQ:
		return value != m.Value
	case lang.MatchLT:
		return value < m.Value
	case lang.MatchGT:
		return value > m.Value
	case lang.MatchLE:
		return value <= m.Value
	case lang.MatchGE:
		return value >= m.Value
	case lang.MatchEQRegex:
		return regexMatch(m.Value, value)
	case lang.MatchNEQRegex:
		return !regexMatch(m.Value, value)
	default:
		return false
	}
}
