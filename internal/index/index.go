package index

import (
	"fmt"
	"sync"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

// IndexError reports a lookup failure inside the label index: a missing
// series entry for a posting bit, or a request with no matchers.
type IndexError struct {
	Msg string
}

func (e *IndexError) Error() string { return "index error: " + e.Msg }

// Index is the label index (C4): it maps label (name, value) pairs to
// bitmap postings of series identifiers and resolves matcher sets down to
// a candidate SID set. It owns no reference back to any server; its page
// cache is constructed once and handed to NewIndex, not reached through a
// back-pointer.
type Index struct {
	mu     sync.Mutex // insert guard: serializes AddSeries
	pages  *PageCache
	tree   *tree
	series *SeriesManager
}

// NewIndex builds an index over pc, an independently-owned page cache.
func NewIndex(pc *PageCache) *Index {
	return &Index{pages: pc, tree: newTree(), series: NewSeriesManager()}
}

// AddSeries registers ls if it has not been seen before (by content hash)
// and returns its SID, allocating one on first sight. For each label in
// ls, the SID's bit is set in the posting addressed by (name, value).
// Publish order is: allocate SID, fill the labels map (both happen inside
// SeriesManager.register), then set postings bits — so a reader can never
// observe a set bit whose SID has no resolvable label set.
func (ix *Index) AddSeries(ls labels.Set) SID {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if sid, ok := ix.series.Lookup(ls); ok {
		return sid
	}
	sid := ix.series.register(ls)
	for _, l := range ls {
		key := MakeKey(l.Name, l.Value)
		ix.tree.insert(key, sid, ix.pages)
	}
	return sid
}

// Lookup returns the SID already registered for ls, without registering
// it. Used by callers that need to distinguish a brand-new series from a
// re-ingested one (e.g. for cardinality accounting) before calling
// AddSeries.
func (ix *Index) Lookup(ls labels.Set) (SID, bool) {
	return ix.series.Lookup(ls)
}

// GetLabels reverse-looks-up a SID's label set.
func (ix *Index) GetLabels(sid SID) (labels.Set, bool) {
	return ix.series.Get(sid)
}

// LabelValues enumerates the distinct values observed for name.
func (ix *Index) LabelValues(name string) []string {
	return ix.series.LabelValues(name)
}

// SeriesCount returns the number of distinct registered series.
func (ix *Index) SeriesCount() int {
	return ix.series.Count()
}

// ResolveMatchers intersects the posting sets of every matcher in ms and
// returns the resulting candidate SID set. At least one matcher is
// required; resolving to an empty set is legal and simply yields no
// series.
func (ix *Index) ResolveMatchers(ms []*lang.Matcher) (map[SID]struct{}, error) {
	if len(ms) == 0 {
		return nil, &IndexError{Msg: "at least one label matcher is required"}
	}

	var result map[SID]struct{}
	for _, m := range ms {
		candidates, err := ix.resolveOne(m)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = candidates
			continue
		}
		result = intersect(result, candidates)
		if len(result) == 0 {
			return result, nil
		}
	}
	return result, nil
}

func intersect(a, b map[SID]struct{}) map[SID]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[SID]struct{}, len(a))
	for sid := range a {
		if _, ok := b[sid]; ok {
			out[sid] = struct{}{}
		}
	}
	return out
}

// resolveOne computes the candidate SID set for a single matcher, per the
// matcher-to-key-range mapping: EQ looks up one key; NEQ/LT/LE/GT/GE scan
// a sub-range of the name's key space; regex matchers scan the whole name
// range and filter by materialized label values.
func (ix *Index) resolveOne(m *lang.Matcher) (map[SID]struct{}, error) {
	out := make(map[SID]struct{})

	switch m.Op {
	case lang.MatchEQ:
		key := MakeKey(m.Name, m.Value)
		if pages, ok := ix.tree.pagesFor(key); ok {
			sidsForKey(pages, PageCapacity, out)
		}
		return out, nil

	case lang.MatchEQRegex, lang.MatchNEQRegex:
		lo, hi := NameRange(m.Name)
		for _, key := range ix.tree.scanRange(lo, hi) {
			pages, _ := ix.tree.pagesFor(key)
			candidates := make(map[SID]struct{})
			sidsForKey(pages, PageCapacity, candidates)
			for sid := range candidates {
				ls, ok := ix.series.Get(sid)
				if !ok {
					return nil, &IndexError{Msg: fmt.Sprintf("no series entry for sid %d", sid)}
				}
				v, _ := ls.Get(m.Name)
				if labels.MatcherAccepts(m, v) {
					out[sid] = struct{}{}
				}
			}
		}
		return out, nil
	}

	matchKey := MakeKey(m.Name, m.Value)
	nameLo, nameHi := NameRange(m.Name)

	var lo, hi Key
	var excludeMatch bool
	switch m.Op {
	case lang.MatchNEQ:
		lo, hi, excludeMatch = nameLo, nameHi, true
	case lang.MatchLT:
		lo, hi = nameLo, matchKey
	case lang.MatchLE:
		lo, hi = nameLo, matchKey+1
	case lang.MatchGT:
		lo, hi = matchKey+1, nameHi
	case lang.MatchGE:
		lo, hi = matchKey, nameHi
	default:
		return nil, &IndexError{Msg: fmt.Sprintf("unsupported matcher op %v", m.Op)}
	}

	for _, key := range ix.tree.scanRange(lo, hi) {
		if excludeMatch && key == matchKey {
			continue
		}
		pages, _ := ix.tree.pagesFor(key)
		sidsForKey(pages, PageCapacity, out)
	}
	return out, nil
}
