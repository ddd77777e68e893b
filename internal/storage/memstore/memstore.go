// Package memstore is an in-memory Storage backend. Data is lost on
// restart; useful for development and tests. Samples are keyed by series
// identifier (SID) from the shared label index rather than held in a
// flat, re-scanned metric slice.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/storage"
)

// DefaultMaxSamples bounds total retained samples so an unbounded ingest
// rate cannot grow the process without limit.
const DefaultMaxSamples = 5_000_000

// ErrSampleLimitExceeded is returned once a write would exceed the
// store's MaxSamples limit.
var ErrSampleLimitExceeded = fmt.Errorf("memstore: sample limit exceeded (max %d samples)", DefaultMaxSamples)

// Store is an in-memory Storage implementation, sharded by SID.
type Store struct {
	mu         sync.RWMutex
	idx        *index.Index
	samples    map[index.SID][]storage.Sample
	total      int
	MaxSamples int
}

// New creates an empty store backed by idx, the shared label index used
// to resolve matchers to SIDs.
func New(idx *index.Index) *Store {
	return &Store{
		idx:        idx,
		samples:    make(map[index.SID][]storage.Sample),
		MaxSamples: DefaultMaxSamples,
	}
}

// Appender returns an Appender bound to this store. Commit is a no-op:
// every Add takes effect immediately.
func (s *Store) Appender() storage.Appender {
	return &appender{store: s}
}

type appender struct {
	store *Store
}

func (a *appender) Add(ctx context.Context, ls labels.Set, t int64, v float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.store.add(ls, t, v)
}

func (a *appender) Commit() error { return nil }

func (s *Store) add(ls labels.Set, t int64, v float64) error {
	sid := s.idx.AddSeries(ls)

	s.mu.Lock()
	defer s.mu.Unlock()

	max := s.MaxSamples
	if max == 0 {
		max = DefaultMaxSamples
	}
	if s.total+1 > max {
		return ErrSampleLimitExceeded
	}

	pts := s.samples[sid]
	if n := len(pts); n > 0 && pts[n-1].T > t {
		i := sort.Search(n, func(i int) bool { return pts[i].T >= t })
		pts = append(pts, storage.Sample{})
		copy(pts[i+1:], pts[i:])
		pts[i] = storage.Sample{T: t, V: v}
	} else {
		pts = append(pts, storage.Sample{T: t, V: v})
	}
	s.samples[sid] = pts
	s.total++
	return nil
}

// Querier returns a Querier scoped to [mint, maxt].
func (s *Store) Querier(ctx context.Context, mint, maxt int64) (storage.Querier, error) {
	return &querier{store: s, mint: mint, maxt: maxt}, nil
}

// LabelValues returns the distinct values observed for name.
func (s *Store) LabelValues(ctx context.Context, name string) ([]string, error) {
	values := s.idx.LabelValues(name)
	sort.Strings(values)
	return values, nil
}

// Close is a no-op; memstore holds no external resources.
func (s *Store) Close() error { return nil }

// Prune drops every sample older than cutoff (Unix milliseconds) across
// all series, for the retention job. Returns the number of samples
// removed.
func (s *Store) Prune(ctx context.Context, cutoff int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sid, pts := range s.samples {
		i := sort.Search(len(pts), func(i int) bool { return pts[i].T >= cutoff })
		if i == 0 {
			continue
		}
		removed += i
		s.samples[sid] = append([]storage.Sample(nil), pts[i:]...)
	}
	s.total -= removed
	return removed, nil
}

type querier struct {
	store      *Store
	mint, maxt int64
}

func (q *querier) Close() error { return nil }

func (q *querier) Select(ctx context.Context, matchers []*lang.Matcher) (storage.SeriesSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sids, err := q.store.idx.ResolveMatchers(matchers)
	if err != nil {
		return nil, err
	}

	ordered := make([]index.SID, 0, len(sids))
	for sid := range sids {
		ordered = append(ordered, sid)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	series := make([]storage.Series, 0, len(ordered))
	q.store.mu.RLock()
	for _, sid := range ordered {
		ls, ok := q.store.idx.GetLabels(sid)
		if !ok {
			continue
		}
		pts := q.store.samples[sid]
		clipped := clip(pts, q.mint, q.maxt)
		if len(clipped) == 0 {
			continue
		}
		series = append(series, &memSeries{labels: ls, samples: clipped})
	}
	q.store.mu.RUnlock()

	return &memSeriesSet{series: series, idx: -1}, nil
}

func clip(pts []storage.Sample, mint, maxt int64) []storage.Sample {
	lo := sort.Search(len(pts), func(i int) bool { return pts[i].T >= mint })
	hi := sort.Search(len(pts), func(i int) bool { return pts[i].T > maxt })
	if lo >= hi {
		return nil
	}
	out := make([]storage.Sample, hi-lo)
	copy(out, pts[lo:hi])
	return out
}

type memSeries struct {
	labels  labels.Set
	samples []storage.Sample
}

func (s *memSeries) Labels() labels.Set { return s.labels }

func (s *memSeries) Iterator() storage.SeriesIterator {
	return &memIterator{samples: s.samples, pos: -1}
}

type memIterator struct {
	samples []storage.Sample
	pos     int
}

func (it *memIterator) Seek(t int64) bool {
	if it.pos >= 0 && it.pos < len(it.samples) && it.samples[it.pos].T >= t {
		return true
	}
	start := it.pos + 1
	if start < 0 {
		start = 0
	}
	i := sort.Search(len(it.samples)-start, func(i int) bool { return it.samples[start+i].T >= t })
	it.pos = start + i
	return it.pos < len(it.samples)
}

func (it *memIterator) At() storage.Sample { return it.samples[it.pos] }

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.samples)
}

type memSeriesSet struct {
	series []storage.Series
	idx    int
}

func (s *memSeriesSet) Next() bool {
	s.idx++
	return s.idx < len(s.series)
}

func (s *memSeriesSet) At() storage.Series { return s.series[s.idx] }

func (s *memSeriesSet) Err() error { return nil }
