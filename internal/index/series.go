package index

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/nicktill/tinyquery/internal/labels"
)

// SID is a series identifier: a dense, non-negative integer assigned
// monotonically on first registration of a label set.
type SID uint64

// seriesEntry is a registered series: its SID and the label set that
// produced it.
type seriesEntry struct {
	sid    SID
	labels labels.Set
}

// SeriesManager maps SIDs to label sets and back, and deduplicates
// registrations of the same label set via its content hash (tsid).
// Mutated only by the insert path; see Index.AddSeries for the publish
// ordering that keeps readers from ever observing a bit without a
// resolvable labels entry.
type SeriesManager struct {
	mu      sync.RWMutex
	nextSID uint64
	bySID   map[SID]*seriesEntry
	byTSID  map[uint64]*seriesEntry
}

// NewSeriesManager creates an empty series manager.
func NewSeriesManager() *SeriesManager {
	return &SeriesManager{
		bySID:  make(map[SID]*seriesEntry),
		byTSID: make(map[uint64]*seriesEntry),
	}
}

// tsid is the content hash used to detect a previously-seen label set.
func tsid(ls labels.Set) uint64 {
	return xxhash.Sum64String(ls.CanonicalKey())
}

// Lookup returns the SID already registered for ls, if any.
func (m *SeriesManager) Lookup(ls labels.Set) (SID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byTSID[tsid(ls)]
	if !ok {
		return 0, false
	}
	return e.sid, true
}

// register allocates a new SID for ls and publishes it. Called only while
// holding the Index's insert guard, so nextSID allocation and the map
// writes below are serialized with respect to other inserts; concurrent
// readers only ever see a fully-populated entry because it's placed in
// both maps before AddSeries proceeds to set any posting bits.
func (m *SeriesManager) register(ls labels.Set) SID {
	sid := SID(atomic.AddUint64(&m.nextSID, 1) - 1)
	e := &seriesEntry{sid: sid, labels: ls}

	m.mu.Lock()
	m.bySID[sid] = e
	m.byTSID[tsid(ls)] = e
	m.mu.Unlock()

	return sid
}

// Get returns the label set registered for sid.
func (m *SeriesManager) Get(sid SID) (labels.Set, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.bySID[sid]
	if !ok {
		return nil, false
	}
	return e.labels, true
}

// Count returns the number of distinct registered series.
func (m *SeriesManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySID)
}

// LabelValues returns every distinct value observed for name across all
// registered series.
func (m *SeriesManager) LabelValues(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, e := range m.bySID {
		if v, ok := e.labels.Get(name); ok {
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}
