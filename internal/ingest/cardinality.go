package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/nicktill/tinyquery/internal/config"
	"github.com/nicktill/tinyquery/internal/labels"
)

// ErrCardinalityLimit is returned when the total distinct-series limit
// would be exceeded by a new series.
var ErrCardinalityLimit = fmt.Errorf("cardinality: total series limit exceeded (max %d)", config.MaxUniqueSeries)

// ErrMetricCardinalityLimit is returned when a single metric name's
// distinct-series limit would be exceeded.
var ErrMetricCardinalityLimit = fmt.Errorf("cardinality: per-metric series limit exceeded (max %d)", config.MaxSeriesPerMetric)

// Tracker enforces cardinality limits on newly-seen series. Rather than
// re-deriving a series key from a flat metric map, it is driven by the
// label index's own add-vs-already-registered decision, so it only ever
// counts a series once regardless of how many times the same label set
// is ingested.
type Tracker struct {
	mu sync.Mutex

	seriesCount map[string]int
	totalSeries int

	seriesSeen map[string]time.Time
	lastCleanup time.Time
}

// NewTracker creates an empty cardinality tracker.
func NewTracker() *Tracker {
	return &Tracker{
		seriesCount: make(map[string]int),
		seriesSeen:  make(map[string]time.Time),
		lastCleanup: time.Now(),
	}
}

// CheckNew validates that registering a new series for metric name would
// not exceed either cardinality limit. Call this only when the index has
// not already seen the label set (isNew == true from Index.AddSeries'
// caller perspective); an already-registered series is always allowed.
func (t *Tracker) CheckNew(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cleanupLocked()

	if t.totalSeries >= config.MaxUniqueSeries {
		return ErrCardinalityLimit
	}
	if t.seriesCount[name] >= config.MaxSeriesPerMetric {
		return ErrMetricCardinalityLimit
	}
	return nil
}

// RecordNew marks a freshly-registered series as counted against name's
// cardinality, keyed by its canonical label key so repeated ingests of
// the same series never double-count.
func (t *Tracker) RecordNew(name string, ls labels.Set) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ls.CanonicalKey()
	if _, seen := t.seriesSeen[key]; seen {
		t.seriesSeen[key] = time.Now()
		return
	}
	t.seriesSeen[key] = time.Now()
	t.seriesCount[name]++
	t.totalSeries++
}

// cleanupLocked drops series not touched within config.SeriesRetention,
// run at most once per config.CardinalityCleanup, to bound memory growth
// on a long-running process. Must be called with t.mu held.
func (t *Tracker) cleanupLocked() {
	now := time.Now()
	if now.Sub(t.lastCleanup) < config.CardinalityCleanup {
		return
	}
	t.lastCleanup = now
	cutoff := now.Add(-config.SeriesRetention)

	for key, lastSeen := range t.seriesSeen {
		if lastSeen.Before(cutoff) {
			delete(t.seriesSeen, key)
		}
	}
}

// Stats reports current cardinality usage.
type Stats struct {
	TotalSeries    int     `json:"total_series"`
	UniqueMetrics  int     `json:"unique_metrics"`
	SeriesLimit    int     `json:"series_limit"`
	PerMetricLimit int     `json:"per_metric_limit"`
	UtilizationPct float64 `json:"utilization_percent"`
}

// Stats returns a snapshot of the tracker's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		TotalSeries:    t.totalSeries,
		UniqueMetrics:  len(t.seriesCount),
		SeriesLimit:    config.MaxUniqueSeries,
		PerMetricLimit: config.MaxSeriesPerMetric,
		UtilizationPct: float64(t.totalSeries) / float64(config.MaxUniqueSeries) * 100,
	}
}
