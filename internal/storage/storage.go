// Package storage defines the storage abstraction (C6): the contract a
// query evaluator uses to read and write samples, independent of whatever
// backs it (in-memory, BadgerDB, or anything else). The shape follows the
// Queryable/Querier/SeriesSet/Series/SeriesIterator/Appender split of the
// original query engine's storage contract, adapted to Go idiom: context
// threading on every blocking call and explicit error returns in place of
// virtual dispatch.
package storage

import (
	"context"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

// Sample is a single (timestamp, value) point. Timestamps are Unix
// milliseconds, matching the wire and query-range step units.
type Sample struct {
	T int64
	V float64
}

// SeriesIterator walks a single series' samples in time order.
type SeriesIterator interface {
	// Seek advances to the first sample with timestamp >= t, reporting
	// whether one exists.
	Seek(t int64) bool
	// At returns the sample at the iterator's current position. Valid
	// only after Seek or Next has returned true.
	At() Sample
	// Next advances to the following sample, reporting whether one exists.
	Next() bool
}

// Series is one time series: its label set plus an iterator over its
// stored samples.
type Series interface {
	Labels() labels.Set
	Iterator() SeriesIterator
}

// SeriesSet iterates the series selected by a Querier.Select call.
type SeriesSet interface {
	Next() bool
	At() Series
	Err() error
}

// Querier resolves label matchers to a SeriesSet scoped to the time range
// it was created for.
type Querier interface {
	Select(ctx context.Context, matchers []*lang.Matcher) (SeriesSet, error)
	Close() error
}

// Queryable constructs Queriers and answers label-values lookups.
type Queryable interface {
	Querier(ctx context.Context, mint, maxt int64) (Querier, error)
	LabelValues(ctx context.Context, name string) ([]string, error)
}

// Appender accepts new samples. Add may be called many times before a
// single Commit; implementations that need no batching make Commit a
// no-op.
type Appender interface {
	Add(ctx context.Context, ls labels.Set, t int64, v float64) error
	Commit() error
}

// Storage is a full read/write backend.
type Storage interface {
	Queryable
	Appender() Appender
	Close() error
}
