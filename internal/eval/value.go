// Package eval implements the range evaluator (C7): it walks a type
// checked query AST and produces a fully materialized result over the
// query's time grid, one step at a time.
package eval

import (
	"sort"

	"github.com/nicktill/tinyquery/internal/labels"
)

// Sample is a single (timestamp millis, value) point inside a Matrix.
type Sample struct {
	T int64
	V float64
}

// Series is one label set's samples across the query's step grid. For a
// vector selector a Series holds one point per step where a raw sample
// existed at exactly that timestamp; for scalar results it holds one
// point per step with the carrying value. A string literal evaluates to
// an empty Matrix.
type Series struct {
	Labels labels.Set
	Points []Sample
}

// Matrix is the evaluator's universal intermediate value: every AST node,
// scalar or vector or matrix-typed, evaluates to one. A scalar result is
// a Matrix with a single Series carrying no labels.
type Matrix struct {
	Series []Series
}

// IsScalar reports whether m looks like a scalar result: exactly one
// series with no labels.
func (m *Matrix) IsScalar() bool {
	return len(m.Series) == 1 && len(m.Series[0].Labels) == 0
}

// groupKey builds the grouping key used both for series deduplication
// across steps and for vector matching: labels.Set.CanonicalKey already
// gives a collision-resistant length-prefixed encoding, so grouping reuses
// it instead of rolling its own delimiter-based key.
func groupKey(ls labels.Set) string {
	return ls.CanonicalKey()
}

// sampleAt returns the sample in pts with timestamp exactly ts, advancing
// *idx to just past it. Unlike a naive "check the next point and stop"
// cursor, it first skips every point strictly older than ts so a step with
// no matching point at ts never leaves the cursor stuck behind future
// steps.
func sampleAt(pts []Sample, idx *int, ts int64) (Sample, bool) {
	j := *idx
	for j < len(pts) && pts[j].T < ts {
		j++
	}
	*idx = j
	if j < len(pts) && pts[j].T == ts {
		return pts[j], true
	}
	return Sample{}, false
}

// windowOf returns the subslice of pts with mint <= t <= maxt, given pts is
// sorted ascending by time.
func windowOf(pts []Sample, mint, maxt int64) []Sample {
	lo := sort.Search(len(pts), func(i int) bool { return pts[i].T >= mint })
	hi := sort.Search(len(pts), func(i int) bool { return pts[i].T > maxt })
	if lo >= hi {
		return nil
	}
	return pts[lo:hi]
}

// scalarAt returns the scalar matrix's value at step index i (every
// scalar Series carries exactly one point per step).
func scalarAt(m *Matrix, i int) float64 {
	if len(m.Series) == 0 || i >= len(m.Series[0].Points) {
		return 0
	}
	return m.Series[0].Points[i].V
}

func newScalarMatrix(steps []int64, value func(ts int64) float64) *Matrix {
	pts := make([]Sample, len(steps))
	for i, ts := range steps {
		pts[i] = Sample{T: ts, V: value(ts)}
	}
	return &Matrix{Series: []Series{{Points: pts}}}
}
