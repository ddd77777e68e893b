package eval

import (
	"context"
	"fmt"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/storage"
)

// evalVectorSelector resolves sel against storage and samples each
// matching series once per step, keeping only steps with a raw sample at
// exactly that timestamp. There is no interpolation or staleness lookback:
// a step with no sample at its timestamp contributes nothing for that
// series, matching the exact-seek selection the evaluator is grounded on.
func (ex *Executor) evalVectorSelector(ctx context.Context, sel *lang.VectorSelector, steps []int64) (*Matrix, error) {
	offsetMs := sel.Offset.Milliseconds()
	mint := ex.start - offsetMs
	maxt := ex.end - offsetMs

	raw, err := ex.rawSeries(ctx, sel, mint, maxt)
	if err != nil {
		return nil, err
	}

	var out Matrix
	for _, rs := range raw {
		pts := make([]Sample, 0, len(steps))
		idx := 0
		for _, ts := range steps {
			shifted := ts - offsetMs
			if sample, ok := sampleAt(rs.points, &idx, shifted); ok {
				pts = append(pts, Sample{T: ts, V: sample.V})
			}
		}
		if len(pts) == 0 {
			continue
		}
		out.Series = append(out.Series, Series{Labels: rs.labels, Points: pts})
	}
	return &out, nil
}

// rawSeriesData holds one series' full raw sample slice, unaligned to any
// step grid. Used by matrix-selector and function evaluation, which need
// entire windows rather than single points per step.
type rawSeriesData struct {
	labels labels.Set
	points []Sample
}

// rawSeries resolves sel's matchers and returns every matching series'
// sample slice within [mint, maxt].
func (ex *Executor) rawSeries(ctx context.Context, sel *lang.VectorSelector, mint, maxt int64) ([]rawSeriesData, error) {
	q, err := ex.queryable.Querier(ctx, mint, maxt)
	if err != nil {
		return nil, fmt.Errorf("eval: querier: %w", err)
	}
	defer q.Close()

	set, err := q.Select(ctx, sel.Matchers)
	if err != nil {
		return nil, fmt.Errorf("eval: select: %w", err)
	}

	var out []rawSeriesData
	for set.Next() {
		s := set.At()
		out = append(out, rawSeriesData{
			labels: s.Labels(),
			points: collectIterator(s.Iterator(), mint),
		})
	}
	if err := set.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func collectIterator(it storage.SeriesIterator, mint int64) []Sample {
	var pts []Sample
	if !it.Seek(mint) {
		return nil
	}
	pts = append(pts, toSample(it.At()))
	for it.Next() {
		pts = append(pts, toSample(it.At()))
	}
	return pts
}

func toSample(s storage.Sample) Sample {
	return Sample{T: s.T, V: s.V}
}
