package eval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

type labeledValue struct {
	labels labels.Set
	value  float64
}

func (ex *Executor) evalAggregate(ctx context.Context, a *lang.AggregateExpr, steps []int64) (*Matrix, error) {
	vec, err := ex.eval(ctx, a.Expr, steps)
	if err != nil {
		return nil, err
	}

	var paramMatrix *Matrix
	var countValuesLabel string
	switch a.Op {
	case "topk", "bottomk", "quantile":
		if a.Param == nil {
			return nil, &EvalError{Msg: fmt.Sprintf("%s: missing parameter", a.Op)}
		}
		paramMatrix, err = ex.eval(ctx, a.Param, steps)
		if err != nil {
			return nil, err
		}
	case "count_values":
		sl, ok := a.Param.(*lang.StringLiteral)
		if !ok {
			return nil, &EvalError{Msg: "count_values: label name must be a string literal"}
		}
		countValuesLabel = sl.Value
	}

	groupingSet := make(map[string]bool, len(a.Grouping))
	for _, g := range a.Grouping {
		groupingSet[g] = true
	}

	idxs := make([]int, len(vec.Series))
	paramIdx := 0

	type outGroup struct {
		labels labels.Set
		points []Sample
	}
	groups := make(map[string]*outGroup)
	var order []string

	appendPoint := func(ls labels.Set, ts int64, v float64) {
		key := groupKey(ls)
		g, ok := groups[key]
		if !ok {
			g = &outGroup{labels: ls}
			groups[key] = g
			order = append(order, key)
		}
		g.points = append(g.points, Sample{T: ts, V: v})
	}

	for _, ts := range steps {
		var samples []labeledValue
		for i := range vec.Series {
			if v, ok := sampleAt(vec.Series[i].Points, &idxs[i], ts); ok {
				samples = append(samples, labeledValue{labels: vec.Series[i].Labels, value: v.V})
			}
		}
		if len(samples) == 0 {
			continue
		}

		var param float64
		if paramMatrix != nil {
			if pv, ok := sampleAt(paramMatrix.Series[0].Points, &paramIdx, ts); ok {
				param = pv.V
			}
		}

		byGroup := make(map[string][]labeledValue)
		groupLabels := make(map[string]labels.Set)
		for _, s := range samples {
			proj := projectedLabels(s.labels, groupingSet, a.Without)
			key := groupKey(proj)
			byGroup[key] = append(byGroup[key], s)
			groupLabels[key] = proj
		}

		for key, members := range byGroup {
			proj := groupLabels[key]
			switch a.Op {
			case "sum":
				var total float64
				for _, m := range members {
					total += m.value
				}
				appendPoint(proj, ts, total)

			case "avg":
				var mean float64
				for i, m := range members {
					mean += (m.value - mean) / float64(i+1)
				}
				appendPoint(proj, ts, mean)

			case "min":
				v := members[0].value
				for _, m := range members[1:] {
					if m.value < v {
						v = m.value
					}
				}
				appendPoint(proj, ts, v)

			case "max":
				v := members[0].value
				for _, m := range members[1:] {
					if m.value > v {
						v = m.value
					}
				}
				appendPoint(proj, ts, v)

			case "count":
				appendPoint(proj, ts, float64(len(members)))

			case "count_values":
				counts := make(map[string]int)
				for _, m := range members {
					counts[formatValue(m.value)]++
				}
				for val, count := range counts {
					m := proj.Map()
					m[countValuesLabel] = val
					appendPoint(labels.New(m), ts, float64(count))
				}

			case "stddev", "stdvar":
				var mean, m2 float64
				for i, m := range members {
					delta := m.value - mean
					mean += delta / float64(i+1)
					m2 += delta * (m.value - mean)
				}
				variance := m2 / float64(len(members))
				if a.Op == "stddev" {
					appendPoint(proj, ts, math.Sqrt(variance))
				} else {
					appendPoint(proj, ts, variance)
				}

			case "topk", "bottomk":
				sorted := append([]labeledValue(nil), members...)
				sort.SliceStable(sorted, func(i, j int) bool {
					if a.Op == "topk" {
						return sorted[i].value > sorted[j].value
					}
					return sorted[i].value < sorted[j].value
				})
				k := int(param)
				if k > len(sorted) {
					k = len(sorted)
				}
				for _, m := range sorted[:k] {
					appendPoint(m.labels, ts, m.value)
				}

			case "quantile":
				appendPoint(proj, ts, quantile(members, param))

			default:
				return nil, &EvalError{Msg: fmt.Sprintf("unknown aggregation operator %q", a.Op)}
			}
		}
	}

	out := &Matrix{Series: make([]Series, 0, len(order))}
	for _, key := range order {
		g := groups[key]
		out.Series = append(out.Series, Series{Labels: g.labels, Points: g.points})
	}
	return out, nil
}

// projectedLabels returns the label subset an aggregation's output series
// carries: the named grouping labels (by), or everything except them
// (without). The metric name is always dropped, since an aggregate's
// result is no longer the input metric.
func projectedLabels(ls labels.Set, grouping map[string]bool, without bool) labels.Set {
	var kept labels.Set
	for _, l := range ls {
		if l.Name == labels.MetricName {
			continue
		}
		in := grouping[l.Name]
		if without {
			if !in {
				kept = append(kept, l)
			}
		} else if in {
			kept = append(kept, l)
		}
	}
	return kept.Sorted()
}

// quantile computes the q-quantile of members' values via linear
// interpolation between order statistics, matching the rank formula
// q * (n-1) with fractional-rank interpolation between its floor and
// ceiling.
func quantile(members []labeledValue, q float64) float64 {
	if len(members) == 0 {
		return math.NaN()
	}
	values := make([]float64, len(members))
	for i, m := range members {
		values[i] = m.value
	}
	sort.Float64s(values)

	if q < 0 {
		return math.Inf(-1)
	}
	if q > 1 {
		return math.Inf(1)
	}
	if len(values) == 1 {
		return values[0]
	}

	rank := q * float64(len(values)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(values) {
		upper = len(values) - 1
	}
	weight := rank - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}
