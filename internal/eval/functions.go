package eval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nicktill/tinyquery/internal/lang"
)

// rangeFunc evaluates a range (matrix-argument) function over one
// series' sample window, given the window's raw points and the
// [mint, maxt] bounds the window was clipped to. ok is false when the
// window has too few points to produce a result.
type rangeFunc func(window []Sample, mint, maxt int64) (value float64, ok bool)

// FuncTable holds the evaluator's actual function implementations,
// separate from internal/lang's parse-time signature table: the parser
// only needs a function's arity and types to type-check a call, while
// the executor needs the behavior. Building this once and passing it
// into NewExecutor keeps evaluation free of any global function registry.
type FuncTable struct {
	rangeFuncs map[string]rangeFunc
}

// NewFuncTable builds the standard function table.
func NewFuncTable() *FuncTable {
	return &FuncTable{
		rangeFuncs: map[string]rangeFunc{
			"rate":     extrapolatedRate(true, true),
			"increase": extrapolatedRate(true, false),
			"delta":    extrapolatedRate(false, false),
		},
	}
}

// extrapolatedRate implements the rate/increase/delta family: it sums the
// raw delta between consecutive samples (correcting for counter resets
// when isCounter is set), then extrapolates that delta to cover the full
// requested window based on how far the first and last samples fall from
// the window's edges. When isRate is set the extrapolated delta is
// divided by the window length in seconds.
func extrapolatedRate(isCounter, isRate bool) rangeFunc {
	return func(window []Sample, mint, maxt int64) (float64, bool) {
		if len(window) < 2 {
			return 0, false
		}

		var counterCorrection float64
		lastValue := window[0].V
		for _, s := range window {
			if isCounter && s.V < lastValue {
				counterCorrection += lastValue
			}
			lastValue = s.V
		}
		resultValue := lastValue - window[0].V + counterCorrection

		dtStart := float64(window[0].T-mint) / 1000.0
		dtEnd := float64(maxt-window[len(window)-1].T) / 1000.0
		dtSampled := float64(window[len(window)-1].T-window[0].T) / 1000.0
		avgDT := dtSampled / float64(len(window)-1)

		if isCounter && resultValue > 0 && window[0].V >= 0 {
			dtZero := dtSampled * (window[0].V / resultValue)
			if dtZero < dtStart {
				dtStart = dtZero
			}
		}

		extrapolationThreshold := avgDT * 1.1
		extrapolationDT := dtSampled

		if dtStart < extrapolationThreshold {
			extrapolationDT += dtStart
		} else {
			extrapolationDT += avgDT / 2
		}
		if dtEnd < extrapolationThreshold {
			extrapolationDT += dtEnd
		} else {
			extrapolationDT += avgDT / 2
		}

		resultValue *= extrapolationDT / dtSampled
		if isRate {
			resultValue /= float64(maxt-mint) / 1000.0
		}
		return resultValue, true
	}
}

func (ex *Executor) evalFunctionCall(ctx context.Context, fc *lang.FunctionCall, steps []int64) (*Matrix, error) {
	argTypes, ok := lang.FunctionArgTypes(fc.Name)
	if !ok {
		return nil, &EvalError{Msg: fmt.Sprintf("unknown function %q", fc.Name)}
	}

	matrixIdx := -1
	for i, t := range argTypes {
		if t == lang.ValueMatrix {
			matrixIdx = i
			break
		}
	}
	if matrixIdx >= 0 {
		return ex.evalRangeFunction(ctx, fc, matrixIdx, steps)
	}
	return ex.evalPlainFunction(ctx, fc, steps)
}

func (ex *Executor) evalRangeFunction(ctx context.Context, fc *lang.FunctionCall, matrixIdx int, steps []int64) (*Matrix, error) {
	impl, ok := ex.funcs.rangeFuncs[fc.Name]
	if !ok {
		return nil, &EvalError{Msg: fmt.Sprintf("function %q has no range implementation", fc.Name)}
	}

	switch arg := fc.Args[matrixIdx].(type) {
	case *lang.MatrixSelector:
		return ex.evalRangeFunctionOverSelector(ctx, impl, arg, steps)
	case *lang.SubqueryExpr:
		return ex.evalRangeFunctionOverSubquery(ctx, impl, arg, steps)
	default:
		return nil, &EvalError{Msg: fmt.Sprintf("%s: range argument must be a [range] selector", fc.Name)}
	}
}

// evalRangeFunctionOverSelector feeds impl the raw storage samples under a
// plain [range] matrix selector, one window per step.
func (ex *Executor) evalRangeFunctionOverSelector(ctx context.Context, impl rangeFunc, msel *lang.MatrixSelector, steps []int64) (*Matrix, error) {
	rangeMs := msel.Range.Milliseconds()
	offsetMs := msel.Offset.Milliseconds()
	mint := ex.start - offsetMs - rangeMs
	maxt := ex.end - offsetMs

	raw, err := ex.rawSeries(ctx, msel.Vector, mint, maxt)
	if err != nil {
		return nil, err
	}

	out := &Matrix{}
	for _, rs := range raw {
		pts := make([]Sample, 0, len(steps))
		for _, ts := range steps {
			stepMaxt := ts - offsetMs
			stepMint := stepMaxt - rangeMs
			window := windowOf(rs.points, stepMint, stepMaxt)
			v, ok := impl(window, stepMint, stepMaxt)
			if !ok {
				continue
			}
			pts = append(pts, Sample{T: ts, V: v})
		}
		if len(pts) == 0 {
			continue
		}
		out.Series = append(out.Series, Series{Labels: dropMetricName(rs.labels), Points: pts})
	}
	return out, nil
}

// evalRangeFunctionOverSubquery feeds impl the points produced by
// re-evaluating sq.Expr as its own nested range query over each outer
// step's [ts-Range, ts] window (stepped by sq.Step), rather than the raw
// storage samples a plain matrix selector reads directly -- a subquery's
// "window" is the inner expression's own step grid, not individual
// samples, so the inner executor has to be driven once per outer step.
func (ex *Executor) evalRangeFunctionOverSubquery(ctx context.Context, impl rangeFunc, sq *lang.SubqueryExpr, steps []int64) (*Matrix, error) {
	innerStep := sq.Step.Milliseconds()
	if innerStep <= 0 {
		innerStep = ex.step
	}
	if innerStep <= 0 {
		innerStep = 60_000
	}
	rangeMs := sq.Range.Milliseconds()
	offsetMs := sq.Offset.Milliseconds()

	groups := make(map[string]*Series)
	var order []string

	for _, ts := range steps {
		maxt := ts - offsetMs
		mint := maxt - rangeMs

		inner := NewExecutor(ex.queryable, ex.funcs, mint, maxt, innerStep)
		m, err := inner.Eval(ctx, sq.Expr)
		if err != nil {
			return nil, err
		}

		for _, s := range m.Series {
			if len(s.Points) == 0 {
				continue
			}
			v, ok := impl(s.Points, mint, maxt)
			if !ok {
				continue
			}
			key := groupKey(s.Labels)
			g, exists := groups[key]
			if !exists {
				g = &Series{Labels: dropMetricName(s.Labels)}
				groups[key] = g
				order = append(order, key)
			}
			g.Points = append(g.Points, Sample{T: ts, V: v})
		}
	}

	out := &Matrix{Series: make([]Series, 0, len(order))}
	for _, key := range order {
		out.Series = append(out.Series, *groups[key])
	}
	return out, nil
}

func (ex *Executor) evalPlainFunction(ctx context.Context, fc *lang.FunctionCall, steps []int64) (*Matrix, error) {
	switch fc.Name {
	case "time":
		return newScalarMatrix(steps, func(ts int64) float64 { return float64(ts) / 1000.0 }), nil

	case "vector":
		arg, err := ex.eval(ctx, fc.Args[0], steps)
		if err != nil {
			return nil, err
		}
		pts := make([]Sample, len(steps))
		for i, ts := range steps {
			pts[i] = Sample{T: ts, V: scalarAt(arg, i)}
		}
		return &Matrix{Series: []Series{{Points: pts}}}, nil

	case "scalar":
		arg, err := ex.eval(ctx, fc.Args[0], steps)
		if err != nil {
			return nil, err
		}
		idx := 0
		if len(arg.Series) != 1 {
			return newScalarMatrix(steps, func(int64) float64 { return math.NaN() }), nil
		}
		pts := make([]Sample, 0, len(steps))
		for _, ts := range steps {
			v, ok := sampleAt(arg.Series[0].Points, &idx, ts)
			value := math.NaN()
			if ok {
				value = v.V
			}
			pts = append(pts, Sample{T: ts, V: value})
		}
		return &Matrix{Series: []Series{{Points: pts}}}, nil

	case "abs", "ceil", "floor", "round":
		arg, err := ex.eval(ctx, fc.Args[0], steps)
		if err != nil {
			return nil, err
		}
		return mapVector(arg, unaryMathFunc(fc.Name)), nil

	case "clamp_min", "clamp_max":
		arg, err := ex.eval(ctx, fc.Args[0], steps)
		if err != nil {
			return nil, err
		}
		bound, err := ex.eval(ctx, fc.Args[1], steps)
		if err != nil {
			return nil, err
		}
		return clampVector(arg, bound, fc.Name == "clamp_min"), nil

	case "sort", "sort_desc":
		arg, err := ex.eval(ctx, fc.Args[0], steps)
		if err != nil {
			return nil, err
		}
		return sortVector(arg, fc.Name == "sort_desc"), nil

	default:
		return nil, &EvalError{Msg: fmt.Sprintf("function %q is not implemented", fc.Name)}
	}
}

func unaryMathFunc(name string) func(float64) float64 {
	switch name {
	case "abs":
		return math.Abs
	case "ceil":
		return math.Ceil
	case "floor":
		return math.Floor
	case "round":
		return math.Round
	default:
		return func(v float64) float64 { return v }
	}
}

func mapVector(m *Matrix, f func(float64) float64) *Matrix {
	out := &Matrix{Series: make([]Series, len(m.Series))}
	for i, s := range m.Series {
		pts := make([]Sample, len(s.Points))
		for j, p := range s.Points {
			pts[j] = Sample{T: p.T, V: f(p.V)}
		}
		out.Series[i] = Series{Labels: dropMetricName(s.Labels), Points: pts}
	}
	return out
}

func clampVector(m, bound *Matrix, isMin bool) *Matrix {
	out := &Matrix{Series: make([]Series, 0, len(m.Series))}
	for _, s := range m.Series {
		idx := 0
		pts := make([]Sample, 0, len(s.Points))
		for _, p := range s.Points {
			b, ok := sampleAt(bound.Series[0].Points, &idx, p.T)
			if !ok {
				continue
			}
			v := p.V
			if isMin && v < b.V {
				v = b.V
			}
			if !isMin && v > b.V {
				v = b.V
			}
			pts = append(pts, Sample{T: p.T, V: v})
		}
		out.Series = append(out.Series, Series{Labels: dropMetricName(s.Labels), Points: pts})
	}
	return out
}

// sortVector reorders series by their last sample's value. Meaningful for
// instant queries, where every series carries exactly one point; for a
// range query the ordering is only a display convenience and is taken
// from each series' final step.
func sortVector(m *Matrix, desc bool) *Matrix {
	out := &Matrix{Series: append([]Series(nil), m.Series...)}
	sort.SliceStable(out.Series, func(i, j int) bool {
		vi := lastValue(out.Series[i])
		vj := lastValue(out.Series[j])
		if desc {
			return vi > vj
		}
		return vi < vj
	})
	return out
}

func lastValue(s Series) float64 {
	if len(s.Points) == 0 {
		return math.NaN()
	}
	return s.Points[len(s.Points)-1].V
}
