package eval

import (
	"context"
	"fmt"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/storage"
)

// EvalError reports a runtime evaluation failure: a condition the type
// checker cannot catch up front (a missing topk/bottomk/quantile
// parameter, an unknown function reaching execution, and similar).
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return "eval error: " + e.Msg }

// Executor walks a type-checked AST against a storage.Queryable and
// produces a Matrix over the query's step grid. One Executor serves one
// query; it carries no state across calls to Eval.
type Executor struct {
	queryable storage.Queryable
	funcs     *FuncTable
	start     int64 // ms, inclusive
	end       int64 // ms, inclusive
	step      int64 // ms; 0 means an instant query (single step at start)
}

// NewExecutor builds an Executor over [start, end] stepped by step
// (all in Unix milliseconds). step of 0 evaluates a single instant at
// start.
func NewExecutor(q storage.Queryable, funcs *FuncTable, start, end, step int64) *Executor {
	return &Executor{queryable: q, funcs: funcs, start: start, end: end, step: step}
}

// Steps returns the query's evaluation timestamps in ascending order.
func (ex *Executor) Steps() []int64 {
	if ex.step <= 0 || ex.start == ex.end {
		return []int64{ex.start}
	}
	n := int((ex.end-ex.start)/ex.step) + 1
	out := make([]int64, 0, n)
	for ts := ex.start; ts <= ex.end; ts += ex.step {
		out = append(out, ts)
	}
	return out
}

// Eval evaluates expr over the executor's full step grid.
func (ex *Executor) Eval(ctx context.Context, expr lang.Expr) (*Matrix, error) {
	return ex.eval(ctx, expr, ex.Steps())
}

func (ex *Executor) eval(ctx context.Context, expr lang.Expr, steps []int64) (*Matrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch e := expr.(type) {
	case *lang.NumberLiteral:
		return newScalarMatrix(steps, func(int64) float64 { return e.Value }), nil

	case *lang.StringLiteral:
		// String literals never flow through numeric evaluation; a caller
		// that needs the literal (count_values' label name) reads the AST
		// node directly instead of going through eval.
		return &Matrix{}, nil

	case *lang.VectorSelector:
		return ex.evalVectorSelector(ctx, e, steps)

	case *lang.ParenExpr:
		return ex.eval(ctx, e.Expr, steps)

	case *lang.UnaryExpr:
		return ex.evalUnary(ctx, e, steps)

	case *lang.BinaryExpr:
		return ex.evalBinary(ctx, e, steps)

	case *lang.AggregateExpr:
		return ex.evalAggregate(ctx, e, steps)

	case *lang.FunctionCall:
		return ex.evalFunctionCall(ctx, e, steps)

	case *lang.SubqueryExpr:
		return nil, &EvalError{Msg: "subquery can only appear as a function argument"}

	case *lang.MatrixSelector:
		return nil, &EvalError{Msg: "matrix selector can only appear as a function argument"}

	default:
		return nil, &EvalError{Msg: fmt.Sprintf("unsupported expression type %T", expr)}
	}
}

func (ex *Executor) evalUnary(ctx context.Context, u *lang.UnaryExpr, steps []int64) (*Matrix, error) {
	inner, err := ex.eval(ctx, u.Expr, steps)
	if err != nil {
		return nil, err
	}
	if !u.Neg {
		return inner, nil
	}

	out := &Matrix{Series: make([]Series, len(inner.Series))}
	for i, s := range inner.Series {
		pts := make([]Sample, len(s.Points))
		for j, p := range s.Points {
			pts[j] = Sample{T: p.T, V: -p.V}
		}
		out.Series[i] = Series{Labels: dropMetricName(s.Labels), Points: pts}
	}
	return out, nil
}

// dropMetricName returns ls with __name__ removed, matching PromQL's
// convention that arithmetic and unary results are no longer the named
// metric they were computed from.
func dropMetricName(ls labels.Set) labels.Set {
	return ls.Without(labels.MetricName)
}
