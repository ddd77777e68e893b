package eval

import (
	"context"
	"math"
	"sort"

	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

// elemBinop applies a scalar binary op to a pair of values. keep reports
// whether the sample survives a comparison filter (always true for
// arithmetic ops).
func elemBinop(op lang.BinaryOp, lhs, rhs float64) (value float64, keep bool) {
	switch op {
	case lang.OpAdd:
		return lhs + rhs, true
	case lang.OpSub:
		return lhs - rhs, true
	case lang.OpMul:
		return lhs * rhs, true
	case lang.OpDiv:
		return lhs / rhs, true
	case lang.OpMod:
		return math.Mod(lhs, rhs), true
	case lang.OpPow:
		return math.Pow(lhs, rhs), true
	case lang.OpEQL:
		return lhs, lhs == rhs
	case lang.OpNEQ:
		return lhs, lhs != rhs
	case lang.OpGTR:
		return lhs, lhs > rhs
	case lang.OpLSS:
		return lhs, lhs < rhs
	case lang.OpGTE:
		return lhs, lhs >= rhs
	case lang.OpLTE:
		return lhs, lhs <= rhs
	default:
		return 0, false
	}
}

func (ex *Executor) evalBinary(ctx context.Context, b *lang.BinaryExpr, steps []int64) (*Matrix, error) {
	if b.Op.IsSetOp() {
		return ex.evalSetOp(ctx, b, steps)
	}

	lhs, err := ex.eval(ctx, b.Left, steps)
	if err != nil {
		return nil, err
	}
	rhs, err := ex.eval(ctx, b.Right, steps)
	if err != nil {
		return nil, err
	}

	lVec := b.Left.Type() == lang.ValueVector
	rVec := b.Right.Type() == lang.ValueVector

	switch {
	case !lVec && !rVec:
		return ex.scalarScalar(b, lhs, rhs, steps), nil
	case lVec && !rVec:
		return ex.vectorScalar(b, lhs, rhs, false), nil
	case !lVec && rVec:
		return ex.vectorScalar(b, rhs, lhs, true), nil
	default:
		return ex.vectorVector(b, lhs, rhs), nil
	}
}

func (ex *Executor) scalarScalar(b *lang.BinaryExpr, lhs, rhs *Matrix, steps []int64) *Matrix {
	n := len(lhs.Series[0].Points)
	pts := make([]Sample, n)
	for i := 0; i < n; i++ {
		lv := scalarAt(lhs, i)
		rv := scalarAt(rhs, i)
		v, keep := elemBinop(b.Op, lv, rv)
		if b.Op.IsComparison() && b.Bool {
			if keep {
				v = 1
			} else {
				v = 0
			}
		}
		pts[i] = Sample{T: lhs.Series[0].Points[i].T, V: v}
	}
	return &Matrix{Series: []Series{{Points: pts}}}
}

// vectorScalar applies the scalar matrix's per-step value to every sample
// of the vector matrix. swapped indicates the original expression had the
// scalar on the left (so comparisons read in the original lhs OP rhs
// order).
func (ex *Executor) vectorScalar(b *lang.BinaryExpr, vec, scalar *Matrix, swapped bool) *Matrix {
	out := &Matrix{}
	for _, s := range vec.Series {
		scalarIdx := 0
		pts := make([]Sample, 0, len(s.Points))
		for _, p := range s.Points {
			sv, ok := sampleAt(scalar.Series[0].Points, &scalarIdx, p.T)
			if !ok {
				continue
			}
			lv, rv := p.V, sv.V
			if swapped {
				lv, rv = rv, lv
			}
			v, keep := elemBinop(b.Op, lv, rv)
			if b.Op.IsComparison() {
				if b.Bool {
					if keep {
						v = 1
					} else {
						v = 0
					}
					keep = true
				} else if !keep {
					continue
				} else {
					v = p.V
				}
			}
			pts = append(pts, Sample{T: p.T, V: v})
		}
		if len(pts) == 0 {
			continue
		}
		lbl := s.Labels
		if !b.Op.IsComparison() || b.Bool {
			lbl = dropMetricName(lbl)
		}
		out.Series = append(out.Series, Series{Labels: lbl, Points: pts})
	}
	return out
}

// vectorVector pairs lhs and rhs series by matching key, per step, and
// combines matched pairs. Grouping (group_left/group_right) is resolved
// by building the "one" side's lookup once and indexing into it for every
// "many" side series.
func (ex *Executor) vectorVector(b *lang.BinaryExpr, lhs, rhs *Matrix) *Matrix {
	vm := b.Matching
	if vm == nil {
		vm = &lang.VectorMatching{}
	}

	manyIsLeft := !vm.GroupRight
	many, one := lhs, rhs
	if !manyIsLeft {
		many, one = rhs, lhs
	}

	oneIdx := make([]int, len(one.Series))
	manyIdx := make([]int, len(many.Series))

	type groupAcc struct {
		labels labels.Set
		points []Sample
	}
	groups := make(map[string]*groupAcc)
	var order []string

	steps := unionSteps(lhs, rhs)
	for _, ts := range steps {
		oneAtTS := make(map[string]struct {
			v   float64
			ls  labels.Set
			has bool
		}, len(one.Series))
		for i := range one.Series {
			if v, ok := sampleAt(one.Series[i].Points, &oneIdx[i], ts); ok {
				key := matchingKey(one.Series[i].Labels, vm)
				oneAtTS[key] = struct {
					v   float64
					ls  labels.Set
					has bool
				}{v.V, one.Series[i].Labels, true}
			}
		}

		for i := range many.Series {
			mv, ok := sampleAt(many.Series[i].Points, &manyIdx[i], ts)
			if !ok {
				continue
			}
			key := matchingKey(many.Series[i].Labels, vm)
			ov, found := oneAtTS[key]
			if !found {
				continue
			}

			lv, rv := mv.V, ov.v
			if !manyIsLeft {
				lv, rv = ov.v, mv.V
			}
			v, keep := elemBinop(b.Op, lv, rv)
			if b.Op.IsComparison() {
				if b.Bool {
					if keep {
						v = 1
					} else {
						v = 0
					}
				} else if !keep {
					continue
				} else {
					v = lv
				}
			}

			outLabels := dropMetricName(many.Series[i].Labels)
			if len(vm.Include) > 0 {
				m := outLabels.Map()
				for _, name := range vm.Include {
					if iv, ok := ov.ls.Get(name); ok {
						m[name] = iv
					}
				}
				outLabels = labels.New(m)
			}

			gkey := groupKey(outLabels)
			g, ok := groups[gkey]
			if !ok {
				g = &groupAcc{labels: outLabels}
				groups[gkey] = g
				order = append(order, gkey)
			}
			g.points = append(g.points, Sample{T: ts, V: v})
		}
	}

	out := &Matrix{Series: make([]Series, 0, len(order))}
	for _, key := range order {
		g := groups[key]
		out.Series = append(out.Series, Series{Labels: g.labels, Points: g.points})
	}
	return out
}

func matchingKey(ls labels.Set, vm *lang.VectorMatching) string {
	on := make(map[string]bool, len(vm.Labels))
	for _, n := range vm.Labels {
		on[n] = true
	}
	var kept labels.Set
	for _, l := range ls {
		if l.Name == labels.MetricName {
			continue
		}
		use := !vm.On
		if vm.On {
			use = on[l.Name]
		} else {
			use = !on[l.Name]
		}
		if use {
			kept = append(kept, l)
		}
	}
	return groupKey(kept.Sorted())
}

func unionSteps(a, b *Matrix) []int64 {
	seen := make(map[int64]struct{})
	for _, s := range a.Series {
		for _, p := range s.Points {
			seen[p.T] = struct{}{}
		}
	}
	for _, s := range b.Series {
		for _, p := range s.Points {
			seen[p.T] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// evalSetOp implements and/unless/or, which operate on label-set presence
// rather than values.
func (ex *Executor) evalSetOp(ctx context.Context, b *lang.BinaryExpr, steps []int64) (*Matrix, error) {
	lhs, err := ex.eval(ctx, b.Left, steps)
	if err != nil {
		return nil, err
	}
	rhs, err := ex.eval(ctx, b.Right, steps)
	if err != nil {
		return nil, err
	}

	vm := b.Matching
	if vm == nil {
		vm = &lang.VectorMatching{}
	}

	rhsKeys := make(map[string]bool)
	lhsIdx := make([]int, len(lhs.Series))
	rhsIdx := make([]int, len(rhs.Series))

	allSteps := unionSteps(lhs, rhs)

	type acc struct {
		labels labels.Set
		points []Sample
	}
	groups := make(map[string]*acc)
	var order []string

	for _, ts := range allSteps {
		rhsKeys = make(map[string]bool, len(rhs.Series))
		for i := range rhs.Series {
			if _, ok := sampleAt(rhs.Series[i].Points, &rhsIdx[i], ts); ok {
				rhsKeys[matchingKey(rhs.Series[i].Labels, vm)] = true
			}
		}

		for i := range lhs.Series {
			lv, ok := sampleAt(lhs.Series[i].Points, &lhsIdx[i], ts)
			if !ok {
				continue
			}
			inRHS := rhsKeys[matchingKey(lhs.Series[i].Labels, vm)]

			switch b.Op {
			case lang.OpAnd:
				if !inRHS {
					continue
				}
			case lang.OpUnless:
				if inRHS {
					continue
				}
			case lang.OpOr:
				// handled after this loop
			}

			key := groupKey(lhs.Series[i].Labels)
			g, ok := groups[key]
			if !ok {
				g = &acc{labels: lhs.Series[i].Labels}
				groups[key] = g
				order = append(order, key)
			}
			g.points = append(g.points, Sample{T: ts, V: lv.V})
		}

		if b.Op == lang.OpOr {
			lhsKeys := make(map[string]bool, len(lhs.Series))
			for i := range lhs.Series {
				if _, ok := sampleAt(lhs.Series[i].Points, &lhsIdx[i], ts); ok {
					lhsKeys[matchingKey(lhs.Series[i].Labels, vm)] = true
				}
			}
			for i := range rhs.Series {
				rv, ok := sampleAt(rhs.Series[i].Points, &rhsIdx[i], ts)
				if !ok {
					continue
				}
				if lhsKeys[matchingKey(rhs.Series[i].Labels, vm)] {
					continue
				}
				key := groupKey(rhs.Series[i].Labels)
				g, ok := groups[key]
				if !ok {
					g = &acc{labels: rhs.Series[i].Labels}
					groups[key] = g
					order = append(order, key)
				}
				g.points = append(g.points, Sample{T: ts, V: rv.V})
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
