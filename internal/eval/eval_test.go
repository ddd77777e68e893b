package eval_test

import (
	"context"
	"testing"

	"github.com/nicktill/tinyquery/internal/eval"
	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/storage"
	"github.com/nicktill/tinyquery/internal/storage/memstore"
)

func newFixture(t *testing.T) (*index.Index, storage.Storage) {
	t.Helper()
	idx := index.NewIndex(index.NewPageCache())
	store := memstore.New(idx)
	return idx, store
}

func push(t *testing.T, store storage.Storage, name string, extra map[string]string, points map[int64]float64) {
	t.Helper()
	m := map[string]string{"__name__": name}
	for k, v := range extra {
		m[k] = v
	}
	ls := labels.New(m)
	app := store.Appender()
	for ts, v := range points {
		if err := app.Add(context.Background(), ls, ts, v); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := app.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func evalQuery(t *testing.T, store storage.Storage, query string, start, end, step int64) *eval.Matrix {
	t.Helper()
	expr, err := lang.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	if err := lang.TypeCheck(expr); err != nil {
		t.Fatalf("TypeCheck(%q): %v", query, err)
	}
	ex := eval.NewExecutor(store, eval.NewFuncTable(), start, end, step)
	m, err := ex.Eval(context.Background(), expr)
	if err != nil {
		t.Fatalf("Eval(%q): %v", query, err)
	}
	return m
}

func TestEvalVectorSelectorInstant(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "cpu", map[string]string{"host": "a"}, map[int64]float64{1000: 42})

	m := evalQuery(t, store, `cpu{host="a"}`, 1000, 1000, 0)
	if len(m.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(m.Series))
	}
	if len(m.Series[0].Points) != 1 || m.Series[0].Points[0].V != 42 {
		t.Fatalf("unexpected points: %+v", m.Series[0].Points)
	}
}

func TestEvalBinaryArithmeticVectorScalar(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "cpu", map[string]string{"host": "a"}, map[int64]float64{1000: 10})

	m := evalQuery(t, store, `cpu{host="a"} * 2`, 1000, 1000, 0)
	if len(m.Series) != 1 || m.Series[0].Points[0].V != 20 {
		t.Fatalf("expected cpu*2 == 20, got %+v", m.Series)
	}
}

func TestEvalAggregateSum(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "cpu", map[string]string{"host": "a"}, map[int64]float64{1000: 10})
	push(t, store, "cpu", map[string]string{"host": "b"}, map[int64]float64{1000: 30})

	m := evalQuery(t, store, `sum(cpu)`, 1000, 1000, 0)
	if len(m.Series) != 1 {
		t.Fatalf("expected a single summed series, got %d", len(m.Series))
	}
	if m.Series[0].Points[0].V != 40 {
		t.Fatalf("expected sum == 40, got %v", m.Series[0].Points[0].V)
	}
}

func TestEvalRateOverCounter(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "requests_total", map[string]string{"host": "a"}, map[int64]float64{
		0:      0,
		60000:  60,
		120000: 120,
	})

	m := evalQuery(t, store, `rate(requests_total[2m])`, 120000, 120000, 0)
	if len(m.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(m.Series))
	}
	got := m.Series[0].Points[0].V
	if got < 0.9 || got > 1.1 {
		t.Fatalf("expected rate() ~= 1 request/sec, got %v", got)
	}
}

func TestEvalVectorMatchingOnLabels(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "requests", map[string]string{"job": "api", "instance": "1"}, map[int64]float64{1000: 5})
	push(t, store, "errors", map[string]string{"job": "api", "instance": "1"}, map[int64]float64{1000: 1})

	m := evalQuery(t, store, `errors / on(job) requests`, 1000, 1000, 0)
	if len(m.Series) != 1 {
		t.Fatalf("expected 1 matched series, got %d", len(m.Series))
	}
	if m.Series[0].Points[0].V != 0.2 {
		t.Fatalf("expected errors/requests == 0.2, got %v", m.Series[0].Points[0].V)
	}
}

func TestEvalRateOverSubquery(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "requests_total", map[string]string{"host": "a"}, map[int64]float64{
		0:    0,
		1000: 1,
		2000: 2,
		3000: 3,
		4000: 4,
	})

	m := evalQuery(t, store, `rate(requests_total[4s:1s])`, 4000, 4000, 0)
	if len(m.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(m.Series))
	}
	got := m.Series[0].Points[0].V
	if got < 0.9 || got > 1.1 {
		t.Fatalf("expected rate() over subquery ~= 1 request/sec, got %v", got)
	}
}

func TestEvalTopKRetainsMetricName(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "http", map[string]string{"code": "200"}, map[int64]float64{1000: 1})
	push(t, store, "http", map[string]string{"code": "500"}, map[int64]float64{1000: 2})

	m := evalQuery(t, store, `topk(1, http)`, 1000, 1000, 0)
	if len(m.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(m.Series))
	}
	s := m.Series[0]
	if s.Points[0].V != 2 {
		t.Fatalf("expected the code=500 series (value 2), got %v", s.Points[0].V)
	}
	if name, ok := s.Labels.Get("__name__"); !ok || name != "http" {
		t.Fatalf("expected topk to retain __name__=http, got labels %+v", s.Labels)
	}
}

func TestEvalRangeQuerySteps(t *testing.T) {
	_, store := newFixture(t)
	push(t, store, "cpu", map[string]string{"host": "a"}, map[int64]float64{
		0:     1,
		30000: 2,
		60000: 3,
	})

	m := evalQuery(t, store, `cpu{host="a"}`, 0, 60000, 30000)
	if len(m.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(m.Series))
	}
	if len(m.Series[0].Points) != 3 {
		t.Fatalf("expected 3 steps, got %d: %+v", len(m.Series[0].Points), m.Series[0].Points)
	}
}
