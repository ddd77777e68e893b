package memstore

import (
	"context"
	"testing"

	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

func TestAddAndSelectOrdersPointsByTime(t *testing.T) {
	idx := index.NewIndex(index.NewPageCache())
	store := New(idx)
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})

	app := store.Appender()
	ctx := context.Background()
	if err := app.Add(ctx, ls, 2000, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := app.Add(ctx, ls, 1000, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := app.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	q, err := store.Querier(ctx, 0, 3000)
	if err != nil {
		t.Fatalf("Querier: %v", err)
	}
	defer q.Close()

	set, err := q.Select(ctx, []*lang.Matcher{{Name: "host", Op: lang.MatchEQ, Value: "a"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !set.Next() {
		t.Fatalf("expected a series")
	}
	it := set.At().Iterator()
	var got []int64
	for it.Seek(0); ; {
		got = append(got, it.At().T)
		if !it.Next() {
			break
		}
	}
	if len(got) != 2 || got[0] != 1000 || got[1] != 2000 {
		t.Fatalf("expected points ordered [1000, 2000], got %v", got)
	}
}

func TestQuerierClipsToWindow(t *testing.T) {
	idx := index.NewIndex(index.NewPageCache())
	store := New(idx)
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})

	app := store.Appender()
	ctx := context.Background()
	for _, ts := range []int64{1000, 2000, 3000} {
		if err := app.Add(ctx, ls, ts, float64(ts)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	app.Commit()

	q, _ := store.Querier(ctx, 1500, 2500)
	defer q.Close()
	set, err := q.Select(ctx, []*lang.Matcher{{Name: "host", Op: lang.MatchEQ, Value: "a"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !set.Next() {
		t.Fatalf("expected a series within the window")
	}
	it := set.At().Iterator()
	if !it.Seek(0) {
		t.Fatalf("expected at least one point")
	}
	if it.At().T != 2000 {
		t.Fatalf("expected the only in-window point to be t=2000, got %d", it.At().T)
	}
	if it.Next() {
		t.Fatalf("expected exactly one point inside [1500, 2500]")
	}
}

func TestPruneDropsOldSamples(t *testing.T) {
	idx := index.NewIndex(index.NewPageCache())
	store := New(idx)
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})

	app := store.Appender()
	ctx := context.Background()
	for _, ts := range []int64{1000, 2000, 3000} {
		if err := app.Add(ctx, ls, ts, float64(ts)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	app.Commit()

	removed, err := store.Prune(ctx, 2500)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 samples pruned, got %d", removed)
	}

	q, _ := store.Querier(ctx, 0, 4000)
	defer q.Close()
	set, _ := q.Select(ctx, []*lang.Matcher{{Name: "host", Op: lang.MatchEQ, Value: "a"}})
	if !set.Next() {
		t.Fatalf("expected the surviving series")
	}
	it := set.At().Iterator()
	if !it.Seek(0) || it.At().T != 3000 {
		t.Fatalf("expected only t=3000 to survive pruning")
	}
}
