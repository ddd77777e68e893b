// Package badgerstore is a BadgerDB-backed Storage implementation.
// Samples are keyed by (SID, timestamp) rather than by a re-hashed label
// string, since SID assignment and label-set deduplication are already
// owned by the shared label index; this package only persists sample
// data and leans on badger's key ordering for efficient per-series range
// scans.
package badgerstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/storage"
)

// Config configures the underlying BadgerDB instance. Memory limits are
// kept conservative, laptop-friendly defaults.
type Config struct {
	Path        string
	InMemory    bool
	MaxMemoryMB int64
}

// Store is a BadgerDB-backed Storage, sharing a label index with any
// in-memory store in the same process.
type Store struct {
	db  *badger.DB
	idx *index.Index
}

// New opens (or creates) a BadgerDB database at cfg.Path and wraps it as
// a Storage backed by idx.
func New(cfg Config, idx *index.Index) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	var memTableSize int64
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	} else {
		memTableSize = 16 * 1024 * 1024
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db, idx: idx}, nil
}

// sampleKey packs a SID and millisecond timestamp into a sortable
// 16-byte key: [sid (8 bytes, big-endian)][t (8 bytes, big-endian)].
func sampleKey(sid index.SID, t int64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], uint64(sid))
	binary.BigEndian.PutUint64(key[8:16], uint64(t))
	return key
}

func decodeSampleKey(key []byte) (index.SID, int64) {
	sid := index.SID(binary.BigEndian.Uint64(key[0:8]))
	t := int64(binary.BigEndian.Uint64(key[8:16]))
	return sid, t
}

func encodeValue(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeValue(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

// Appender returns an Appender bound to this store. Commit flushes
// nothing extra: each Add is written in its own transaction.
func (s *Store) Appender() storage.Appender {
	return &appender{store: s}
}

type appender struct {
	store *Store
}

func (a *appender) Add(ctx context.Context, ls labels.Set, t int64, v float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sid := a.store.idx.AddSeries(ls)
	key := sampleKey(sid, t)
	val := encodeValue(v)
	return a.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (a *appender) Commit() error { return nil }

// Querier returns a Querier scoped to [mint, maxt].
func (s *Store) Querier(ctx context.Context, mint, maxt int64) (storage.Querier, error) {
	return &querier{store: s, mint: mint, maxt: maxt}, nil
}

// LabelValues returns the distinct values observed for name.
func (s *Store) LabelValues(ctx context.Context, name string) ([]string, error) {
	values := s.idx.LabelValues(name)
	sort.Strings(values)
	return values, nil
}

// Close shuts down the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Prune deletes every sample key with timestamp before cutoff (Unix
// milliseconds) across all series, for the retention job. It scans keys
// only (PrefetchValues disabled) and deletes through a WriteBatch, since
// badger has no native "delete by value range" for a key layout that
// embeds the timestamp in the second half of the key rather than the
// first.
func (s *Store) Prune(ctx context.Context, cutoff int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	removed := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			_, t := decodeSampleKey(key)
			if t >= cutoff {
				continue
			}
			if err := wb.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: prune scan: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badgerstore: prune flush: %w", err)
	}
	return removed, nil
}

// RunGC runs BadgerDB's value-log garbage collection once, reclaiming
// space from deleted or overwritten entries. Returns badger.ErrNoRewrite
// if no garbage was found.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

type querier struct {
	store      *Store
	mint, maxt int64
}

func (q *querier) Close() error { return nil }

func (q *querier) Select(ctx context.Context, matchers []*lang.Matcher) (storage.SeriesSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sids, err := q.store.idx.ResolveMatchers(matchers)
	if err != nil {
		return nil, err
	}

	ordered := make([]index.SID, 0, len(sids))
	for sid := range sids {
		ordered = append(ordered, sid)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	series := make([]storage.Series, 0, len(ordered))
	err = q.store.db.View(func(txn *badger.Txn) error {
		for _, sid := range ordered {
			ls, ok := q.store.idx.GetLabels(sid)
			if !ok {
				continue
			}
			pts, err := readRange(txn, sid, q.mint, q.maxt)
			if err != nil {
				return err
			}
			if len(pts) == 0 {
				continue
			}
			series = append(series, &badgerSeries{labels: ls, samples: pts})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: select: %w", err)
	}

	return &badgerSeriesSet{series: series, idx: -1}, nil
}

func readRange(txn *badger.Txn, sid index.SID, mint, maxt int64) ([]storage.Sample, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(sid))

	var out []storage.Sample
	for it.Seek(sampleKey(sid, mint)); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		_, t := decodeSampleKey(item.Key())
		if t > maxt {
			break
		}
		if err := item.Value(func(val []byte) error {
			out = append(out, storage.Sample{T: t, V: decodeValue(val)})
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type badgerSeries struct {
	labels  labels.Set
	samples []storage.Sample
}

func (s *badgerSeries) Labels() labels.Set { return s.labels }

func (s *badgerSeries) Iterator() storage.SeriesIterator {
	return &badgerIterator{samples: s.samples, pos: -1}
}

type badgerIterator struct {
	samples []storage.Sample
	pos     int
}

func (it *badgerIterator) Seek(t int64) bool {
	if it.pos >= 0 && it.pos < len(it.samples) && it.samples[it.pos].T >= t {
		return true
	}
	start := it.pos + 1
	if start < 0 {
		start = 0
	}
	i := sort.Search(len(it.samples)-start, func(i int) bool { return it.samples[start+i].T >= t })
	it.pos = start + i
	return it.pos < len(it.samples)
}

func (it *badgerIterator) At() storage.Sample { return it.samples[it.pos] }

func (it *badgerIterator) Next() bool {
	it.pos++
	return it.pos < len(it.samples)
}

type badgerSeriesSet struct {
	series []storage.Series
	idx    int
}

func (s *badgerSeriesSet) Next() bool {
	s.idx++
	return s.idx < len(s.series)
}

func (s *badgerSeriesSet) At() storage.Series { return s.series[s.idx] }

func (s *badgerSeriesSet) Err() error { return nil }
