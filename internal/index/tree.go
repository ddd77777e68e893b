package index

import (
	"sort"
	"sync"
)

// tree is the ordered key -> page-chain mapping (the "B-tree map" of the
// component design). Go's standard library has no ordered-map/B-tree type,
// so this is backed by a sorted slice plus a map for O(1) exact lookup;
// see the project notes for why no third-party library fits this one
// narrow concern.
type tree struct {
	mu       sync.Mutex
	postings map[Key][]*Page
	sorted   []Key
}

func newTree() *tree {
	return &tree{postings: make(map[Key][]*Page)}
}

// insert sets sid's bit under key, creating pages in the chain as needed.
// Each page holds PageCapacity SIDs; a page's position in the chain times
// PageCapacity is the first SID it covers.
func (t *tree) insert(key Key, sid SID, pc *PageCache) {
	chainIdx := int(uint64(sid) / PageCapacity)
	offset := uint64(sid) % PageCapacity

	t.mu.Lock()
	pages, exists := t.postings[key]
	if !exists {
		t.insertSortedLocked(key)
	}
	for len(pages) <= chainIdx {
		pages = append(pages, pc.CreatePage())
	}
	t.postings[key] = pages
	page := pages[chainIdx]
	t.mu.Unlock()

	page.SetBit(offset)
}

func (t *tree) insertSortedLocked(key Key) {
	i := sort.Search(len(t.sorted), func(i int) bool { return t.sorted[i] >= key })
	t.sorted = append(t.sorted, 0)
	copy(t.sorted[i+1:], t.sorted[i:])
	t.sorted[i] = key
}

// pagesFor returns the page chain registered for key, if any.
func (t *tree) pagesFor(key Key) ([]*Page, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages, ok := t.postings[key]
	return pages, ok
}

// scanRange returns every key k with lo <= k < hi, in ascending order.
// Readers observe a snapshot of the key set consistent up to the last
// insert that completed before this call acquired the lock.
func (t *tree) scanRange(lo, hi Key) []Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := sort.Search(len(t.sorted), func(i int) bool { return t.sorted[i] >= lo })
	end := sort.Search(len(t.sorted), func(i int) bool { return t.sorted[i] >= hi })
	out := make([]Key, end-start)
	copy(out, t.sorted[start:end])
	return out
}

// sidsForKey unions the SIDs set across every page in key's chain.
func sidsForKey(pages []*Page, capacity uint64, out map[SID]struct{}) {
	for chainIdx, page := range pages {
		base := SID(uint64(chainIdx) * capacity)
		page.Bits(func(offset uint64) {
			out[base+SID(offset)] = struct{}{}
		})
	}
}
