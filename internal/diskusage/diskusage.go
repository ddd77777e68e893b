// Package diskusage measures actual on-disk bytes used by the data
// directory, split per platform. Actual disk usage (not logical file
// size) matters for a storage limit check, since badger's sparse
// value-log files can report a much larger logical size than what they
// actually occupy.
package diskusage

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DirSize walks path and sums the actual disk usage of every regular
// file under it.
func DirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			actual, err := actualFileSize(filePath, info)
			if err != nil {
				size += info.Size()
			} else {
				size += actual
			}
		}
		return nil
	})
	return size, err
}

// Monitor caches DirSize results for a short window, so a health/stats
// endpoint under load doesn't re-walk the data directory on every
// request.
type Monitor struct {
	dir      string
	maxBytes int64
	ttl      time.Duration

	mu        sync.Mutex
	cached    int64
	lastCheck time.Time
}

// NewMonitor builds a Monitor over dir, caching usage for ttl.
func NewMonitor(dir string, maxBytes int64, ttl time.Duration) *Monitor {
	return &Monitor{dir: dir, maxBytes: maxBytes, ttl: ttl}
}

// Usage returns the cached (or freshly measured) disk usage in bytes.
func (m *Monitor) Usage() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < m.ttl {
		return m.cached, nil
	}
	size, err := DirSize(m.dir)
	if err != nil {
		return 0, err
	}
	m.cached = size
	m.lastCheck = time.Now()
	return size, nil
}

// Limit returns the configured maximum in bytes.
func (m *Monitor) Limit() int64 {
	return m.maxBytes
}
