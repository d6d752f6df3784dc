// Package ristretto implements the transcript model cache with
// dgraph-io/ristretto, a byte-bounded in-process cache.
package ristretto

import (
	"errors"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/missioncontrol/internal/port/cache"
)

// entryOverhead approximates the bytes an Entry holds besides its strings:
// the stamp plus two string headers.
const entryOverhead = 64

// ModelCache keeps the model of recently read transcripts.
type ModelCache struct {
	c *ristretto.Cache[string, cache.Entry]
}

var _ cache.ModelCache = (*ModelCache)(nil)

// New creates a cache holding at most maxCostBytes of paths and models.
func New(maxCostBytes int64) (*ModelCache, error) {
	if maxCostBytes <= 0 {
		return nil, errors.New("ristretto: max cost must be positive")
	}
	// Ten counters per expected entry, assuming ~128 bytes each.
	counters := max(maxCostBytes/128*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, cache.Entry]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ModelCache{c: c}, nil
}

func (m *ModelCache) Lookup(path string) (cache.Entry, bool) {
	return m.c.Get(path)
}

// Store records e for path. The entry may be dropped by admission, and is
// visible to Lookup only once the write buffer drains (see Wait).
func (m *ModelCache) Store(path string, e cache.Entry) {
	m.c.Set(path, e, int64(len(path)+len(e.Model))+entryOverhead)
}

// Wait blocks until pending stores are applied.
func (m *ModelCache) Wait() {
	m.c.Wait()
}

// Close releases the cache's goroutines.
func (m *ModelCache) Close() {
	m.c.Close()
}
