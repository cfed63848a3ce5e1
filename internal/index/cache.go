package index

import (
	"sync"

	"impactmap/internal/lang"
)

// PersistentStore is an optional second-level parse cache surviving across
// runs, keyed by (path, mtime_nanos, size).
type PersistentStore interface {
	Get(path string, mtimeNanos, size int64) (*lang.ParsedFile, bool, error)
	Put(path string, mtimeNanos, size int64, pf *lang.ParsedFile) error
}

// ParseCache caches parse results within a run. The mutex is held only
// across lookup and insert, never across parsing, so a file raced by two
// workers may be parsed twice; the results are identical and last-writer
// wins.
type ParseCache struct {
	mu    sync.Mutex
	files map[string]*lang.ParsedFile
	store PersistentStore // optional L2
}

// NewParseCache creates a parse cache. store may be nil.
func NewParseCache(store PersistentStore) *ParseCache {
	return &ParseCache{
		files: make(map[string]*lang.ParsedFile),
		store: store,
	}
}

// GetOrParse returns the cached result for path or invokes parse and caches
// the outcome. Parse errors are not cached.
func (c *ParseCache) GetOrParse(path string, mtimeNanos, size int64, parse func() (*lang.ParsedFile, error)) (*lang.ParsedFile, error) {
	c.mu.Lock()
	if pf, ok := c.files[path]; ok {
		c.mu.Unlock()
		return pf, nil
	}
	c.mu.Unlock()

	if c.store != nil {
		if pf, ok, err := c.store.Get(path, mtimeNanos, size); err == nil && ok {
			c.mu.Lock()
			c.files[path] = pf
			c.mu.Unlock()
			return pf, nil
		}
	}

	pf, err := parse()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.files[path] = pf
	c.mu.Unlock()

	if c.store != nil {
		// best effort; a failed write only costs a re-parse next run
		_ = c.store.Put(path, mtimeNanos, size, pf)
	}

	return pf, nil
}

// Len returns the number of cached files
func (c *ParseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// Contains reports whether a path is cached
func (c *ParseCache) Contains(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[path]
	return ok
}

// Clear empties the in-memory cache
func (c *ParseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = make(map[string]*lang.ParsedFile)
}
