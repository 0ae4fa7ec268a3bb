// Package memo caches pipeline results for interactive callers. Keys must
// carry the identity of the index they were computed against so a rebuild
// never serves stale entries.
package memo

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"packrag/internal/domain"
)

// DefaultSize is the number of entries kept by New(0).
const DefaultSize = 256

// Cache is a bounded LRU map from string keys to values. It is safe for
// concurrent use.
type Cache[V any] struct {
	lru *lru.Cache[string, V]
}

func New[V any](size int) (*Cache[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: c}, nil
}

func (c *Cache[V]) Get(key string) (V, bool) { return c.lru.Get(key) }

func (c *Cache[V]) Add(key string, v V) { c.lru.Add(key, v) }

func (c *Cache[V]) Len() int { return c.lru.Len() }

func (c *Cache[V]) Purge() { c.lru.Purge() }

// GetOrCompute returns the cached value for key or stores the result of fn.
// Errors are not cached.
func (c *Cache[V]) GetOrCompute(key string, fn func() (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// IndexIdentity is the part of a key naming one built index.
type IndexIdentity interface {
	ID() string
	BuiltAt() time.Time
}

// AskKey identifies one question against one index.
func AskKey(idx IndexIdentity, question string, q domain.Query) string {
	return fmt.Sprintf("ask|%s|%d|%q|%d|%d|%q", idx.ID(), idx.BuiltAt().UnixNano(), question, q.K, q.FetchK, q.Source)
}

// EvalKey identifies one evaluation run. The manifest modification time is
// part of the key so edits to the manifest invalidate it.
func EvalKey(idx IndexIdentity, manifestPath string, k, fetchK int, restrictToPack bool, fallbackDir string) string {
	var mtime int64
	if info, err := os.Stat(manifestPath); err == nil {
		mtime = info.ModTime().UnixNano()
	}
	return fmt.Sprintf("eval|%s|%d|%q|%d|%d|%d|%t|%q", idx.ID(), idx.BuiltAt().UnixNano(), manifestPath, mtime, k, fetchK, restrictToPack, fallbackDir)
}
