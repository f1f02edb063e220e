package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachedSource deduplicates concurrent reads of the same path and keeps the
// result in memory until the cache exceeds maxBytes, at which point it is
// cleared.
type CachedSource struct {
	source   Source
	maxBytes int

	cache   map[string][]byte
	size    int
	cacheMu sync.RWMutex
	group   singleflight.Group
}

const defaultCacheBytes = 64 << 20

func NewCachedSource(source Source, maxBytes int) *CachedSource {
	if maxBytes <= 0 {
		maxBytes = defaultCacheBytes
	}
	return &CachedSource{
		source:   source,
		maxBytes: maxBytes,
		cache:    make(map[string][]byte),
	}
}

func (c *CachedSource) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	c.cacheMu.RLock()
	if cached, ok := c.cache[filePath]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	result, err, _ := c.group.Do(filePath, func() (any, error) {
		c.cacheMu.RLock()
		if cached, ok := c.cache[filePath]; ok {
			c.cacheMu.RUnlock()
			return cached, nil
		}
		c.cacheMu.RUnlock()

		content, err := c.source.ReadFile(ctx, filePath)
		if err != nil {
			return nil, err
		}

		c.cacheMu.Lock()
		if c.size+len(content) > c.maxBytes {
			c.cache = make(map[string][]byte)
			c.size = 0
		}
		if len(content) <= c.maxBytes {
			c.cache[filePath] = content
			c.size += len(content)
		}
		c.cacheMu.Unlock()

		return content, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Forget drops a cached path so the next read goes to the source.
func (c *CachedSource) Forget(filePath string) {
	c.cacheMu.Lock()
	if cached, ok := c.cache[filePath]; ok {
		c.size -= len(cached)
		delete(c.cache, filePath)
	}
	c.cacheMu.Unlock()
	c.group.Forget(filePath)
}
