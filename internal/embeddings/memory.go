package embeddings

import (
	"context"
	"sync"
)

// MemoryCache is an in-process embedding cache. When the entry count exceeds
// maxEntries the cache is cleared wholesale; embeddings are cheap to
// recompute and pipeline batches rarely revisit old texts.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string][]float32
	maxEntries int
}

const defaultMaxEntries = 10000

// NewMemoryCache creates a MemoryCache. maxEntries <= 0 uses the default.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{
		entries:    make(map[string][]float32),
		maxEntries: maxEntries,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	emb, ok := c.entries[key]
	return emb, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictIfFull(1)
	c.entries[key] = embedding
	return nil
}

func (c *MemoryCache) GetMulti(ctx context.Context, keys []string) (map[string][]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	found := make(map[string][]float32, len(keys))
	for _, key := range keys {
		if emb, ok := c.entries[key]; ok {
			found[key] = emb
		}
	}
	return found, nil
}

func (c *MemoryCache) SetMulti(ctx context.Context, embeddings map[string][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictIfFull(len(embeddings))
	for key, emb := range embeddings {
		c.entries[key] = emb
	}
	return nil
}

func (c *MemoryCache) evictIfFull(incoming int) {
	if len(c.entries)+incoming > c.maxEntries {
		c.entries = make(map[string][]float32)
	}
}
