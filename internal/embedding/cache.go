package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// textCacheCapacity is the bounded LRU size the vector cache keyed by
// SHA-256(text) is held to, eliminating repeat embedding work for
// repeated queries without growing memory without bound.
const textCacheCapacity = 1000

// vectorCache maps SHA-256(text) -> embedding, bounded to textCacheCapacity
// entries. It is safe for concurrent use; golang-lru's Cache is not, so a
// mutex guards it.
type vectorCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, []float32]
}

func newVectorCache() *vectorCache {
	c, err := lru.New[string, []float32](textCacheCapacity)
	if err != nil {
		// Only returns an error for non-positive size, which never
		// happens with the constant above.
		panic(err)
	}
	return &vectorCache{inner: c}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *vectorCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(cacheKey(text))
}

func (c *vectorCache) put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(cacheKey(text), vec)
}

// modelCacheKey identifies a loaded model instance by (model_id, device,
// batch_size), the process-wide cache key spec §4.C describes for
// providers that hold expensive model state in memory (e.g. a local
// sentence-transformer runtime). Providers that only call a remote API
// have no use for this and may ignore it.
type modelCacheKey struct {
	ModelID   string
	Device    string
	BatchSize int
}

// modelCache holds at most one loaded instance per key, for providers
// whose construction is expensive enough to warrant process-wide reuse.
type modelCache struct {
	mu    sync.Mutex
	byKey map[modelCacheKey]interface{}
}

func newModelCache() *modelCache {
	return &modelCache{byKey: make(map[modelCacheKey]interface{})}
}

func (c *modelCache) getOrCreate(key modelCacheKey, create func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.byKey[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	c.byKey[key] = v
	return v, nil
}
