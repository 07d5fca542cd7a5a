package nn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"postseq/internal/logging"
)

// MetricStore persists metric vectors across runs.
type MetricStore interface {
	PutMetricVector(ctx context.Context, key string, vec []float64) error
	LoadMetricVector(ctx context.Context, key string) ([]float64, bool, error)
}

// MetricCache computes each user's metric vector at most once per process. Entries are never
// evicted, so repeated lookups return bit-identical vectors. Texts passed after the first
// computation for a user are ignored.
type MetricCache struct {
	f     Featurizer
	store MetricStore

	mu    sync.RWMutex
	m     map[string][]float64
	group singleflight.Group
}

func NewMetricCache(f Featurizer) *MetricCache {
	return &MetricCache{f: f, m: make(map[string][]float64)}
}

// WithStore backs the cache with persistent storage keyed by user id and a digest of the
// texts, so a stored vector is only reused for the same post texts. The store is a cache:
// failures are logged and the vector is computed instead.
func (c *MetricCache) WithStore(s MetricStore) *MetricCache {
	c.store = s
	return c
}

// Get returns a copy of the cached vector for userID, computing it from texts on first use.
func (c *MetricCache) Get(ctx context.Context, userID string, texts []string) []float64 {
	c.mu.RLock()
	v, ok := c.m[userID]
	c.mu.RUnlock()
	if ok {
		return clone64(v)
	}
	res, _, _ := c.group.Do(userID, func() (any, error) {
		c.mu.RLock()
		v, ok := c.m[userID]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		key := StoreKey(userID, texts)
		v = c.load(ctx, key)
		if v == nil {
			v = c.f.Features(texts)
			c.save(ctx, key, v)
		}
		c.mu.Lock()
		c.m[userID] = v
		c.mu.Unlock()
		return v, nil
	})
	return clone64(res.([]float64))
}

// Len reports how many users have a cached vector.
func (c *MetricCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// StoreKey is the persistent key for a user's metric vector over texts.
func StoreKey(userID string, texts []string) string {
	h := sha256.New()
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return userID + ":" + hex.EncodeToString(h.Sum(nil))
}

func (c *MetricCache) load(ctx context.Context, key string) []float64 {
	if c.store == nil {
		return nil
	}
	v, ok, err := c.store.LoadMetricVector(ctx, key)
	if err != nil {
		logging.Warn("metric_store_load_failed", map[string]any{"key": key, "error": err})
		return nil
	}
	if !ok || len(v) != MetricDim {
		return nil
	}
	return v
}

func (c *MetricCache) save(ctx context.Context, key string, v []float64) {
	if c.store == nil {
		return
	}
	if err := c.store.PutMetricVector(ctx, key, v); err != nil {
		logging.Warn("metric_store_save_failed", map[string]any{"key": key, "error": err})
	}
}

func clone64(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
