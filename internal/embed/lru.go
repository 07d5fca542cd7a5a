package embed

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"postseq/internal/metrics"
)

// WrapLRU caches vectors in memory. A non-positive size or ttl returns e unchanged.
func WrapLRU(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{next: e, cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

type lruEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(l.next.ModelName(), text)
	if v, ok := l.cache.Get(key); ok {
		metrics.IncCacheHit("lru")
		return clone(v), nil
	}
	v, err := l.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, clone(v))
	return v, nil
}

func (l *lruEmbedder) Dim() int          { return l.next.Dim() }
func (l *lruEmbedder) ModelName() string { return l.next.ModelName() }
