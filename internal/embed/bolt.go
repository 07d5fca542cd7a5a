package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"postseq/internal/logging"
	"postseq/internal/metrics"
)

var bucketName = []byte("embeddings")

// BoltEmbedder persists vectors across runs in a bbolt file.
type BoltEmbedder struct {
	next Embedder
	db   *bolt.DB
}

// WrapBolt opens (or creates) path and caches next's vectors in it.
func WrapBolt(next Embedder, path string) (*BoltEmbedder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for BoltDB: %w", err)
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltEmbedder{next: next, db: db}, nil
}

func (b *BoltEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := []byte(cacheKey(b.next.ModelName(), text))
	var cached []float32
	_ = b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(key); v != nil {
			cached = decodeF32(v)
		}
		return nil
	})
	if cached != nil && len(cached) == b.next.Dim() {
		metrics.IncCacheHit("bolt")
		return cached, nil
	}
	v, err := b.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, encodeF32(v))
	}); err != nil {
		logging.Warn("embedding_cache_write_failed", map[string]any{"error": err})
	}
	return v, nil
}

func (b *BoltEmbedder) Dim() int          { return b.next.Dim() }
func (b *BoltEmbedder) ModelName() string { return b.next.ModelName() }

// Close closes the underlying bbolt file.
func (b *BoltEmbedder) Close() error { return b.db.Close() }

func encodeF32(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v[i]))
	}
	return out
}

func decodeF32(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
