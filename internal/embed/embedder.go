// Package embed provides text embedders and caching decorators around them.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Embedder maps a text to a fixed-dimension vector. Implementations return the zero vector for
// blank text and must be stable for identical input.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dim() int
	ModelName() string
}

// Zero returns a zero vector of dimension dim.
func Zero(dim int) []float32 { return make([]float32, dim) }

func cacheKey(modelName, text string) string {
	h := sha256.Sum256([]byte(modelName + "\x00" + text))
	return modelName + ":" + hex.EncodeToString(h[:])
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
