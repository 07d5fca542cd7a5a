package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"postseq/internal/util"
)

// HashEmbedder is a deterministic offline embedder: hashed token counts, L2 normalized.
// It stands in for the model service in dry runs and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder { return &HashEmbedder{dim: dim} }

func (h *HashEmbedder) Dim() int          { return h.dim }
func (h *HashEmbedder) ModelName() string { return "hash" }

func (h *HashEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	v := Zero(h.dim)
	text = util.NormalizeWhitespace(text)
	if text == "" {
		return v, nil
	}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		v[idx] += sign
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}
