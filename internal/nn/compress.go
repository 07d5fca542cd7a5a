package nn

import (
	"fmt"

	"postseq/internal/errs"
	"postseq/internal/metrics"
	"postseq/internal/model"
)

// Compressor shrinks long histories to one representative post per k-means cluster.
type Compressor struct {
	Threshold int // histories at or below this length pass through untouched
	KMeans    KMeans
}

// Compress returns items unchanged when len(items) <= Threshold. Otherwise it clusters the
// vectors and keeps, for each non-empty cluster in cluster-index order, the last item assigned
// to it in input order. The result never exceeds KMeans.K items.
func (c Compressor) Compress(items []model.EmbeddedPost) ([]model.EmbeddedPost, error) {
	if len(items) <= c.Threshold {
		return items, nil
	}
	dim := len(items[0].Vector)
	rows := make([][]float64, len(items))
	for i, it := range items {
		if len(it.Vector) != dim || dim == 0 {
			return nil, errs.Shape(errs.StageCompress, nil, fmt.Errorf("item %d has %d columns, want %d", i, len(it.Vector), dim))
		}
		r := make([]float64, dim)
		for j, v := range it.Vector {
			r[j] = float64(v)
		}
		rows[i] = r
	}
	labels, _ := c.KMeans.Fit(rows)
	k := min(max(c.KMeans.K, 1), len(items))
	last := make([]int, k)
	for i := range last {
		last[i] = -1
	}
	for i, l := range labels {
		last[l] = i
	}
	out := make([]model.EmbeddedPost, 0, k)
	for _, idx := range last {
		if idx >= 0 {
			out = append(out, items[idx])
		}
	}
	metrics.Compressions.Inc()
	return out, nil
}
