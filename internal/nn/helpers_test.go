package nn

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"postseq/internal/model"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func randomSeq(rng *rand.Rand, n, d int) *mat.Dense {
	data := make([]float64, n*d)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(n, d, data)
}

func unitVectors(rng *rand.Rand, n, d int) []model.EmbeddedPost {
	out := make([]model.EmbeddedPost, n)
	for i := range out {
		v := make([]float32, d)
		var norm float64
		for j := range v {
			x := rng.NormFloat64()
			v[j] = float32(x)
			norm += x * x
		}
		norm = math.Sqrt(norm)
		for j := range v {
			v[j] = float32(float64(v[j]) / norm)
		}
		out[i] = model.EmbeddedPost{Post: model.Post{Timestamp: t0.Add(time.Duration(i) * time.Minute), Text: "p"}, Vector: v}
	}
	return out
}

func testModel(dim int, mask bool) *Model {
	m, err := New(Options{
		Dim:              dim,
		MetricDim:        MetricDim,
		Hidden:           dim + MetricDim,
		Labels:           []string{"0", "1"},
		Dropout:          []float64{0.2, 0.3, 0.3},
		AttentionDropout: 0.2,
		MaskPadding:      mask,
		Seed:             7,
	})
	if err != nil {
		panic(err)
	}
	return m
}
