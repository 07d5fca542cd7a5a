package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Linear is y = xWᵀ + b with W stored out x in.
type Linear struct {
	W *mat.Dense
	B []float64
}

// NewLinear initializes weights and bias uniformly in ±1/sqrt(in).
func NewLinear(in, out int, rng *rand.Rand) Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, out*in)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (rng.Float64()*2 - 1) * bound
	}
	return Linear{W: mat.NewDense(out, in, w), B: b}
}

func (l Linear) In() int  { _, c := l.W.Dims(); return c }
func (l Linear) Out() int { r, _ := l.W.Dims(); return r }

// Forward maps n x in to n x out.
func (l Linear) Forward(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, l.Out(), nil)
	out.Mul(x, l.W.T())
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += l.B[j]
		}
	}
	return out
}

// LayerNorm normalizes each row over its features.
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
	Eps   float64
}

func NewLayerNorm(dim int) LayerNorm {
	g := make([]float64, dim)
	for i := range g {
		g[i] = 1
	}
	return LayerNorm{Gamma: g, Beta: make([]float64, dim), Eps: 1e-5}
}

func (ln LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		src := x.RawRowView(i)
		mean, variance := stat.PopMeanVariance(src, nil)
		inv := 1 / math.Sqrt(variance+ln.Eps)
		dst := out.RawRowView(i)
		for j, v := range src {
			dst[j] = (v-mean)*inv*ln.Gamma[j] + ln.Beta[j]
		}
	}
	return out
}

// Activation is applied elementwise.
type Activation func(float64) float64

func ReLU(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func LeakyReLU(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0.01 * v
}

func Identity(v float64) float64 { return v }

func activate(x *mat.Dense, f Activation) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, x)
	return &out
}

// dropout zeroes entries with probability p and rescales survivors by 1/(1-p).
// It is the identity when rng is nil (inference) or p is zero.
func dropout(x *mat.Dense, p float64, rng *rand.Rand) *mat.Dense {
	if rng == nil || p <= 0 {
		return x
	}
	keep := 1 - p
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if rng.Float64() < p {
			return 0
		}
		return v / keep
	}, x)
	return &out
}

// Softmax returns the row-wise softmax of logits.
func Softmax(logits *mat.Dense) *mat.Dense {
	n, c := logits.Dims()
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		softmaxInto(out.RawRowView(i), logits.RawRowView(i))
	}
	return out
}

func softmaxInto(dst, src []float64) {
	m := math.Inf(-1)
	for _, v := range src {
		m = max(m, v)
	}
	var sum float64
	for j, v := range src {
		e := math.Exp(v - m)
		dst[j] = e
		sum += e
	}
	for j := range dst {
		dst[j] /= sum
	}
}

// Argmax returns the index of the largest value per row, lowest index on ties.
func Argmax(m *mat.Dense) []int {
	n, _ := m.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		row := m.RawRowView(i)
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}
