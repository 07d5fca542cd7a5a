package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"postseq/internal/errs"
)

func TestScaledDotProductMasksPadding(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	k := randomSeq(rng, 4, 3)
	q := randomSeq(rng, 1, 3)
	_, w := ScaledDotProduct(q, k, k, []bool{true, true, false, false})
	require.InDelta(t, 1, floats.Sum(w), 1e-12)
	require.Zero(t, w[2])
	require.Zero(t, w[3])

	_, w = ScaledDotProduct(q, k, k, nil)
	for _, v := range w {
		require.Greater(t, v, 0.0)
	}
}

func TestEncoderIgnoresPadding(t *testing.T) {
	m := testModel(6, true)
	seq := randomSeq(rand.New(rand.NewPCG(1, 1)), 3, 6)
	short, err := Pad([]*mat.Dense{seq}, 4)
	require.NoError(t, err)
	long, err := Pad([]*mat.Dense{seq}, 20)
	require.NoError(t, err)

	a, err := m.Encoder.Forward(short, nil)
	require.NoError(t, err)
	b, err := m.Encoder.Forward(long, nil)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(a, b, 1e-9))
}

func TestEncoderShapeStability(t *testing.T) {
	const dim = 12
	m := testModel(dim, true)
	rng := rand.New(rand.NewPCG(2, 3))
	for _, L := range []int{1, 50, 100} {
		b, err := Pad([]*mat.Dense{randomSeq(rng, 30, dim), randomSeq(rng, 120, dim)}, L)
		require.NoError(t, err)
		out, err := m.Encoder.Forward(b, nil)
		require.NoError(t, err)
		r, c := out.Dims()
		require.Equal(t, 2, r, "L=%d", L)
		require.Equal(t, dim, c, "L=%d", L)
	}
}

func TestEncoderBroadcastLeavesQueryAlone(t *testing.T) {
	m := testModel(4, true)
	before := mat.DenseCopyOf(m.Encoder.Query)
	qs := m.Encoder.Broadcast(3)
	require.Len(t, qs, 3)
	qs[0].Set(0, 0, 99)
	require.True(t, mat.Equal(before, m.Encoder.Query))
}

func TestEncoderDimMismatch(t *testing.T) {
	m := testModel(4, true)
	b, err := Pad([]*mat.Dense{randomSeq(rand.New(rand.NewPCG(1, 1)), 2, 5)}, 3)
	require.NoError(t, err)
	_, err = m.Encoder.Forward(b, nil)
	require.True(t, errs.IsShape(err))
}

func TestLayerNormRows(t *testing.T) {
	x := mat.NewDense(2, 4, []float64{1, 2, 3, 4, -1, 0, 0, 1})
	y := NewLayerNorm(4).Forward(x)
	for i := 0; i < 2; i++ {
		row := y.RawRowView(i)
		require.InDelta(t, 0, floats.Sum(row)/4, 1e-9)
		var ss float64
		for _, v := range row {
			ss += v * v
		}
		require.InDelta(t, 1, math.Sqrt(ss/4), 1e-4)
	}
}
