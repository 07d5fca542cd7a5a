package nn

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"postseq/internal/errs"
)

func TestPadMaskFollowsOriginalLengths(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	lengths := []int{1, 3, 5, 9}
	seqs := make([]*mat.Dense, len(lengths))
	for i, n := range lengths {
		seqs[i] = randomSeq(rng, n, 4)
	}
	// an all-zero row is still a real element
	seqs[1].SetRow(2, []float64{0, 0, 0, 0})

	b, err := Pad(seqs, 5)
	require.NoError(t, err)
	require.Equal(t, 4, b.Size())
	require.Equal(t, 5, b.L)
	require.Equal(t, 4, b.D)
	for i, n := range lengths {
		r, c := b.Data[i].Dims()
		require.Equal(t, 5, r)
		require.Equal(t, 4, c)
		for j := 0; j < 5; j++ {
			require.Equal(t, j < min(n, 5), b.Mask[i][j], "seq %d pos %d", i, j)
			if j >= n {
				require.Equal(t, []float64{0, 0, 0, 0}, b.Data[i].RawRowView(j))
			}
		}
	}
	// truncation keeps the first L rows
	require.Equal(t, seqs[3].RawRowView(4), b.Data[3].RawRowView(4))
}

func TestPadShapeErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	_, err := Pad([]*mat.Dense{randomSeq(rng, 2, 4), randomSeq(rng, 2, 3)}, 4)
	require.True(t, errs.IsShape(err))
	pe, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, []string{"2x4", "2x3"}, pe.Shapes)

	_, err = Pad([]*mat.Dense{{}}, 4)
	require.True(t, errs.IsShape(err))

	_, err = Pad(nil, 4)
	require.True(t, errs.IsShape(err))
}
