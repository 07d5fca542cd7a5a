package nn

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"postseq/internal/model"
)

func defaultCompressor() Compressor {
	return Compressor{Threshold: 200, KMeans: KMeans{K: 200, NInit: 2, MaxIter: 100, Tol: 1e-4, Seed: 42}}
}

func TestCompressIdentityAtThreshold(t *testing.T) {
	items := unitVectors(rand.New(rand.NewPCG(3, 4)), 200, 8)
	out, err := defaultCompressor().Compress(items)
	require.NoError(t, err)
	require.Equal(t, items, out)
}

func TestCompressBoundAndDeterminism(t *testing.T) {
	items := unitVectors(rand.New(rand.NewPCG(5, 6)), 300, 16)
	c := defaultCompressor()

	a, err := c.Compress(items)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(a), 1)
	require.LessOrEqual(t, len(a), 200)

	b, err := c.Compress(items)
	require.NoError(t, err)
	require.Equal(t, a, b)

	// every representative keeps its own post
	byTime := make(map[time.Time]model.EmbeddedPost, len(items))
	for _, it := range items {
		byTime[it.Timestamp] = it
	}
	for _, r := range a {
		require.Equal(t, byTime[r.Timestamp].Vector, r.Vector)
	}
}

func TestCompressKeepsLastAssigned(t *testing.T) {
	at := func(i int, v ...float32) model.EmbeddedPost {
		return model.EmbeddedPost{Post: model.Post{Timestamp: t0.Add(time.Duration(i) * time.Second)}, Vector: v}
	}
	items := []model.EmbeddedPost{
		at(0, 0, 0), at(1, 100, 100), at(2, 0.1, 0), at(3, -100, 50), at(4, 100, 100.1), at(5, 0, 0.1),
	}
	c := Compressor{Threshold: 3, KMeans: KMeans{K: 3, NInit: 5, MaxIter: 50, Tol: 1e-4, Seed: 42}}
	out, err := c.Compress(items)
	require.NoError(t, err)
	require.Len(t, out, 3)
	got := map[time.Time]bool{}
	for _, o := range out {
		got[o.Timestamp] = true
	}
	require.Equal(t, map[time.Time]bool{items[3].Timestamp: true, items[4].Timestamp: true, items[5].Timestamp: true}, got)
}

func TestKMeansClampsK(t *testing.T) {
	rows := [][]float64{{0}, {1}, {2}}
	labels, inertia := KMeans{K: 10, NInit: 1, MaxIter: 10, Seed: 1}.Fit(rows)
	require.Len(t, labels, 3)
	require.InDelta(t, 0, inertia, 1e-12)
	require.ElementsMatch(t, []int{0, 1, 2}, labels)
}

func TestLloydStopsWhenAssignmentRepeats(t *testing.T) {
	rows := [][]float64{{0, 0}, {0, 1}, {1, 0}, {10, 10}, {10, 11}, {11, 10}}
	centers := [][]float64{{0, 0}, {10, 10}}
	// a negative tol never triggers the center-shift stop
	labels, inertia, iters := lloyd(rows, centers, 300, -1)
	require.Equal(t, 2, iters)
	require.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
	require.InDelta(t, 8.0/3, inertia, 1e-9)
}
