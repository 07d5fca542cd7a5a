package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"postseq/internal/sentiment"
)

type tableScorer map[string]sentiment.Polarity

func (s tableScorer) Score(text string) sentiment.Polarity { return s[text] }

func repeatTexts(n int, pattern ...string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

func TestFeaturesFloor(t *testing.T) {
	f := Featurizer{Scorer: tableScorer{"a": {Pos: 1}}, MinPosts: 101, Window: 14}
	for _, n := range []int{0, 1, 100} {
		require.Equal(t, make([]float64, MetricDim), f.Features(repeatTexts(max(n, 1), "a")[:n]))
	}
}

func TestFeaturesConstantChannel(t *testing.T) {
	f := Featurizer{Scorer: tableScorer{"a": {Pos: 0.5, Neg: 0.25}}, MinPosts: 101, Window: 14}
	got := f.Features(repeatTexts(120, "a"))
	require.Len(t, got, MetricDim)
	require.InDelta(t, 0.5, got[0], 1e-12)
	require.InDelta(t, 0.25, got[5], 1e-12)
	for _, i := range []int{1, 2, 3, 4, 6, 7, 8, 9} {
		require.InDelta(t, 0, got[i], 1e-12, "index %d", i)
	}
}

func TestFeaturesAlternating(t *testing.T) {
	f := Featurizer{Scorer: tableScorer{"a": {Pos: 1}, "b": {Neg: 1}}, MinPosts: 101, Window: 14}
	got := f.Features(repeatTexts(200, "a", "b"))
	require.InDelta(t, 0.5, got[0], 1e-12)
	require.InDelta(t, 0.5, got[1], 1e-12)
	require.InDelta(t, 1, got[2], 1e-12)
	require.InDelta(t, 0.5, got[5], 1e-12)
	require.InDelta(t, 1, got[7], 1e-12)
}

func TestRollingHelpers(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	require.Equal(t, []float64{1.5, 2.5, 3.5}, validSMA(x, 2))
	require.InDelta(t, -2, meanMomentum(x, 2), 1e-12)
	require.InDelta(t, 0, secondDiffStd(x, 2), 1e-12)
	require.InDelta(t, 1, valueEntropy([]float64{1, 1, 2, 2}), 1e-12)
	require.InDelta(t, math.Log2(3), valueEntropy([]float64{1, 2, 3}), 1e-12)
	require.Zero(t, meanMomentum([]float64{1}, 2))
	require.Zero(t, secondDiffStd([]float64{1, 2}, 2))
}
