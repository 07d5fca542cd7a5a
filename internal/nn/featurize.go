package nn

import (
	"gonum.org/v1/gonum/stat"

	"postseq/internal/sentiment"
)

// MetricDim is the length of the per-user metric vector.
const MetricDim = 10

// Featurizer maps a user's post texts to the 10-value sentiment-dynamics vector:
// [mean, std, entropy, momentum, diff_std] of positive scores, then the same for negative.
type Featurizer struct {
	Scorer   sentiment.Scorer
	MinPosts int // fewer texts than this yield all zeros
	Window   int // moving-average window
}

// Features scores texts in the order given. Callers pass load order.
func (f Featurizer) Features(texts []string) []float64 {
	out := make([]float64, MetricDim)
	if len(texts) < f.MinPosts || len(texts) == 0 {
		return out
	}
	pos := make([]float64, len(texts))
	neg := make([]float64, len(texts))
	for i, t := range texts {
		p := f.Scorer.Score(t)
		pos[i] = p.Pos
		neg[i] = p.Neg
	}
	copy(out[:5], channelStats(pos, f.Window))
	copy(out[5:], channelStats(neg, f.Window))
	return out
}

func channelStats(x []float64, w int) []float64 {
	return []float64{
		stat.Mean(x, nil),
		popStd(x),
		valueEntropy(x),
		meanMomentum(x, w),
		secondDiffStd(x, w),
	}
}
