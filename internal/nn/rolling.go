package nn

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// validSMA is the simple moving average over every full window (length n-w+1).
func validSMA(x []float64, w int) []float64 {
	if w <= 0 || len(x) < w {
		return nil
	}
	out := make([]float64, 0, len(x)-w+1)
	var sum float64
	for i, v := range x {
		sum += v
		if i >= w {
			sum -= x[i-w]
		}
		if i >= w-1 {
			out = append(out, sum/float64(w))
		}
	}
	return out
}

// meanMomentum averages (w+1)*(sma[i-1]-sma[i]) over i in [w, n), where sma is the valid
// moving average left-padded with w-1 zeros to length n. The divisor is n-(w-1).
func meanMomentum(x []float64, w int) float64 {
	n := len(x)
	valid := validSMA(x, w)
	if valid == nil || n-(w-1) <= 0 {
		return 0
	}
	sma := make([]float64, w-1, n)
	sma = append(sma, valid...)
	var sum float64
	for i := w; i < n; i++ {
		sum += float64(w+1) * (sma[i-1] - sma[i])
	}
	return sum / float64(n-(w-1))
}

// secondDiffStd is the population std of the second-order difference of the moving average.
func secondDiffStd(x []float64, w int) float64 {
	sma := validSMA(x, w)
	if len(sma) < 3 {
		return 0
	}
	d2 := make([]float64, len(sma)-2)
	for i := range d2 {
		d2[i] = sma[i+2] - 2*sma[i+1] + sma[i]
	}
	return popStd(d2)
}

func popStd(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(x, nil)
	return math.Sqrt(v)
}

// valueEntropy is the base-2 Shannon entropy of the empirical distribution of exact values.
func valueEntropy(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	counts := make(map[float64]int, len(x))
	order := make([]float64, 0, len(x))
	for _, v := range x {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	p := make([]float64, len(order))
	for i, v := range order {
		p[i] = float64(counts[v]) / float64(len(x))
	}
	return stat.Entropy(p) / math.Ln2
}
