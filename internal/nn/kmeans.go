package nn

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeans is seeded Lloyd's k-means with k-means++ seeding. The best of NInit runs by
// inertia wins, so the same seed and data always give the same labels.
type KMeans struct {
	K       int
	NInit   int
	MaxIter int
	Tol     float64
	Seed    uint64
}

// Fit clusters rows and returns a label per row plus the winning inertia.
// K is clamped to len(rows).
func (km KMeans) Fit(rows [][]float64) ([]int, float64) {
	n := len(rows)
	if n == 0 {
		return nil, 0
	}
	k := min(max(km.K, 1), n)
	nInit := max(km.NInit, 1)
	maxIter := max(km.MaxIter, 1)
	tol := km.Tol * meanFeatureVariance(rows)

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))
	var best []int
	bestInertia := math.Inf(1)
	for run := 0; run < nInit; run++ {
		centers := seedPlusPlus(rows, k, rng)
		labels, inertia, _ := lloyd(rows, centers, maxIter, tol)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best, bestInertia
}

func meanFeatureVariance(rows [][]float64) float64 {
	d := len(rows[0])
	col := make([]float64, len(rows))
	var sum float64
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		sum += v
	}
	return sum / float64(d)
}

// seedPlusPlus picks the first center uniformly, then each next one with probability
// proportional to its squared distance from the nearest chosen center.
func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centers := make([][]float64, 0, k)
	centers = append(centers, clone64(rows[rng.IntN(n)]))
	d2 := make([]float64, n)
	for i, r := range rows {
		d2[i] = sqDist(r, centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(d2)
		idx := 0
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			idx = n - 1
			for i, v := range d2 {
				acc += v
				if acc > target {
					idx = i
					break
				}
			}
		} else {
			idx = rng.IntN(n)
		}
		c := clone64(rows[idx])
		centers = append(centers, c)
		for i, r := range rows {
			if v := sqDist(r, c); v < d2[i] {
				d2[i] = v
			}
		}
	}
	return centers
}

// lloyd stops when an assignment repeats, when centers move at most tol, or after
// maxIter rounds. It returns the labels, their inertia and the assignment passes run.
func lloyd(rows [][]float64, centers [][]float64, maxIter int, tol float64) ([]int, float64, int) {
	k := len(centers)
	d := len(rows[0])
	labels := make([]int, len(rows))
	prev := make([]int, len(rows))
	counts := make([]int, k)
	next := make([][]float64, k)
	for c := range next {
		next[c] = make([]float64, d)
	}
	iters := 0
	for iter := 0; iter < maxIter; iter++ {
		inertia := assign(rows, centers, labels)
		iters++
		if iter > 0 && slices.Equal(labels, prev) {
			// centers are already the means of this assignment
			return labels, inertia, iters
		}
		copy(prev, labels)
		for c := range next {
			for j := range next[c] {
				next[c][j] = 0
			}
			counts[c] = 0
		}
		for i, r := range rows {
			floats.Add(next[labels[i]], r)
			counts[labels[i]]++
		}
		var shift float64
		for c := range next {
			if counts[c] == 0 {
				// empty cluster keeps its previous center
				copy(next[c], centers[c])
			} else {
				floats.Scale(1/float64(counts[c]), next[c])
			}
			shift += sqDist(next[c], centers[c])
			copy(centers[c], next[c])
		}
		if shift <= tol {
			break
		}
	}
	inertia := assign(rows, centers, labels)
	return labels, inertia, iters
}

// assign labels every row with its nearest center (lowest index on ties) and returns inertia.
func assign(rows [][]float64, centers [][]float64, labels []int) float64 {
	var inertia float64
	for i, r := range rows {
		bestC, bestD := 0, math.Inf(1)
		for c, ctr := range centers {
			if v := sqDist(r, ctr); v < bestD {
				bestC, bestD = c, v
			}
		}
		labels[i] = bestC
		inertia += bestD
	}
	return inertia
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
