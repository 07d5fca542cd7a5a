package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

func shapeOf(m *mat.Dense) string {
	if m == nil || m.IsEmpty() {
		return "0x0"
	}
	r, c := m.Dims()
	return fmt.Sprintf("%dx%d", r, c)
}

// Shapes returns "RxC" strings for every matrix, used in shape diagnostics.
func Shapes(ms []*mat.Dense) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = shapeOf(m)
	}
	return out
}

// FromRows copies float32 rows into an n x dim matrix. Every row must have length dim.
func FromRows(rows [][]float32, dim int) (*mat.Dense, error) {
	if len(rows) == 0 || dim <= 0 {
		return nil, fmt.Errorf("cannot build %dx%d matrix", len(rows), dim)
	}
	data := make([]float64, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), dim)
		}
		for _, v := range r {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(rows), dim, data), nil
}

func isFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i)[:c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
