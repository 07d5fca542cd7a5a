package nn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"postseq/internal/errs"
)

// Batch is a padded batch: B matrices of L x D and a B x L presence mask.
type Batch struct {
	Data    []*mat.Dense
	Mask    [][]bool
	Lengths []int
	L, D    int
}

// Size is the batch dimension B.
func (b Batch) Size() int { return len(b.Data) }

// Pad right-pads or truncates every sequence to exactly L rows. The mask comes from the
// original lengths, never from the values, since a real embedding may be all zero.
func Pad(seqs []*mat.Dense, L int) (Batch, error) {
	if L <= 0 {
		return Batch{}, errs.Shape(errs.StagePad, nil, fmt.Errorf("non-positive max length %d", L))
	}
	if len(seqs) == 0 {
		return Batch{}, errs.Shape(errs.StagePad, nil, errors.New("empty batch"))
	}
	dim := 0
	for i, s := range seqs {
		if s == nil || s.IsEmpty() {
			return Batch{}, errs.Shape(errs.StagePad, Shapes(seqs), fmt.Errorf("sequence %d has no feature columns", i))
		}
		_, c := s.Dims()
		if i == 0 {
			dim = c
		} else if c != dim {
			return Batch{}, errs.Shape(errs.StagePad, Shapes(seqs), fmt.Errorf("sequence %d has %d columns, want %d", i, c, dim))
		}
	}
	b := Batch{
		Data:    make([]*mat.Dense, len(seqs)),
		Mask:    make([][]bool, len(seqs)),
		Lengths: make([]int, len(seqs)),
		L:       L,
		D:       dim,
	}
	for i, s := range seqs {
		r, _ := s.Dims()
		n := min(r, L)
		out := mat.NewDense(L, dim, nil)
		for j := 0; j < n; j++ {
			out.SetRow(j, s.RawRowView(j))
		}
		mask := make([]bool, L)
		for j := 0; j < n; j++ {
			mask[j] = true
		}
		b.Data[i] = out
		b.Mask[i] = mask
		b.Lengths[i] = r
	}
	return b, nil
}
