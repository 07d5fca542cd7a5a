package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"postseq/internal/errs"
)

// maskBias is added to the scores of padded positions. It is finite so a fully padded
// row still yields a defined (uniform) distribution.
const maskBias = -1e9

// ScaledDotProduct attends a 1 x D query over L x D keys and values and returns the
// 1 x D context plus the L attention weights. When mask is non-nil, false positions
// receive maskBias before the softmax.
func ScaledDotProduct(q, k, v *mat.Dense, mask []bool) (*mat.Dense, []float64) {
	_, d := q.Dims()
	l, _ := k.Dims()
	var scores mat.Dense
	scores.Mul(q, k.T())
	raw := scores.RawRowView(0)
	scale := 1 / math.Sqrt(float64(d))
	for j := range raw {
		raw[j] *= scale
		if mask != nil && !mask[j] {
			raw[j] += maskBias
		}
	}
	weights := make([]float64, l)
	softmaxInto(weights, raw)
	ctx := mat.NewDense(1, d, nil)
	ctx.Mul(mat.NewDense(1, l, weights), v)
	return ctx, weights
}

// HANBlock is one attention stage. It attends the query over the sequence and then
// refines query, keys and values through their own projections, a shared layer norm
// and dropout.
type HANBlock struct {
	Observer Linear // query projection applied to the attended context
	Matrix   Linear // key projection
	Value    Linear // value projection
	Norm     LayerNorm
	Dropout  float64
}

func NewHANBlock(dim int, p float64, rng *rand.Rand) HANBlock {
	return HANBlock{
		Observer: NewLinear(dim, dim, rng),
		Matrix:   NewLinear(dim, dim, rng),
		Value:    NewLinear(dim, dim, rng),
		Norm:     NewLayerNorm(dim),
		Dropout:  p,
	}
}

func (h HANBlock) refine(l Linear, x *mat.Dense, rng *rand.Rand) *mat.Dense {
	return dropout(h.Norm.Forward(activate(l.Forward(x), ReLU)), h.Dropout, rng)
}

// Forward runs the block over one batch element. rng is nil at inference.
func (h HANBlock) Forward(q, k, v *mat.Dense, mask []bool, rng *rand.Rand) (qOut, kOut, vOut *mat.Dense, weights []float64) {
	ctx, weights := ScaledDotProduct(q, k, v, mask)
	return h.refine(h.Observer, ctx, rng), h.refine(h.Matrix, k, rng), h.refine(h.Value, v, rng), weights
}

// Encoder reduces a padded batch to one D-dim vector per user with two attention stages
// driven by a learned query.
type Encoder struct {
	Query       *mat.Dense // 1 x D
	Stages      [2]HANBlock
	MaskPadding bool
}

func NewEncoder(dim int, p float64, maskPadding bool, rng *rand.Rand) *Encoder {
	q := make([]float64, dim)
	for i := range q {
		q[i] = rng.Float64()
	}
	return &Encoder{
		Query:       mat.NewDense(1, dim, q),
		Stages:      [2]HANBlock{NewHANBlock(dim, p, rng), NewHANBlock(dim, p, rng)},
		MaskPadding: maskPadding,
	}
}

func (e *Encoder) Dim() int { _, d := e.Query.Dims(); return d }

// Broadcast repeats the learned query once per batch element.
func (e *Encoder) Broadcast(b int) []*mat.Dense {
	out := make([]*mat.Dense, b)
	for i := range out {
		out[i] = mat.DenseCopyOf(e.Query)
	}
	return out
}

// Forward returns the B x D representation of the batch. rng enables dropout.
func (e *Encoder) Forward(batch Batch, rng *rand.Rand) (*mat.Dense, error) {
	d := e.Dim()
	if batch.Size() == 0 {
		return nil, errs.Shape(errs.StageEncode, nil, fmt.Errorf("empty batch"))
	}
	if batch.D != d {
		shapes := append(Shapes(batch.Data), "query="+shapeOf(e.Query))
		return nil, errs.Shape(errs.StageEncode, shapes, fmt.Errorf("batch dim %d does not match encoder dim %d", batch.D, d))
	}
	queries := e.Broadcast(batch.Size())
	out := mat.NewDense(batch.Size(), d, nil)
	for i, x := range batch.Data {
		var mask []bool
		if e.MaskPadding {
			mask = batch.Mask[i]
		}
		q, k, v := queries[i], x, x
		for _, stage := range e.Stages {
			q, k, v, _ = stage.Forward(q, k, v, mask, rng)
		}
		out.SetRow(i, q.RawRowView(0))
	}
	return out, nil
}
