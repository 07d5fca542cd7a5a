package nn

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"postseq/internal/errs"
)

// Options sizes a fresh model.
type Options struct {
	Dim              int
	MetricDim        int
	Hidden           int
	Labels           []string
	Dropout          []float64
	AttentionDropout float64
	MaskPadding      bool
	Seed             uint64
}

// Model is the attention encoder followed by the classifier over [representation ‖ metrics].
type Model struct {
	Encoder    *Encoder
	Classifier *Classifier
	Labels     []string
	MetricDim  int

	mu       sync.Mutex
	training bool
	rng      *rand.Rand
}

// New initializes all weights from Seed.
func New(o Options) (*Model, error) {
	if o.Dim <= 0 || o.Hidden <= 0 || o.MetricDim < 0 || len(o.Labels) < 2 {
		return nil, fmt.Errorf("invalid model options dim=%d hidden=%d metric_dim=%d labels=%d", o.Dim, o.Hidden, o.MetricDim, len(o.Labels))
	}
	rng := newRand(o.Seed)
	return &Model{
		Encoder:    NewEncoder(o.Dim, o.AttentionDropout, o.MaskPadding, rng),
		Classifier: NewClassifier(o.Dim+o.MetricDim, o.Hidden, len(o.Labels), o.Dropout, rng),
		Labels:     append([]string(nil), o.Labels...),
		MetricDim:  o.MetricDim,
		rng:        rng,
	}, nil
}

// SetTraining toggles dropout.
func (m *Model) SetTraining(on bool) {
	m.mu.Lock()
	m.training = on
	m.mu.Unlock()
}

// Forward returns B x C logits. metrics must hold one MetricDim vector per batch element.
func (m *Model) Forward(batch Batch, metricVecs [][]float64) (*mat.Dense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rng *rand.Rand
	if m.training {
		rng = m.rng
	}
	if len(metricVecs) != batch.Size() {
		return nil, errs.Shape(errs.StageClassify, []string{fmt.Sprintf("batch=%d", batch.Size()), fmt.Sprintf("metrics=%d", len(metricVecs))},
			fmt.Errorf("metric rows do not match batch size"))
	}
	rep, err := m.Encoder.Forward(batch, rng)
	if err != nil {
		return nil, err
	}
	d := m.Encoder.Dim()
	joined := mat.NewDense(batch.Size(), d+m.MetricDim, nil)
	for i, mv := range metricVecs {
		if len(mv) != m.MetricDim {
			return nil, errs.Shape(errs.StageClassify, []string{fmt.Sprintf("metrics[%d]=%d", i, len(mv))},
				fmt.Errorf("metric vector has %d values, want %d", len(mv), m.MetricDim))
		}
		row := joined.RawRowView(i)
		copy(row[:d], rep.RawRowView(i))
		copy(row[d:], mv)
	}
	if c := m.Classifier.In(); c != d+m.MetricDim {
		return nil, errs.Shape(errs.StageClassify, []string{shapeOf(joined)}, fmt.Errorf("classifier expects %d inputs", c))
	}
	logits := m.Classifier.Forward(joined, rng)
	if !isFinite(logits) {
		return nil, errs.Shape(errs.StageClassify, []string{shapeOf(logits)}, fmt.Errorf("non-finite logits"))
	}
	return logits, nil
}

// Scored is one row of Predict output.
type Scored struct {
	Logits        []float64
	Probabilities []float64
	Label         string
}

// Predict maps logits to probabilities and the argmax label.
func (m *Model) Predict(logits *mat.Dense) []Scored {
	probs := Softmax(logits)
	idx := Argmax(logits)
	out := make([]Scored, len(idx))
	for i, j := range idx {
		out[i] = Scored{
			Logits:        clone64(logits.RawRowView(i)),
			Probabilities: clone64(probs.RawRowView(i)),
			Label:         m.Labels[j],
		}
	}
	return out
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}
