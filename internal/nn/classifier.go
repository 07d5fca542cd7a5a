package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Classifier is a feed-forward stack ending in raw class scores. Dropout follows every layer.
type Classifier struct {
	Layers      []Linear
	Activations []Activation
	Dropout     []float64
}

// NewClassifier builds in -> hidden (leaky relu) -> hidden -> classes.
func NewClassifier(in, hidden, classes int, drop []float64, rng *rand.Rand) *Classifier {
	return &Classifier{
		Layers: []Linear{
			NewLinear(in, hidden, rng),
			NewLinear(hidden, hidden, rng),
			NewLinear(hidden, classes, rng),
		},
		Activations: []Activation{LeakyReLU, Identity, Identity},
		Dropout:     drop,
	}
}

func (c *Classifier) In() int      { return c.Layers[0].In() }
func (c *Classifier) Classes() int { return c.Layers[len(c.Layers)-1].Out() }

// Forward maps B x In to B x Classes logits.
func (c *Classifier) Forward(x *mat.Dense, rng *rand.Rand) *mat.Dense {
	h := x
	for i, l := range c.Layers {
		h = activate(l.Forward(h), c.Activations[i])
		if i < len(c.Dropout) {
			h = dropout(h, c.Dropout[i], rng)
		}
	}
	return h
}
