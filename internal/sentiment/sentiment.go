// Package sentiment scores per-post polarity.
package sentiment

import (
	"github.com/jonreiter/govader"
)

// Polarity holds the positive and negative proportions of a text, each in [0,1].
type Polarity struct {
	Pos float64
	Neg float64
}

// Scorer rates a single text.
type Scorer interface {
	Score(text string) Polarity
}

// Vader scores with the VADER lexicon.
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVader() *Vader {
	return &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *Vader) Score(text string) Polarity {
	s := v.analyzer.PolarityScores(text)
	return Polarity{Pos: s.Positive, Neg: s.Negative}
}
