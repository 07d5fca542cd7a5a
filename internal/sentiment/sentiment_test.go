package sentiment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVaderPolarity(t *testing.T) {
	v := NewVader()
	good := v.Score("I love this, it is wonderful and great!")
	bad := v.Score("I hate everything, this is awful and terrible.")
	require.Greater(t, good.Pos, good.Neg)
	require.Greater(t, bad.Neg, bad.Pos)
	for _, p := range []Polarity{good, bad, v.Score("")} {
		require.GreaterOrEqual(t, p.Pos, 0.0)
		require.LessOrEqual(t, p.Pos, 1.0)
		require.GreaterOrEqual(t, p.Neg, 0.0)
		require.LessOrEqual(t, p.Neg, 1.0)
	}
}
