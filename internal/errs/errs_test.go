package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	base := errors.New("bad ts")
	err := fmt.Errorf("prepare: %w", Data(StageSort, "42", base))
	require.True(t, IsData(err))
	require.False(t, IsShape(err))
	require.ErrorIs(t, err, base)

	pe, ok := As(err)
	require.True(t, ok)
	require.Equal(t, "42", pe.UserID)
	require.Equal(t, StageSort, pe.Stage)
	require.Contains(t, err.Error(), "data error at sort for user 42")
}

func TestWithUserOnlyFillsMissing(t *testing.T) {
	err := WithUser(Shape(StagePad, []string{"3x4", "2x5"}, errors.New("dim mismatch")), "7")
	pe, _ := As(err)
	require.Equal(t, "7", pe.UserID)
	require.Contains(t, err.Error(), "shapes=[3x4 2x5]")

	err = WithUser(Resource(StageEmbed, "1", errors.New("down")), "2")
	pe, _ = As(err)
	require.Equal(t, "1", pe.UserID)

	plain := errors.New("plain")
	require.Equal(t, plain, WithUser(plain, "3"))
}
