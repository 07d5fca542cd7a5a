package theme

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBannerPlain(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3", false)
	require.Contains(t, buf.String(), "v1.2.3")
	require.False(t, strings.Contains(buf.String(), "\033["))
	require.Contains(t, Banner("x", true), "\033[36m")
}
