package theme

import (
	"fmt"
	"io"
	"strings"
)

const (
	cyan  = "\033[36m"
	dim   = "\033[2m"
	reset = "\033[0m"
)

// Banner returns the CLI banner. With color false it is plain text.
func Banner(version string, color bool) string {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + reset
	}
	var b strings.Builder
	b.WriteString(paint(cyan, "  ┌─┐┌─┐┌─┐┌┬┐┌─┐┌─┐┌─┐ \n"))
	b.WriteString(paint(cyan, "  ├─┘│ │└─┐ │ └─┐├┤ │─┼┐\n"))
	b.WriteString(paint(cyan, "  ┴  └─┘└─┘ ┴ └─┘└─┘└─┘└\n"))
	b.WriteString(paint(dim, fmt.Sprintf("  temporal post-sequence classifier %s\n", version)))
	return b.String()
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer, version string, color bool) {
	fmt.Fprint(w, Banner(version, color))
}
