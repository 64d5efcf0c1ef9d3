package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/knurl/pkg/graph"
)

// DefaultFeed is the print feed rate in mm/min.
const DefaultFeed = 1500.0

// toolpathGCode renders a placed curve as absolute-coordinate G-code: a
// rapid move to the first point, then linear moves through the rest.
func toolpathGCode(c graph.CurveData, t graph.Transform, feed float64) string {
	var b strings.Builder
	n := c.VertexCount()
	fmt.Fprintf(&b, "; knurl toolpath, %d points\n", n)
	b.WriteString("G21\nG90\n")
	for i := 0; i < n; i++ {
		x, y, z := t.Apply(c.Vertices[i*3], c.Vertices[i*3+1], c.Vertices[i*3+2])
		switch i {
		case 0:
			fmt.Fprintf(&b, "G0 X%s Y%s Z%s\n", num(x), num(y), num(z))
		case 1:
			fmt.Fprintf(&b, "G1 X%s Y%s Z%s F%s\n", num(x), num(y), num(z), num(feed))
		default:
			fmt.Fprintf(&b, "G1 X%s Y%s Z%s\n", num(x), num(y), num(z))
		}
	}
	b.WriteString("M2\n")
	return b.String()
}

// num formats a coordinate with at most three decimals.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
