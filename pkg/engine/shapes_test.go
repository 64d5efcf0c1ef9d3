package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/knurl/pkg/graph"
)

func TestPrismMesh(t *testing.T) {
	m, err := prismMesh(6, 20, 10, 5)
	if err != nil {
		t.Fatalf("prismMesh: %v", err)
	}
	if m.VertexCount() != 14 {
		t.Errorf("vertex count = %d, want 14", m.VertexCount())
	}
	if len(m.Faces) != 6*4*3 {
		t.Errorf("face indices = %d, want %d", len(m.Faces), 6*4*3)
	}
	for i, idx := range m.Faces {
		if idx < 0 || idx >= m.VertexCount() {
			t.Fatalf("face index %d = %d out of range", i, idx)
		}
	}

	// Every face normal points away from the axis or along it.
	v := func(i int) [3]float64 { return [3]float64{m.Vertices[i*3], m.Vertices[i*3+1], m.Vertices[i*3+2]} }
	for f := 0; f < len(m.Faces); f += 3 {
		a, b, c := v(m.Faces[f]), v(m.Faces[f+1]), v(m.Faces[f+2])
		u := [3]float64{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
		w := [3]float64{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
		n := [3]float64{u[1]*w[2] - u[2]*w[1], u[2]*w[0] - u[0]*w[2], u[0]*w[1] - u[1]*w[0]}
		centroid := [3]float64{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3, (a[2] + b[2] + c[2]) / 3}
		out := [3]float64{centroid[0], centroid[1], centroid[2] - 2.5}
		if dot := n[0]*out[0] + n[1]*out[1] + n[2]*out[2]; dot <= 0 {
			t.Errorf("face %d winds inward", f/3)
		}
	}

	if _, err := prismMesh(2, 1, 1, 1); err == nil {
		t.Error("expected error for two sides")
	}
	if _, err := prismMesh(3, 1, 0, 1); err == nil {
		t.Error("expected error for zero top diameter")
	}
}

func TestSpiralCurve(t *testing.T) {
	c, err := spiralCurve(4, 10, 20, 3, 1)
	if err != nil {
		t.Fatalf("spiralCurve: %v", err)
	}
	if c.VertexCount() != 13 {
		t.Fatalf("vertex count = %d, want 13", c.VertexCount())
	}
	first := c.Vertices[:3]
	if first[0] != 5 || first[1] != 0 || first[2] != 0 {
		t.Errorf("first point = %v, want [5 0 0]", first)
	}
	last := c.Vertices[len(c.Vertices)-3:]
	if math.Abs(last[0]-10) > 1e-9 || math.Abs(last[2]-3) > 1e-9 {
		t.Errorf("last point = %v, want x=10 z=3", last)
	}
	for i := 1; i < c.VertexCount(); i++ {
		if c.Vertices[i*3+2] < c.Vertices[(i-1)*3+2] {
			t.Fatalf("z decreases at point %d", i)
		}
	}

	if _, err := spiralCurve(4, 10, 10, 1e9, 1e-3); err == nil {
		t.Error("expected error for oversized spiral")
	}
	if _, err := spiralCurve(4, 10, 10, 10, 0); err == nil {
		t.Error("expected error for zero layer height")
	}
}

func TestToolpathGCode(t *testing.T) {
	c := graph.CurveData{Vertices: []float64{
		1, 0, 0,
		0, 1, 0.5,
		-1, 0, 1,
	}}
	got := toolpathGCode(c, graph.Translation(10, 0, 0.25), 1200)
	want := strings.Join([]string{
		"; knurl toolpath, 3 points",
		"G21",
		"G90",
		"G0 X11 Y0 Z0.25",
		"G1 X10 Y1 Z0.75 F1200",
		"G1 X9 Y0 Z1.25",
		"M2",
		"",
	}, "\n")
	if got != want {
		t.Errorf("toolpathGCode() =\n%s\nwant\n%s", got, want)
	}
}

func TestNum(t *testing.T) {
	tests := map[float64]string{
		0:        "0",
		-0.0001:  "0",
		1.5:      "1.5",
		100:      "100",
		-2.25:    "-2.25",
		1.23456:  "1.235",
		1e-3:     "0.001",
	}
	for in, want := range tests {
		if got := num(in); got != want {
			t.Errorf("num(%g) = %q, want %q", in, got, want)
		}
	}
}
