package engine

import (
	"fmt"
	"math"

	"github.com/chazu/knurl/pkg/graph"
)

// maxCurvePoints bounds spiral toolpaths.
const maxCurvePoints = 2_000_000

// prismMesh builds a closed n-sided prism (a frustum when the diameters
// differ) standing on the XY plane. Vertices are the bottom ring, the top
// ring, then the bottom and top centres. Faces wind counter-clockwise seen
// from outside. No normals are produced.
func prismMesh(sides int, bottomDia, topDia, height float64) (graph.MeshData, error) {
	if sides < 3 {
		return graph.MeshData{}, fmt.Errorf("sides must be at least 3, got %d", sides)
	}
	if bottomDia <= 0 || topDia <= 0 || height <= 0 {
		return graph.MeshData{}, fmt.Errorf("prism dimensions must be positive")
	}

	n := sides
	verts := make([]float64, 0, (2*n+2)*3)
	for ring, r := range []float64{bottomDia / 2, topDia / 2} {
		z := float64(ring) * height
		for i := 0; i < n; i++ {
			s, c := math.Sincos(2 * math.Pi * float64(i) / float64(n))
			verts = append(verts, r*c, r*s, z)
		}
	}
	bottomCentre, topCentre := 2*n, 2*n+1
	verts = append(verts, 0, 0, 0, 0, 0, height)

	faces := make([]int, 0, 4*n*3)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		b0, b1 := i, j
		t0, t1 := n+i, n+j
		faces = append(faces,
			b0, b1, t1,
			b0, t1, t0,
			bottomCentre, b1, b0,
			topCentre, t0, t1,
		)
	}
	return graph.MeshData{Vertices: verts, Faces: faces}, nil
}

// spiralCurve builds a continuous helix rising layer per turn from z=0 to
// height, with the radius interpolated linearly from the bottom to the top
// diameter. Each turn is sampled at sides points.
func spiralCurve(sides int, bottomDia, topDia, height, layer float64) (graph.CurveData, error) {
	if sides < 3 {
		return graph.CurveData{}, fmt.Errorf("sides must be at least 3, got %d", sides)
	}
	if bottomDia <= 0 || topDia <= 0 || height <= 0 || layer <= 0 {
		return graph.CurveData{}, fmt.Errorf("spiral dimensions must be positive")
	}

	steps := int(math.Ceil(height / layer * float64(sides)))
	if steps+1 > maxCurvePoints {
		return graph.CurveData{}, fmt.Errorf("spiral needs %d points, limit is %d", steps+1, maxCurvePoints)
	}

	verts := make([]float64, 0, (steps+1)*3)
	for i := 0; i <= steps; i++ {
		z := math.Min(float64(i)*layer/float64(sides), height)
		r := (bottomDia + (topDia-bottomDia)*z/height) / 2
		s, c := math.Sincos(2 * math.Pi * float64(i%sides) / float64(sides))
		verts = append(verts, r*c, r*s, z)
	}
	return graph.CurveData{Vertices: verts}, nil
}
