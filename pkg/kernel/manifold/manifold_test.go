//go:build manifold

package manifold

import (
	"math"
	"testing"

	"github.com/chazu/knurl/pkg/kernel"
)

func mustNew(t *testing.T) kernel.Kernel {
	t.Helper()
	k, err := New(WithSegments(32))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return k
}

func mustBox(t *testing.T, k kernel.Kernel, x, y, z float64) kernel.Solid {
	t.Helper()
	s, err := k.Box(x, y, z)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	return s
}

func checkBounds(t *testing.T, s kernel.Solid, wantMin, wantMax [3]float64, tol float64) {
	t.Helper()
	min, max := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > tol {
			t.Errorf("min[%d] = %f, want %f", i, min[i], wantMin[i])
		}
		if math.Abs(max[i]-wantMax[i]) > tol {
			t.Errorf("max[%d] = %f, want %f", i, max[i], wantMax[i])
		}
	}
}

func TestBox(t *testing.T) {
	k := mustNew(t)
	checkBounds(t, mustBox(t, k, 10, 20, 30), [3]float64{0, 0, 0}, [3]float64{10, 20, 30}, 1e-6)

	if _, err := k.Box(0, 1, 1); err == nil {
		t.Error("expected an error for a zero-size box")
	}
}

func TestCylinder(t *testing.T) {
	k := mustNew(t)
	s, err := k.Cylinder(20, 5)
	if err != nil {
		t.Fatalf("Cylinder() error = %v", err)
	}
	min, max := s.BoundingBox()
	if math.Abs(min[2]) > 0.01 || math.Abs(max[2]-20) > 0.01 {
		t.Errorf("Cylinder Z bounds = [%f, %f], want [0, 20]", min[2], max[2])
	}
	// Polygon inscribed in the circle.
	for i := 0; i < 2; i++ {
		if min[i] > -4.5 || max[i] < 4.5 {
			t.Errorf("Cylinder bounds[%d] = [%f, %f], want about ±5", i, min[i], max[i])
		}
	}
}

func TestDifference(t *testing.T) {
	k := mustNew(t)
	box := mustBox(t, k, 10, 10, 10)
	hole, err := k.Cylinder(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	hole = k.Translate(hole, 5, 5, 0)
	checkBounds(t, k.Difference(box, hole), [3]float64{0, 0, 0}, [3]float64{10, 10, 10}, 1e-6)
}

func TestTranslate(t *testing.T) {
	k := mustNew(t)
	moved := k.Translate(mustBox(t, k, 10, 10, 10), 100, 200, 300)
	checkBounds(t, moved, [3]float64{100, 200, 300}, [3]float64{110, 210, 310}, 1e-6)
}

func TestToMesh(t *testing.T) {
	k := mustNew(t)
	mesh, err := k.ToMesh(mustBox(t, k, 10, 10, 10))
	if err != nil {
		t.Fatalf("ToMesh() error = %v", err)
	}
	// Manifold may split vertices along sharp edges, but a box has at
	// least 12 triangles.
	if len(mesh.Faces)/3 < 12 {
		t.Errorf("triangle count = %d, want >= 12", len(mesh.Faces)/3)
	}
	if mesh.VertexCount() < 8 {
		t.Errorf("vertex count = %d, want >= 8", mesh.VertexCount())
	}
	if len(mesh.Normals) != len(mesh.Vertices) {
		t.Errorf("normals length = %d, vertices length = %d, want equal",
			len(mesh.Normals), len(mesh.Vertices))
	}
}

func TestVertexNormals(t *testing.T) {
	// One triangle in the XY plane, counter-clockwise.
	n := vertexNormals([]float64{0, 0, 0, 1, 0, 0, 0, 1, 0}, []int{0, 1, 2})
	for v := 0; v < 3; v++ {
		if n[v*3] != 0 || n[v*3+1] != 0 || n[v*3+2] != 1 {
			t.Errorf("normal %d = %v, want +Z", v, n[v*3:v*3+3])
		}
	}
}
