package sdfx

import (
	"math"
	"testing"

	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/kernel"
)

// newTestKernel keeps marching cubes coarse so the suite stays fast.
func newTestKernel() *SdfxKernel {
	return New(WithMeshCells(32))
}

func mustMesh(t *testing.T, k *SdfxKernel, s kernel.Solid) graph.MeshData {
	t.Helper()
	m, err := k.ToMesh(s)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	return m
}

func triangleCount(m graph.MeshData) int {
	return len(m.Faces) / 3
}

func TestBox(t *testing.T) {
	k := newTestKernel()
	box, err := k.Box(100, 50, 25)
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	mesh := mustMesh(t, k, box)
	if mesh.VertexCount() == 0 {
		t.Fatal("expected non-zero vertex count")
	}
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Faces) != mesh.VertexCount() {
		t.Fatalf("faces length %d != vertex count %d", len(mesh.Faces), mesh.VertexCount())
	}
	for i, idx := range mesh.Faces {
		if idx < 0 || idx >= mesh.VertexCount() {
			t.Fatalf("face index %d = %d out of range", i, idx)
		}
	}
}

func TestBoxRejectsNegativeSize(t *testing.T) {
	k := newTestKernel()
	if _, err := k.Box(-1, 10, 10); err == nil {
		t.Fatal("expected error for negative dimension")
	}
}

func TestCylinderStandsOnOrigin(t *testing.T) {
	k := newTestKernel()
	cyl, err := k.Cylinder(50, 10)
	if err != nil {
		t.Fatalf("Cylinder failed: %v", err)
	}
	min, max := cyl.BoundingBox()

	const tol = 0.01
	expectMin := [3]float64{-10, -10, 0}
	expectMax := [3]float64{10, 10, 50}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected %f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
	if triangleCount(mustMesh(t, k, cyl)) == 0 {
		t.Fatal("expected non-zero triangle count")
	}
}

func TestBoxBoundingBox(t *testing.T) {
	k := newTestKernel()
	box, err := k.Box(100, 50, 25)
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}
	min, max := box.BoundingBox()

	const tol = 0.01
	expectMax := [3]float64{100, 50, 25}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]) > tol {
			t.Errorf("min[%d] = %f, expected 0", i, min[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	k := newTestKernel()
	box, _ := k.Box(10, 10, 10)
	translated := k.Translate(box, 100, 200, 300)
	min, max := translated.BoundingBox()

	const tol = 0.01
	expectMin := [3]float64{100, 200, 300}
	expectMax := [3]float64{110, 210, 310}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected %f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
}

func TestRotate(t *testing.T) {
	k := newTestKernel()
	box, _ := k.Box(100, 10, 10)

	// A long box along X rotated 90 degrees around Z extends along Y instead.
	ext := kernel.Extent(k.Rotate(box, 0, 0, 90))

	const tol = 1.0
	if math.Abs(ext[0]-10) > tol {
		t.Errorf("rotated X extent = %f, expected ~10", ext[0])
	}
	if math.Abs(ext[1]-100) > tol {
		t.Errorf("rotated Y extent = %f, expected ~100", ext[1])
	}
}

func TestBooleans(t *testing.T) {
	k := newTestKernel()
	a, _ := k.Box(50, 50, 50)
	b, _ := k.Box(50, 50, 50)
	b = k.Translate(b, 25, 0, 0)
	hole, _ := k.Cylinder(60, 10)
	hole = k.Translate(hole, 25, 25, -5)

	tests := []struct {
		name string
		s    kernel.Solid
	}{
		{"union", k.Union(a, b)},
		{"difference", k.Difference(a, hole)},
		{"intersection", k.Intersection(a, b)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if triangleCount(mustMesh(t, k, tt.s)) == 0 {
				t.Fatalf("%s mesh is empty", tt.name)
			}
		})
	}

	ext := kernel.Extent(k.Union(a, b))
	if math.Abs(ext[0]-75) > 0.01 {
		t.Errorf("union X extent = %f, expected 75", ext[0])
	}
}

func TestMeshCellsOption(t *testing.T) {
	box, _ := New().Box(10, 10, 10)
	coarse := mustMesh(t, New(WithMeshCells(8)), box)
	fine := mustMesh(t, New(WithMeshCells(32)), box)
	if triangleCount(fine) < triangleCount(coarse) {
		t.Errorf("finer grid produced fewer triangles: %d < %d", triangleCount(fine), triangleCount(coarse))
	}
	if New(WithMeshCells(0)).cells != DefaultMeshCells {
		t.Error("non-positive cell count should keep the default")
	}
}
