// Package kernel defines the solid modeling backend the reference
// evaluator uses for constructive geometry. Solids are opaque; the only
// way out of a kernel is ToMesh, which produces interchange mesh data.
package kernel

import "github.com/chazu/knurl/pkg/graph"

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel builds and combines solids.
type Kernel interface {
	// Primitives. Boxes have their minimum corner at the origin; cylinders
	// stand on the XY plane, centred on the Z axis.
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// ToMesh tessellates a solid into a triangle mesh with per-vertex
	// normals.
	ToMesh(s Solid) (graph.MeshData, error)
}

// Extent returns the size of a solid along each axis.
func Extent(s Solid) [3]float64 {
	lo, hi := s.BoundingBox()
	return [3]float64{hi[0] - lo[0], hi[1] - lo[1], hi[2] - lo[2]}
}
