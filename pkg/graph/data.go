package graph

// ---------------------------------------------------------------------------
// Geometry interchange records
// ---------------------------------------------------------------------------

// GeometryID is an opaque identifier for one geometry result of an
// evaluation pass.
type GeometryID string

// Geometry is the variant payload of a GeometryRecord. Only MeshData and
// CurveData implement it.
type Geometry interface {
	geometry() // marker method restricting implementations to this package
}

// MeshData is a triangle mesh. Vertices and Normals hold 3 components per
// vertex; Faces holds 3 vertex indices per triangle. Normals and Faces are
// optional.
type MeshData struct {
	Vertices []float64 `json:"vertices"`
	Normals  []float64 `json:"normals,omitempty"`
	Faces    []int     `json:"faces,omitempty"`
}

func (MeshData) geometry() {}

// VertexCount returns the number of vertices.
func (m MeshData) VertexCount() int {
	return len(m.Vertices) / 3
}

// CurveData is a polyline with 3 components per vertex.
type CurveData struct {
	Vertices []float64 `json:"vertices"`
}

func (CurveData) geometry() {}

// VertexCount returns the number of vertices.
func (c CurveData) VertexCount() int {
	return len(c.Vertices) / 3
}

// GeometryRecord pairs a geometry payload with the transform that places it.
// Data may be nil or an unrecognized variant for auxiliary results.
type GeometryRecord struct {
	ID        GeometryID `json:"id"`
	Name      string     `json:"name,omitempty"`
	Data      Geometry   `json:"data"`
	Transform Transform  `json:"transform"`
}

// ---------------------------------------------------------------------------
// Node outputs
// ---------------------------------------------------------------------------

// PayloadKind tags the value carried by an output entry.
type PayloadKind int

const (
	PayloadText PayloadKind = iota
	PayloadNumber
	PayloadGeometry
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadNumber:
		return "number"
	case PayloadGeometry:
		return "geometry"
	default:
		return "unknown"
	}
}

// Payload is one entry of an output channel.
type Payload struct {
	Kind  PayloadKind `json:"kind"`
	Value any         `json:"value"`
}

// OutputChannel is a named list of payload entries.
type OutputChannel struct {
	Name    string    `json:"name"`
	Entries []Payload `json:"entries"`
}

// NodeOutput is the output slot of a node after an evaluation pass.
type NodeOutput struct {
	Channels []OutputChannel `json:"channels"`
}
