package graph

import "math"

// NodeID identifies a node inside one loaded graph. Evaluators do not
// guarantee that IDs survive a reload.
type NodeID string

// ZeroID is the empty NodeID.
const ZeroID NodeID = ""

// IsZero reports whether the ID is empty.
func (id NodeID) IsZero() bool {
	return id == ZeroID
}

// Short returns an abbreviated form of the ID for logs and error messages.
func (id NodeID) Short() string {
	if len(id) <= 10 {
		return string(id)
	}
	return string(id[len(id)-10:])
}

// NodeKind enumerates the node types an evaluator reports.
type NodeKind int

const (
	NodeSlider     NodeKind = iota // numeric input with a declared range
	NodeGeometry                   // produces a renderable shape
	NodeTransform                  // places a geometry node
	NodeKindOutput                 // publishes a non-geometric payload
	NodeOther                      // anything the core does not interpret
)

func (k NodeKind) String() string {
	switch k {
	case NodeSlider:
		return "slider"
	case NodeGeometry:
		return "geometry"
	case NodeTransform:
		return "transform"
	case NodeKindOutput:
		return "output"
	case NodeOther:
		return "other"
	default:
		return "unknown"
	}
}

// rangeEpsilon is the tolerance used when comparing declared ranges.
const rangeEpsilon = 1e-9

// Range is a declared numeric domain.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Equal reports whether two ranges have the same bounds.
func (r Range) Equal(o Range) bool {
	return math.Abs(r.Min-o.Min) < rangeEpsilon && math.Abs(r.Max-o.Max) < rangeEpsilon
}

// Contains reports whether v lies inside the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// Node is a single entry of a loaded graph's node list.
type Node struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Label    string   `json:"label,omitempty"`
	Range    *Range   `json:"range,omitempty"` // only for nodes declaring a numeric domain
	Value    float64  `json:"value"`
	Children []NodeID `json:"children,omitempty"`
}

// HasRange reports whether the node declares a numeric range.
func (n Node) HasRange() bool {
	return n.Range != nil
}
