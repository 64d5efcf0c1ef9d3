package graph

import (
	"context"
	"errors"
)

// Sentinel errors evaluators return for unknown identifiers.
var (
	ErrNodeNotFound     = errors.New("graph: node not found")
	ErrGeometryNotFound = errors.New("graph: geometry not found")
	ErrNoGraph          = errors.New("graph: no graph loaded")
)

// Property is a named node property update.
type Property struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ValueProperty is the property name sliders accept for their current value.
const ValueProperty = "value"

// GeometryRef identifies one geometry result of an evaluation pass along
// with its placement.
type GeometryRef struct {
	ID        GeometryID `json:"id"`
	Transform Transform  `json:"transform"`
}

// Result is what an evaluation pass reports.
type Result struct {
	Geometry []GeometryRef `json:"geometry"`
}

// Evaluator is the external parametric graph service. Implementations need
// not be safe for concurrent use; callers serialize access.
type Evaluator interface {
	// LoadGraph replaces the current graph with the given definition.
	LoadGraph(ctx context.Context, definition string) error

	// ListNodes returns the loaded graph's nodes in declaration order.
	ListNodes() []Node

	// SetNodeProperty updates a property of a node for the next evaluation.
	SetNodeProperty(id NodeID, prop Property) error

	// Evaluate runs the loaded graph.
	Evaluate(ctx context.Context) (*Result, error)

	// FindGeometryByID returns the record for a geometry result of the
	// most recent evaluation.
	FindGeometryByID(id GeometryID) (GeometryRecord, error)

	// GetNodeOutput returns the output slot of a node after the most recent
	// evaluation. A nil output with a nil error means the slot is empty.
	GetNodeOutput(id NodeID) (*NodeOutput, error)
}
