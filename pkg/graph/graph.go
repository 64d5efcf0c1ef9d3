package graph

import "fmt"

// Graph is an indexed snapshot of the node list an evaluator reports for one
// loaded graph. It is rebuilt after every load and never mutated by the core.
type Graph struct {
	Nodes      map[NodeID]*Node  `json:"nodes"`
	Order      []NodeID          `json:"order"`
	LabelIndex map[string]NodeID `json:"label_index"`
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		Nodes:      make(map[NodeID]*Node),
		LabelIndex: make(map[string]NodeID),
	}
}

// FromNodes builds a Graph from an evaluator's node list, preserving order.
func FromNodes(nodes []Node) *Graph {
	g := New()
	for i := range nodes {
		n := nodes[i]
		g.AddNode(&n)
	}
	return g
}

// AddNode adds a node to the graph. The first node carrying a label owns
// that label in the index.
func (g *Graph) AddNode(n *Node) {
	if _, exists := g.Nodes[n.ID]; !exists {
		g.Order = append(g.Order, n.ID)
	}
	g.Nodes[n.ID] = n
	if n.Label != "" {
		if _, taken := g.LabelIndex[n.Label]; !taken {
			g.LabelIndex[n.Label] = n.ID
		}
	}
}

// Lookup returns the node with the given label, or nil.
func (g *Graph) Lookup(label string) *Node {
	id, ok := g.LabelIndex[label]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// MustLookup returns the node with the given label, or panics.
func (g *Graph) MustLookup(label string) *Node {
	n := g.Lookup(label)
	if n == nil {
		panic(fmt.Sprintf("graph: no node labelled %q", label))
	}
	return n
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// List returns the nodes in the order the evaluator reported them.
func (g *Graph) List() []Node {
	out := make([]Node, 0, len(g.Order))
	for _, id := range g.Order {
		if n := g.Nodes[id]; n != nil {
			out = append(out, *n)
		}
	}
	return out
}

// Sliders returns all slider nodes in report order.
func (g *Graph) Sliders() []*Node {
	var sliders []*Node
	for _, id := range g.Order {
		if n := g.Nodes[id]; n != nil && n.Kind == NodeSlider {
			sliders = append(sliders, n)
		}
	}
	return sliders
}

// Children returns the child nodes of the given node.
func (g *Graph) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := g.Nodes[cid]; c != nil {
			children = append(children, c)
		}
	}
	return children
}

// NodeCount returns the total number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}
