// Package binder resolves UI parameter names to nodes of a loaded graph.
//
// Evaluators expose no semantic parameter names and do not keep node IDs
// stable across loads, so parameters are matched structurally: by the
// numeric range a slider declares or by its label. This only works if the
// graph author gives each bindable slider a unique range or label; see
// graph.ValidateBindable. Resolution runs once per loaded graph and the
// resulting Binding must be discarded when a new graph is loaded.
package binder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/chazu/knurl/pkg/graph"
)

// Predicate reports whether a node plays a given role.
type Predicate func(n graph.Node) bool

// RangeEquals matches nodes declaring exactly [min, max].
func RangeEquals(min, max float64) Predicate {
	want := graph.Range{Min: min, Max: max}
	return func(n graph.Node) bool {
		return n.Range != nil && n.Range.Equal(want)
	}
}

// LabelEquals matches nodes carrying the given label.
func LabelEquals(label string) Predicate {
	return func(n graph.Node) bool {
		return n.Label == label
	}
}

// KindIs matches nodes of the given kind.
func KindIs(kind graph.NodeKind) Predicate {
	return func(n graph.Node) bool {
		return n.Kind == kind
	}
}

// All matches nodes satisfying every predicate.
func All(preds ...Predicate) Predicate {
	return func(n graph.Node) bool {
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

// Resolve returns the first node matching pred.
func Resolve(nodes []graph.Node, pred Predicate) (graph.Node, bool) {
	return lo.Find(nodes, func(n graph.Node) bool { return pred(n) })
}

// Rule describes how one parameter finds its node.
type Rule struct {
	Name      string
	Predicate Predicate
	Describe  string // human-readable predicate for logs, e.g. "range==[80,250]"
}

// RangeRule binds name to the slider declaring [min, max].
func RangeRule(name string, min, max float64) Rule {
	return Rule{
		Name:      name,
		Predicate: All(KindIs(graph.NodeSlider), RangeEquals(min, max)),
		Describe:  fmt.Sprintf("range==[%g,%g]", min, max),
	}
}

// LabelRule binds name to the slider carrying label.
func LabelRule(name, label string) Rule {
	return Rule{
		Name:      name,
		Predicate: All(KindIs(graph.NodeSlider), LabelEquals(label)),
		Describe:  fmt.Sprintf("label==%q", label),
	}
}

// Binding is the name → node mapping for one loaded graph.
type Binding struct {
	ids        map[string]graph.NodeID
	nodes      map[string]graph.Node
	unresolved []string
}

// Bind runs the single resolution pass for a freshly loaded graph. Rules
// that match nothing are recorded as unresolved; their parameters stay
// local-only. A node claimed by an earlier rule is not handed out again.
func Bind(nodes []graph.Node, rules []Rule, logger *slog.Logger) *Binding {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Binding{
		ids:   make(map[string]graph.NodeID, len(rules)),
		nodes: make(map[string]graph.Node, len(rules)),
	}
	claimed := make(map[graph.NodeID]string)

	for _, r := range rules {
		n, ok := Resolve(nodes, func(n graph.Node) bool {
			_, taken := claimed[n.ID]
			return !taken && r.Predicate(n)
		})
		if !ok {
			b.unresolved = append(b.unresolved, r.Name)
			logger.Warn("parameter not bound; changes stay local",
				"parameter", r.Name, "predicate", r.Describe)
			continue
		}
		claimed[n.ID] = r.Name
		b.ids[r.Name] = n.ID
		b.nodes[r.Name] = n
		logger.Debug("parameter bound", "parameter", r.Name, "node", n.ID.Short(), "predicate", r.Describe)
	}
	return b
}

// Lookup returns the node ID bound to name.
func (b *Binding) Lookup(name string) (graph.NodeID, bool) {
	if b == nil {
		return graph.ZeroID, false
	}
	id, ok := b.ids[name]
	return id, ok
}

// Node returns the node bound to name as it was reported at bind time.
func (b *Binding) Node(name string) (graph.Node, bool) {
	if b == nil {
		return graph.Node{}, false
	}
	n, ok := b.nodes[name]
	return n, ok
}

// Unresolved returns the names whose rules matched no node.
func (b *Binding) Unresolved() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.unresolved...)
}

// Len returns the number of bound parameters.
func (b *Binding) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ids)
}

// String summarizes the binding for logs.
func (b *Binding) String() string {
	if b == nil {
		return "binding{}"
	}
	names := lo.Keys(b.ids)
	return fmt.Sprintf("binding{bound=%d unresolved=[%s]}", len(names), strings.Join(b.unresolved, ","))
}
