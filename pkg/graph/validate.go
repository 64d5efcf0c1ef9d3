package graph

import (
	"fmt"
	"sort"
)

// ValidationSeverity indicates whether a validation finding makes the graph
// unusable or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // graph cannot be driven
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// Validate runs the structural checks on a node list snapshot. An empty
// slice means the graph is well formed. It never mutates the graph.
func Validate(g *Graph) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateLabels(g)...)
	errs = append(errs, validateRanges(g)...)
	return errs
}

// ValidateAll runs the structural and bindability checks and separates
// errors from warnings.
func ValidateAll(g *Graph) ValidationResult {
	var result ValidationResult
	all := append(Validate(g), ValidateBindable(g)...)
	for _, e := range all {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, e)
		} else {
			result.Errors = append(result.Errors, e)
		}
	}
	return result
}

// validateDAG checks for cycles using DFS with 3-color marking.
func validateDAG(g *Graph) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[NodeID]int)
	var errs []ValidationError

	var visit func(id NodeID) bool // returns true if cycle found
	visit = func(id NodeID) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", id.Short()),
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray
		node, ok := g.Nodes[id]
		if !ok {
			// Dangling reference; handled by validateReferences.
			color[id] = black
			return false
		}
		for _, childID := range node.Children {
			if visit(childID) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.Order {
		if color[id] == white && visit(id) {
			break
		}
	}
	return errs
}

// validateReferences checks that every child reference points to a node.
func validateReferences(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, id := range g.Order {
		node := g.Nodes[id]
		for _, childID := range node.Children {
			if _, ok := g.Nodes[childID]; !ok {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("child reference %s does not exist", childID.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateLabels checks that the label index points at existing nodes and
// warns about labels shared by several nodes; only the first is reachable
// by label.
func validateLabels(g *Graph) []ValidationError {
	var errs []ValidationError

	for label, id := range g.LabelIndex {
		if _, ok := g.Nodes[id]; !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("label index entry %q references non-existent node %s", label, id.Short()),
				Severity: SeverityError,
			})
		}
	}

	counts := make(map[string]int)
	for _, id := range g.Order {
		if l := g.Nodes[id].Label; l != "" {
			counts[l]++
		}
	}
	for _, label := range sortedKeys(counts) {
		if counts[label] > 1 {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("label %q is carried by %d nodes", label, counts[label]),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateRanges checks declared ranges and slider values.
func validateRanges(g *Graph) []ValidationError {
	var errs []ValidationError
	for _, id := range g.Order {
		n := g.Nodes[id]
		if n.Kind == NodeSlider && n.Range == nil {
			errs = append(errs, ValidationError{
				NodeID:   n.ID,
				Message:  "slider declares no range",
				Severity: SeverityError,
			})
			continue
		}
		if n.Range == nil {
			continue
		}
		if n.Range.Min >= n.Range.Max {
			errs = append(errs, ValidationError{
				NodeID:   n.ID,
				Message:  fmt.Sprintf("range [%g, %g] is empty", n.Range.Min, n.Range.Max),
				Severity: SeverityError,
			})
			continue
		}
		if !n.Range.Contains(n.Value) {
			errs = append(errs, ValidationError{
				NodeID:   n.ID,
				Message:  fmt.Sprintf("value %g outside range [%g, %g]", n.Value, n.Range.Min, n.Range.Max),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// ValidateBindable checks the contract graph authors must uphold for
// structural binding: every slider must be distinguishable by its range or
// by its label. Sliders sharing a range report a warning naming the range;
// a slider that shares its range and has no label cannot be bound at all.
func ValidateBindable(g *Graph) []ValidationError {
	var errs []ValidationError
	sliders := g.Sliders()

	for i, a := range sliders {
		if a.Range == nil {
			continue
		}
		shared := false
		for j, b := range sliders {
			if i == j || b.Range == nil {
				continue
			}
			if a.Range.Equal(*b.Range) {
				shared = true
				if i < j {
					errs = append(errs, ValidationError{
						NodeID: a.ID,
						Message: fmt.Sprintf("range [%g, %g] is shared with node %s; range bindings are ambiguous",
							a.Range.Min, a.Range.Max, b.ID.Short()),
						Severity: SeverityWarning,
					})
				}
			}
		}
		if shared && a.Label == "" {
			errs = append(errs, ValidationError{
				NodeID:   a.ID,
				Message:  "slider has neither a unique range nor a label",
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
