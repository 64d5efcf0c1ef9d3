package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/kernel"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// vec3 is a point or offset.
type vec3 struct{ X, Y, Z float64 }

func (v vec3) isZero() bool { return v == vec3{} }

// sexpVec3 wraps a vec3.
type sexpVec3 struct {
	vec vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpGeometry is the value of every geometry-producing builtin. Exactly one
// of solid and data is set: solids stay in the kernel until they are shown,
// meshes and curves carry their interchange data and a placement.
type sexpGeometry struct {
	ordinal   int // declaration index of the node that produced it
	label     string
	solid     kernel.Solid
	data      graph.Geometry
	transform graph.Transform
}

func (g *sexpGeometry) SexpString(ps *zygo.PrintState) string {
	switch {
	case g.solid != nil:
		return fmt.Sprintf("(solid #%d)", g.ordinal)
	case g.label != "":
		return fmt.Sprintf("(geometry %q)", g.label)
	default:
		return fmt.Sprintf("(geometry #%d)", g.ordinal)
	}
}
func (g *sexpGeometry) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW reports whether s is a preprocessed keyword and returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			// Trailing keyword with no value.
			result.kw[name] = zygo.SexpNull
			i++
		}
	}
	return result
}

// float returns keyword key as a number, or def when absent.
func (a kwArgs) float(key string, def float64) (float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf(":%s: %w", key, err)
	}
	return f, nil
}

// requireFloat returns keyword key as a number and fails when absent.
func (a kwArgs) requireFloat(key string) (float64, error) {
	if _, ok := a.kw[key]; !ok {
		return 0, fmt.Errorf(":%s is required", key)
	}
	return a.float(key, 0)
}

// positive is requireFloat for strictly positive quantities.
func (a kwArgs) positive(key string) (float64, error) {
	f, err := a.requireFloat(key)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf(":%s must be positive, got %g", key, f)
	}
	return f, nil
}

// string returns keyword key as a string, or def when absent.
func (a kwArgs) string(key, def string) (string, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	s, err := toString(v)
	if err != nil {
		return "", fmt.Errorf(":%s: %w", key, err)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toGeometry extracts a geometry value.
func toGeometry(s zygo.Sexp) (*sexpGeometry, error) {
	if g, ok := s.(*sexpGeometry); ok {
		return g, nil
	}
	return nil, fmt.Errorf("expected geometry, got %T (%s)", s, s.SexpString(nil))
}

// flatten expands list and array arguments one level so builtins accept
// both (show a b) and (show (list a b)).
func flatten(args []zygo.Sexp) ([]zygo.Sexp, error) {
	var out []zygo.Sexp
	for _, a := range args {
		switch v := a.(type) {
		case *zygo.SexpPair:
			items, err := zygo.ListToArray(v)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		case *zygo.SexpArray:
			out = append(out, v.Val...)
		case *zygo.SexpSentinel:
			if v != zygo.SexpNull {
				out = append(out, a)
			}
		default:
			out = append(out, a)
		}
	}
	return out, nil
}
