package engine

import (
	"fmt"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/kernel"
)

// decl is one node declared by a program run. Declarations are identified
// by their position in the run; a deterministic program declares the same
// sequence on every run.
type decl struct {
	kind     graph.NodeKind
	label    string
	rng      *graph.Range
	value    float64
	children []int
	text     string
}

// run collects the declarations and shown geometry of one program run.
type run struct {
	kern      kernel.Kernel
	overrides map[int]float64 // slider values by declaration index
	decls     []decl
	shown     []*sexpGeometry
}

func (r *run) declare(d decl) int {
	r.decls = append(r.decls, d)
	return len(r.decls) - 1
}

// geometry declares a geometry node and wraps its value.
func (r *run) geometry(label string, children []int, solid kernel.Solid, data graph.Geometry) *sexpGeometry {
	i := r.declare(decl{kind: graph.NodeGeometry, label: label, children: children})
	return &sexpGeometry{ordinal: i, label: label, solid: solid, data: data}
}

// registerBuiltins installs the knurl DSL into a zygomys environment. Source
// must be preprocessed with preprocessSource so that :keyword tokens arrive
// as recognizable strings and kebab-case names as snake_case.
func registerBuiltins(env *zygo.Zlisp, r *run) {

	// -----------------------------------------------------------------------
	// (slider :label "diameter" :min 80 :max 250 :value 120)
	// -----------------------------------------------------------------------
	env.AddFunction("slider", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("slider: %w", err)
		}
		lo, err := pa.requireFloat("min")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("slider: %w", err)
		}
		hi, err := pa.requireFloat("max")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("slider: %w", err)
		}
		if lo > hi {
			return zygo.SexpNull, fmt.Errorf("slider %q: min %g exceeds max %g", label, lo, hi)
		}
		value, err := pa.float("value", lo)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("slider: %w", err)
		}

		rng := graph.Range{Min: lo, Max: hi}
		value = rng.Clamp(value)
		i := r.declare(decl{kind: graph.NodeSlider, label: label, rng: &rng, value: value})
		if v, ok := r.overrides[i]; ok {
			value = rng.Clamp(v)
			r.decls[i].value = value
		}
		return &zygo.SexpFloat{Val: value}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (prism :sides 6 :diameter 120 :top-diameter 90 :height 150)
	// -----------------------------------------------------------------------
	env.AddFunction("prism", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		sides, dia, top, height, err := radialArgs(pa, 6)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prism: %w", err)
		}
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prism: %w", err)
		}
		mesh, err := prismMesh(sides, dia, top, height)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prism: %w", err)
		}
		return r.geometry(label, nil, nil, mesh), nil
	})

	// -----------------------------------------------------------------------
	// (spiral :diameter 120 :top-diameter 90 :height 150 :sides 64 :layer 0.3)
	// -----------------------------------------------------------------------
	env.AddFunction("spiral", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		sides, dia, top, height, err := radialArgs(pa, 64)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spiral: %w", err)
		}
		layer, err := pa.float("layer", 0.3)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spiral: %w", err)
		}
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spiral: %w", err)
		}
		curve, err := spiralCurve(sides, dia, top, height, layer)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spiral: %w", err)
		}
		return r.geometry(label, nil, nil, curve), nil
	})

	// -----------------------------------------------------------------------
	// (box :x 10 :y 20 :z 30)
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var dims [3]float64
		for i, key := range []string{"x", "y", "z"} {
			f, err := pa.positive(key)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: %w", err)
			}
			dims[i] = f
		}
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		s, err := r.kern.Box(dims[0], dims[1], dims[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return r.geometry(label, nil, s, nil), nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 50 :diameter 20)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		height, err := pa.positive("height")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		dia, err := pa.positive("diameter")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		s, err := r.kern.Cylinder(height, dia/2)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		return r.geometry(label, nil, s, nil), nil
	})

	// -----------------------------------------------------------------------
	// (solid-union a b ...), (solid-difference a b ...),
	// (solid-intersection a b ...)
	// -----------------------------------------------------------------------
	csg := map[string]func(a, b kernel.Solid) kernel.Solid{
		"solid_union":        r.kern.Union,
		"solid_difference":   r.kern.Difference,
		"solid_intersection": r.kern.Intersection,
	}
	for fname, op := range csg {
		env.AddFunction(fname, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			operands, err := flatten(pa.positional)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			if len(operands) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least two solids", name)
			}
			label, err := pa.string("label", "")
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}

			var acc kernel.Solid
			children := make([]int, 0, len(operands))
			for i, o := range operands {
				g, err := toGeometry(o)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d: %w", name, i, err)
				}
				if g.solid == nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d is not a solid", name, i)
				}
				children = append(children, g.ordinal)
				if acc == nil {
					acc = g.solid
				} else {
					acc = op(acc, g.solid)
				}
			}
			return r.geometry(label, children, acc, nil), nil
		})
	}

	// -----------------------------------------------------------------------
	// (place geom :at (vec3 0 0 10) :rotate 45)
	// -----------------------------------------------------------------------
	env.AddFunction("place", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("place requires a geometry as first argument")
		}
		child, err := toGeometry(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("place: %w", err)
		}
		var at vec3
		if v, ok := pa.kw["at"]; ok {
			if at, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("place: :at: %w", err)
			}
		}
		rot, err := pa.float("rotate", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("place: %w", err)
		}
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("place: %w", err)
		}

		// The node keeps its own label; the placed value is still named
		// after what it places.
		i := r.declare(decl{kind: graph.NodeTransform, label: label, children: []int{child.ordinal}})
		placed := &sexpGeometry{ordinal: i, label: label}
		if label == "" {
			placed.label = child.label
		}
		if child.solid != nil {
			s := child.solid
			if rot != 0 {
				s = r.kern.Rotate(s, 0, 0, rot)
			}
			if !at.isZero() {
				s = r.kern.Translate(s, at.X, at.Y, at.Z)
			}
			placed.solid = s
		} else {
			placed.data = child.data
			placed.transform = graph.Translation(at.X, at.Y, at.Z).
				Mul(graph.RotationZ(rot)).
				Mul(child.transform)
		}
		return placed, nil
	})

	// -----------------------------------------------------------------------
	// (show a b ...) marks geometry as render output.
	// -----------------------------------------------------------------------
	env.AddFunction("show", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		items, err := flatten(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("show: %w", err)
		}
		for i, item := range items {
			g, err := toGeometry(item)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("show: argument %d: %w", i, err)
			}
			r.shown = append(r.shown, g)
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (gcode path :feed 1200) renders a curve as G-code text.
	// -----------------------------------------------------------------------
	env.AddFunction("gcode", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("gcode requires exactly one curve")
		}
		g, err := toGeometry(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("gcode: %w", err)
		}
		curve, ok := g.data.(graph.CurveData)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("gcode: %s is not a curve", g.SexpString(nil))
		}
		feed, err := pa.float("feed", DefaultFeed)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("gcode: %w", err)
		}
		if feed <= 0 {
			return zygo.SexpNull, fmt.Errorf("gcode: :feed must be positive, got %g", feed)
		}
		return &zygo.SexpStr{S: toolpathGCode(curve, g.transform, feed)}, nil
	})

	// -----------------------------------------------------------------------
	// (text-output :label "gcode" text)
	// -----------------------------------------------------------------------
	env.AddFunction("text_output", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		label, err := pa.string("label", "")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("text-output: %w", err)
		}
		if label == "" {
			return zygo.SexpNull, fmt.Errorf("text-output: :label is required")
		}
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("text-output %q requires exactly one text value", label)
		}
		text, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("text-output %q: %w", label, err)
		}
		r.declare(decl{kind: graph.NodeKindOutput, label: label, text: text})
		return pa.positional[0], nil
	})
}

// radialArgs reads the shared :sides :diameter :top-diameter :height
// arguments of prism and spiral.
func radialArgs(pa kwArgs, defaultSides int) (sides int, dia, top, height float64, err error) {
	s, err := pa.float("sides", float64(defaultSides))
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if dia, err = pa.positive("diameter"); err != nil {
		return 0, 0, 0, 0, err
	}
	if top, err = pa.float("top-diameter", dia); err != nil {
		return 0, 0, 0, 0, err
	}
	if height, err = pa.positive("height"); err != nil {
		return 0, 0, 0, 0, err
	}
	return int(s), dia, top, height, nil
}
