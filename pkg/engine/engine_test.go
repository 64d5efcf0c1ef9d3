package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/kernel/sdfx"
)

const vaseSource = `
; parametric vase
(def diameter (slider :label "diameter" :min 80 :max 250 :value 120))
(def height (slider :label "height" :min 50 :max 300 :value 150))
(def taper (slider :label "taper" :min 0.5 :max 1.5 :value 0.8))

(def vase-body (prism :label "body" :sides 12 :diameter diameter
                      :top-diameter (* diameter taper) :height height))
(def toolpath (spiral :label "path" :sides 32 :diameter diameter
                      :top-diameter (* diameter taper) :height height :layer 2))

(show vase-body (place toolpath :at (vec3 0 0 0.2)))
(text-output :label "gcode" (gcode toolpath :feed 1200))
`

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithKernel(sdfx.New(sdfx.WithMeshCells(16)))}, opts...)
	return NewEngine(opts...)
}

func mustLoad(t *testing.T, eng *Engine, src string) []graph.Node {
	t.Helper()
	if err := eng.LoadGraph(context.Background(), src); err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	return eng.ListNodes()
}

func mustEvaluate(t *testing.T, eng *Engine) *graph.Result {
	t.Helper()
	res, err := eng.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return res
}

func byLabel(t *testing.T, nodes []graph.Node, label string) graph.Node {
	t.Helper()
	for _, n := range nodes {
		if n.Label == label {
			return n
		}
	}
	t.Fatalf("no node labelled %q", label)
	return graph.Node{}
}

func TestLoadEmptySource(t *testing.T) {
	for _, src := range []string{"", "   \n\t  \n  "} {
		eng := newTestEngine()
		nodes := mustLoad(t, eng, src)
		if len(nodes) != 0 {
			t.Errorf("expected no nodes, got %d", len(nodes))
		}
		res := mustEvaluate(t, eng)
		if len(res.Geometry) != 0 {
			t.Errorf("expected no geometry, got %d", len(res.Geometry))
		}
	}
}

func TestLoadPlainExpressions(t *testing.T) {
	eng := newTestEngine()
	nodes := mustLoad(t, eng, "(def x 10)\n(def y 20)\n(+ x y)")
	if len(nodes) != 0 {
		t.Errorf("expected no nodes for plain Lisp, got %d", len(nodes))
	}
}

func TestEvaluateBeforeLoad(t *testing.T) {
	_, err := newTestEngine().Evaluate(context.Background())
	if !errors.Is(err, graph.ErrNoGraph) {
		t.Fatalf("expected ErrNoGraph, got %v", err)
	}
}

func TestLoadDiscoversNodes(t *testing.T) {
	eng := newTestEngine()
	nodes := mustLoad(t, eng, vaseSource)

	wantKinds := []graph.NodeKind{
		graph.NodeSlider, graph.NodeSlider, graph.NodeSlider,
		graph.NodeGeometry, graph.NodeGeometry, graph.NodeTransform,
		graph.NodeKindOutput,
	}
	if len(nodes) != len(wantKinds) {
		t.Fatalf("expected %d nodes, got %d", len(wantKinds), len(nodes))
	}
	for i, k := range wantKinds {
		if nodes[i].Kind != k {
			t.Errorf("node %d kind = %s, want %s", i, nodes[i].Kind, k)
		}
		if nodes[i].ID.IsZero() {
			t.Errorf("node %d has no ID", i)
		}
	}

	d := byLabel(t, nodes, "diameter")
	if d.Range == nil || d.Range.Min != 80 || d.Range.Max != 250 {
		t.Errorf("diameter range = %+v, want [80, 250]", d.Range)
	}
	if d.Value != 120 {
		t.Errorf("diameter value = %g, want 120", d.Value)
	}

	place := nodes[5]
	if len(place.Children) != 1 || place.Children[0] != nodes[4].ID {
		t.Errorf("place children = %v, want [%s]", place.Children, nodes[4].ID)
	}
	if place.Label != "" {
		t.Errorf("unlabelled place node got label %q", place.Label)
	}

	g := graph.FromNodes(nodes)
	if errs := graph.Validate(g); len(errs) != 0 {
		t.Errorf("loaded graph fails validation: %v", errs)
	}
}

func TestIDsAreFreshPerLoad(t *testing.T) {
	eng := newTestEngine()
	first := mustLoad(t, eng, vaseSource)
	second := mustLoad(t, eng, vaseSource)
	for i := range first {
		if first[i].ID == second[i].ID {
			t.Errorf("node %d kept ID %s across loads", i, first[i].ID)
		}
	}
}

func TestEvaluateVase(t *testing.T) {
	eng := newTestEngine()
	nodes := mustLoad(t, eng, vaseSource)
	res := mustEvaluate(t, eng)

	if len(res.Geometry) != 2 {
		t.Fatalf("expected 2 geometry refs, got %d", len(res.Geometry))
	}

	body, err := eng.FindGeometryByID(res.Geometry[0].ID)
	if err != nil {
		t.Fatalf("FindGeometryByID(body): %v", err)
	}
	mesh, ok := body.Data.(graph.MeshData)
	if !ok {
		t.Fatalf("body data is %T, want MeshData", body.Data)
	}
	if body.Name != "body" {
		t.Errorf("body name = %q", body.Name)
	}
	if mesh.VertexCount() != 26 || len(mesh.Faces) != 144 {
		t.Errorf("body mesh has %d vertices and %d face indices", mesh.VertexCount(), len(mesh.Faces))
	}
	if len(mesh.Normals) != 0 {
		t.Error("prism meshes carry no normals")
	}

	path, err := eng.FindGeometryByID(res.Geometry[1].ID)
	if err != nil {
		t.Fatalf("FindGeometryByID(path): %v", err)
	}
	curve, ok := path.Data.(graph.CurveData)
	if !ok {
		t.Fatalf("path data is %T, want CurveData", path.Data)
	}
	if curve.VertexCount() != 2401 {
		t.Errorf("spiral has %d points, want 2401", curve.VertexCount())
	}
	if path.Name != "path" {
		t.Errorf("placed geometry should be named after what it places, got %q", path.Name)
	}
	if path.Transform != graph.Translation(0, 0, 0.2) {
		t.Errorf("path transform = %v", path.Transform)
	}
	if res.Geometry[1].Transform != path.Transform {
		t.Error("ref and record transforms differ")
	}

	out, err := eng.GetNodeOutput(byLabel(t, nodes, "gcode").ID)
	if err != nil {
		t.Fatalf("GetNodeOutput: %v", err)
	}
	if out == nil || len(out.Channels) == 0 || len(out.Channels[0].Entries) == 0 {
		t.Fatal("gcode node has no output")
	}
	entry := out.Channels[0].Entries[0]
	text, _ := entry.Value.(string)
	if entry.Kind != graph.PayloadText || !strings.HasPrefix(text, "; knurl toolpath, 2401 points\n") {
		t.Errorf("unexpected gcode output %v %.40q", entry.Kind, text)
	}
	if !strings.Contains(text, "F1200") {
		t.Error("gcode should carry the feed rate")
	}
}

func TestSetNodePropertyDrivesEvaluation(t *testing.T) {
	eng := newTestEngine()
	nodes := mustLoad(t, eng, vaseSource)
	diameter := byLabel(t, nodes, "diameter")

	if err := eng.SetNodeProperty(diameter.ID, graph.Property{Name: graph.ValueProperty, Value: 200}); err != nil {
		t.Fatalf("SetNodeProperty: %v", err)
	}
	res := mustEvaluate(t, eng)
	path, _ := eng.FindGeometryByID(res.Geometry[1].ID)
	curve := path.Data.(graph.CurveData)
	if curve.Vertices[0] != 100 {
		t.Errorf("first spiral point x = %g, want 100", curve.Vertices[0])
	}

	out, _ := eng.GetNodeOutput(diameter.ID)
	if out == nil || out.Channels[0].Entries[0].Value != 200.0 {
		t.Errorf("slider output = %+v, want 200", out)
	}

	// Out of range values are clamped.
	if err := eng.SetNodeProperty(diameter.ID, graph.Property{Name: graph.ValueProperty, Value: 1000.0}); err != nil {
		t.Fatalf("SetNodeProperty: %v", err)
	}
	if got := byLabel(t, eng.ListNodes(), "diameter").Value; got != 250 {
		t.Errorf("clamped value = %g, want 250", got)
	}
}

func TestSetNodePropertyErrors(t *testing.T) {
	eng := newTestEngine()
	nodes := mustLoad(t, eng, vaseSource)
	slider := byLabel(t, nodes, "height")
	output := byLabel(t, nodes, "gcode")

	tests := []struct {
		name string
		id   graph.NodeID
		prop graph.Property
	}{
		{"unknown node", "nope", graph.Property{Name: "value", Value: 1.0}},
		{"not a slider", output.ID, graph.Property{Name: "value", Value: 1.0}},
		{"unknown property", slider.ID, graph.Property{Name: "colour", Value: 1.0}},
		{"not a number", slider.ID, graph.Property{Name: "value", Value: true}},
		{"unparsable string", slider.ID, graph.Property{Name: "value", Value: "tall"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := eng.SetNodeProperty(tt.id, tt.prop); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	err := eng.SetNodeProperty("nope", graph.Property{Name: "value", Value: 1.0})
	if !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestLookupsBeforeEvaluate(t *testing.T) {
	eng := newTestEngine()
	nodes := mustLoad(t, eng, vaseSource)

	out, err := eng.GetNodeOutput(nodes[0].ID)
	if err != nil || out != nil {
		t.Errorf("expected empty output before evaluation, got %v, %v", out, err)
	}
	if _, err := eng.GetNodeOutput("missing"); !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := eng.FindGeometryByID("missing"); !errors.Is(err, graph.ErrGeometryNotFound) {
		t.Errorf("expected ErrGeometryNotFound, got %v", err)
	}
}

func TestSolidsAreMeshedWithNormals(t *testing.T) {
	eng := newTestEngine()
	src := `
(def cup (solid-difference
           (box :x 20 :y 20 :z 20)
           (place (cylinder :height 30 :diameter 8) :at (vec3 10 10 -5))
           :label "cup"))
(show cup)
`
	nodes := mustLoad(t, eng, src)
	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(nodes))
	}
	diff := nodes[3]
	if diff.Label != "cup" || len(diff.Children) != 2 ||
		diff.Children[0] != nodes[0].ID || diff.Children[1] != nodes[2].ID {
		t.Errorf("unexpected difference node %+v", diff)
	}

	res := mustEvaluate(t, eng)
	if len(res.Geometry) != 1 {
		t.Fatalf("expected 1 geometry ref, got %d", len(res.Geometry))
	}
	rec, err := eng.FindGeometryByID(res.Geometry[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	mesh, ok := rec.Data.(graph.MeshData)
	if !ok {
		t.Fatalf("solid data is %T, want MeshData", rec.Data)
	}
	if mesh.VertexCount() == 0 || len(mesh.Normals) != len(mesh.Vertices) {
		t.Errorf("solid mesh has %d vertices and %d normal floats", mesh.VertexCount(), len(mesh.Normals))
	}
	if rec.Transform != graph.Identity() {
		t.Error("solids are placed by the kernel, their records carry the identity")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"unbalanced", "(+ 1 2", ""},
		{"undefined symbol", "(+ 1 undefined-symbol)", ""},
		{"inverted range", `(slider :label "x" :min 5 :max 1)`, "exceeds max"},
		{"missing bound", `(slider :label "x" :min 5)`, ":max is required"},
		{"gcode of mesh", `(gcode (prism :diameter 10 :height 10))`, "not a curve"},
		{"unlabelled output", `(text-output "x")`, ":label is required"},
		{"csg of mesh", `(solid-union (box :x 1 :y 1 :z 1) (prism :diameter 1 :height 1))`, "not a solid"},
		{"bad vec3", `(vec3 1 2)`, "exactly 3 arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine()
			err := eng.LoadGraph(context.Background(), tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			var evalErrs EvalErrors
			if !errors.As(err, &evalErrs) || len(evalErrs) == 0 {
				t.Fatalf("expected EvalErrors, got %T: %v", err, err)
			}
			if evalErrs[0].Message == "" {
				t.Error("eval error message should not be empty")
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestFailedLoadKeepsPreviousGraph(t *testing.T) {
	eng := newTestEngine()
	before := mustLoad(t, eng, vaseSource)
	if err := eng.LoadGraph(context.Background(), "(+ 1"); err == nil {
		t.Fatal("expected error")
	}
	after := eng.ListNodes()
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Error("failed load replaced the graph")
	}
	mustEvaluate(t, eng)
}

func TestStructureChangeIsAnError(t *testing.T) {
	eng := newTestEngine()
	src := `
(def n (slider :label "n" :min 0 :max 1 :value 0))
(cond (> n 0.5) (text-output :label "extra" "x") 0)
`
	nodes := mustLoad(t, eng, src)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	if err := eng.SetNodeProperty(nodes[0].ID, graph.Property{Name: "value", Value: 1}); err != nil {
		t.Fatal(err)
	}
	_, err := eng.Evaluate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "structure changed") {
		t.Fatalf("expected structure change error, got %v", err)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := newTestEngine()
	mustLoad(t, eng, vaseSource)
	first := mustEvaluate(t, eng)
	for i := 0; i < 3; i++ {
		res := mustEvaluate(t, eng)
		for j := range res.Geometry {
			if res.Geometry[j] != first.Geometry[j] {
				t.Errorf("iteration %d: geometry ref %d changed", i, j)
			}
		}
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestEngine().LoadGraph(ctx, vaseSource)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	if s := e.Error(); !strings.Contains(s, "line 5") || !strings.Contains(s, "something went wrong") {
		t.Errorf("Error() = %q", s)
	}
	if s := (EvalError{Message: "no location"}).Error(); strings.Contains(s, "line") {
		t.Errorf("Error() with no line should not mention a line, got %q", s)
	}
	errs := EvalErrors{{Line: 1, Message: "a"}, {Message: "b"}}
	if got := errs.Error(); got != "line 1: a; b" {
		t.Errorf("EvalErrors.Error() = %q", got)
	}
}

func TestWaitWithTimeout(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(1)

	t.Run("times out", func(t *testing.T) {
		ch := make(chan runResult) // never sends
		_, err := waitWithTimeout(context.Background(), ch, 20*time.Millisecond, 1, &mu, &gen)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("discards stale generation", func(t *testing.T) {
		ch := make(chan runResult, 1)
		ch <- runResult{}
		current := uint64(2)
		_, err := waitWithTimeout(context.Background(), ch, time.Second, 1, &mu, &current)
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	})

	t.Run("honours context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := waitWithTimeout(ctx, make(chan runResult), time.Minute, 1, &mu, &gen)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected DeadlineExceeded, got %v", err)
		}
	})

	t.Run("delivers", func(t *testing.T) {
		ch := make(chan runResult, 1)
		ch <- runResult{out: &runOutput{}}
		res, err := waitWithTimeout(context.Background(), ch, time.Second, 1, &mu, &gen)
		if err != nil || res.out == nil {
			t.Fatalf("unexpected result %+v, %v", res, err)
		}
	})
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{"error on line format", "Error on line 5: unexpected token\n", 5, "unexpected token"},
		{"no line info", "some generic error", 0, "some generic error"},
		{"line format lowercase", "error on line 12: missing paren", 12, "missing paren"},
		{"short line format", "line 3: bad", 3, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errors.New(tt.msg))
			if len(errs) == 0 {
				t.Fatal("expected at least one error")
			}
			if errs[0].Line != tt.wantLine {
				t.Errorf("line = %d, want %d", errs[0].Line, tt.wantLine)
			}
			if !strings.Contains(errs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}
