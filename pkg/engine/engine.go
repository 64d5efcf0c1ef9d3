// Package engine is the reference graph evaluator. A graph definition is a
// zygomys Lisp program; running it declares slider, geometry and text output
// nodes. LoadGraph runs the program once to discover the nodes, and every
// Evaluate reruns it in a fresh sandbox with the current slider overrides.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/kernel"
	"github.com/chazu/knurl/pkg/kernel/sdfx"
)

// Compile-time interface check.
var _ graph.Evaluator = (*Engine)(nil)

// EvalError is a parse or runtime error in a graph definition.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalErrors is the error returned when a definition fails to run.
type EvalErrors []EvalError

func (es EvalErrors) Error() string {
	msgs := lo.Map(es, func(e EvalError, _ int) string { return e.Error() })
	return strings.Join(msgs, "; ")
}

// Option configures an Engine.
type Option func(*Engine)

// WithKernel replaces the solid modeling kernel.
func WithKernel(k kernel.Kernel) Option {
	return func(e *Engine) { e.kern = k }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTimeout sets the hard limit for one program run.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// Engine implements graph.Evaluator on top of zygomys. Calls are
// serialized internally, but a caller must not interleave SetNodeProperty
// and Evaluate from different goroutines and expect a particular order.
type Engine struct {
	kern    kernel.Kernel
	logger  *slog.Logger
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
	loaded     bool
	source     string // preprocessed
	nodes      []graph.Node
	index      map[graph.NodeID]int
	overrides  map[graph.NodeID]float64
	records    map[graph.GeometryID]graph.GeometryRecord
	outputs    map[graph.NodeID]*graph.NodeOutput
}

// NewEngine creates an Engine with the sdfx kernel.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  slog.Default(),
		timeout: EvalTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.kern == nil {
		e.kern = sdfx.New()
	}
	return e
}

// LoadGraph replaces the current graph. The definition is run once to
// discover its nodes, each of which gets a fresh identifier; identifiers
// are not stable across loads. A failing definition leaves the previous
// graph in place.
func (e *Engine) LoadGraph(ctx context.Context, definition string) error {
	src := preprocessSource(definition)

	out, err := e.execute(ctx, src, nil, false)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}

	ids := make([]graph.NodeID, len(out.decls))
	for i := range ids {
		ids[i] = graph.NodeID(ulid.Make().String())
	}
	nodes := make([]graph.Node, len(out.decls))
	index := make(map[graph.NodeID]int, len(out.decls))
	for i, d := range out.decls {
		nodes[i] = graph.Node{
			ID:       ids[i],
			Kind:     d.kind,
			Label:    d.label,
			Range:    d.rng,
			Value:    d.value,
			Children: lo.Map(d.children, func(c int, _ int) graph.NodeID { return ids[c] }),
		}
		index[ids[i]] = i
	}

	e.mu.Lock()
	e.loaded = true
	e.source = src
	e.nodes = nodes
	e.index = index
	e.overrides = make(map[graph.NodeID]float64)
	e.records = nil
	e.outputs = nil
	e.mu.Unlock()

	e.logger.Info("graph loaded",
		"nodes", len(nodes),
		"sliders", lo.CountBy(nodes, func(n graph.Node) bool { return n.Kind == graph.NodeSlider }))
	return nil
}

// ListNodes returns the loaded graph's nodes in declaration order. Slider
// values reflect pending overrides.
func (e *Engine) ListNodes() []graph.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]graph.Node, len(e.nodes))
	for i, n := range e.nodes {
		if n.Range != nil {
			r := *n.Range
			n.Range = &r
		}
		n.Children = append([]graph.NodeID(nil), n.Children...)
		if v, ok := e.overrides[n.ID]; ok {
			n.Value = v
		}
		out[i] = n
	}
	return out
}

// SetNodeProperty sets a slider's value for subsequent evaluations. The
// value is clamped to the slider's range.
func (e *Engine) SetNodeProperty(id graph.NodeID, prop graph.Property) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	n := e.nodes[i]
	if n.Kind != graph.NodeSlider {
		return fmt.Errorf("node %s is a %s, not a slider", id.Short(), n.Kind)
	}
	if prop.Name != graph.ValueProperty {
		return fmt.Errorf("node %s has no property %q", id.Short(), prop.Name)
	}
	v, err := number(prop.Value)
	if err != nil {
		return fmt.Errorf("node %s: %w", id.Short(), err)
	}
	e.overrides[id] = n.Range.Clamp(v)
	return nil
}

// Evaluate reruns the loaded definition with the current overrides.
func (e *Engine) Evaluate(ctx context.Context) (*graph.Result, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return nil, graph.ErrNoGraph
	}
	src := e.source
	overrides := make(map[int]float64, len(e.overrides))
	for id, v := range e.overrides {
		overrides[e.index[id]] = v
	}
	e.mu.Unlock()

	start := time.Now()
	out, err := e.execute(ctx, src, overrides, true)
	if err != nil {
		return nil, fmt.Errorf("evaluating graph: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkStructure(out.decls); err != nil {
		return nil, err
	}

	records := make(map[graph.GeometryID]graph.GeometryRecord, len(out.shown))
	outputs := make(map[graph.NodeID]*graph.NodeOutput)
	result := &graph.Result{Geometry: make([]graph.GeometryRef, 0, len(out.shown))}

	for k, s := range out.shown {
		nodeID := e.nodes[s.ordinal].ID
		gid := graph.GeometryID(fmt.Sprintf("%s/%d", nodeID, k))
		records[gid] = graph.GeometryRecord{ID: gid, Name: s.name, Data: s.data, Transform: s.transform}
		result.Geometry = append(result.Geometry, graph.GeometryRef{ID: gid, Transform: s.transform})
		appendEntry(outputs, nodeID, "geometry", graph.Payload{Kind: graph.PayloadGeometry, Value: gid})
	}
	for i, d := range out.decls {
		id := e.nodes[i].ID
		switch d.kind {
		case graph.NodeSlider:
			appendEntry(outputs, id, "value", graph.Payload{Kind: graph.PayloadNumber, Value: d.value})
		case graph.NodeKindOutput:
			appendEntry(outputs, id, "text", graph.Payload{Kind: graph.PayloadText, Value: d.text})
		}
	}
	e.records = records
	e.outputs = outputs

	e.logger.Debug("graph evaluated",
		"geometry", len(result.Geometry),
		"overrides", len(overrides),
		"duration", time.Since(start))
	return result, nil
}

// FindGeometryByID returns a geometry record of the most recent evaluation.
func (e *Engine) FindGeometryByID(id graph.GeometryID) (graph.GeometryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return graph.GeometryRecord{}, fmt.Errorf("%w: %s", graph.ErrGeometryNotFound, id)
	}
	return rec, nil
}

// GetNodeOutput returns a node's output slot from the most recent
// evaluation, or nil when the node produced nothing.
func (e *Engine) GetNodeOutput(id graph.NodeID) (*graph.NodeOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.index[id]; !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	return e.outputs[id], nil
}

func (e *Engine) checkStructure(decls []decl) error {
	if len(decls) != len(e.nodes) {
		return fmt.Errorf("graph structure changed: %d nodes declared, %d loaded", len(decls), len(e.nodes))
	}
	for i, d := range decls {
		if d.kind != e.nodes[i].Kind {
			return fmt.Errorf("graph structure changed: node %d is a %s, loaded as %s", i, d.kind, e.nodes[i].Kind)
		}
	}
	return nil
}

func appendEntry(outputs map[graph.NodeID]*graph.NodeOutput, id graph.NodeID, channel string, p graph.Payload) {
	out := outputs[id]
	if out == nil {
		out = &graph.NodeOutput{Channels: []graph.OutputChannel{{Name: channel}}}
		outputs[id] = out
	}
	out.Channels[0].Entries = append(out.Channels[0].Entries, p)
}

// ---------------------------------------------------------------------------
// Program runs
// ---------------------------------------------------------------------------

// shownRecord is a shown geometry ready for the record table.
type shownRecord struct {
	ordinal   int
	name      string
	data      graph.Geometry
	transform graph.Transform
}

// runOutput is everything a program run produced.
type runOutput struct {
	decls []decl
	shown []shownRecord
}

// execute runs src in a separate goroutine guarded by the timeout and the
// generation counter.
func (e *Engine) execute(ctx context.Context, src string, overrides map[int]float64, mesh bool) (*runOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- runResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		out, err := e.run(src, overrides, mesh)
		ch <- runResult{out: out, err: err}
	}()

	res, err := waitWithTimeout(ctx, ch, e.timeout, gen, &e.mu, &e.generation)
	if err != nil {
		return nil, err
	}
	return res.out, res.err
}

// run executes src in a fresh sandbox. When mesh is set, shown solids are
// tessellated by the kernel.
func (e *Engine) run(src string, overrides map[int]float64, mesh bool) (*runOutput, error) {
	if strings.TrimSpace(src) == "" {
		return &runOutput{}, nil
	}

	// Sandbox mode keeps definitions away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	r := &run{kern: e.kern, overrides: overrides}
	registerBuiltins(env, r)

	if err := env.LoadString(src); err != nil {
		return nil, EvalErrors(parseZygomysError(err))
	}
	if _, err := env.Run(); err != nil {
		return nil, EvalErrors(parseZygomysError(err))
	}

	out := &runOutput{decls: r.decls}
	if !mesh {
		return out, nil
	}
	for _, g := range r.shown {
		rec := shownRecord{ordinal: g.ordinal, name: g.label, data: g.data, transform: g.transform}
		if g.solid != nil {
			m, err := e.kern.ToMesh(g.solid)
			if err != nil {
				return nil, fmt.Errorf("meshing %s: %w", g.SexpString(nil), err)
			}
			rec.data, rec.transform = m, graph.Identity()
		}
		if rec.transform.IsZero() {
			rec.transform = graph.Identity()
		}
		out.shown = append(out.shown, rec)
	}
	return out, nil
}

// number converts a property value to float64.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value of type %T is not a number", v)
	}
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalErrors, extracting
// the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
