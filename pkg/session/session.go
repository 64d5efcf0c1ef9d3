// Package session composes the sync pipeline: drags become quantized values,
// bound values are debounced into evaluations, and each successful pass
// replaces the primitive set and refreshes the text artifact.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/chazu/knurl/pkg/artifact"
	"github.com/chazu/knurl/pkg/binder"
	"github.com/chazu/knurl/pkg/gauge"
	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/knob"
	"github.com/chazu/knurl/pkg/logging"
	"github.com/chazu/knurl/pkg/scheduler"
	"github.com/chazu/knurl/pkg/tessellate"
)

// PixelDensityParam names the local parameter driving the render surface.
const PixelDensityParam = "pixel_density"

var (
	ErrUnknownParameter = errors.New("session: unknown parameter")
	ErrNoDrag           = errors.New("session: no drag in progress")
)

// Observer receives pipeline notifications. PrimitivesReplaced and
// ArtifactUpdated are called from the evaluation goroutine.
type Observer interface {
	InteractionStarted(name string)
	InteractionEnded(name string)
	PrimitivesReplaced(prims []*tessellate.Primitive)
	ArtifactUpdated(text string)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) InteractionStarted(string)                  {}
func (NopObserver) InteractionEnded(string)                    {}
func (NopObserver) PrimitivesReplaced([]*tessellate.Primitive) {}
func (NopObserver) ArtifactUpdated(string)                     {}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver registers the observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithRules replaces the binding rules. By default every parameter binds to
// the slider labelled with its name.
func WithRules(rules []binder.Rule) Option {
	return func(s *Session) { s.rules = rules }
}

// WithArtifactLabel sets the label of the artifact node.
func WithArtifactLabel(label string) Option {
	return func(s *Session) { s.artifactLabel = label }
}

// WithSchedulerOptions forwards options to the evaluation scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(s *Session) { s.schedOpts = append(s.schedOpts, opts...) }
}

// WithNow replaces the clock used to timestamp artifacts.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session drives one evaluator. All evaluator access goes through its
// scheduler.
type Session struct {
	eval          graph.Evaluator
	sched         *scheduler.Scheduler
	schedOpts     []scheduler.Option
	logger        *slog.Logger
	observer      Observer
	rules         []binder.Rule
	artifactLabel string
	now           func() time.Time
	artifact      artifact.Store

	mu      sync.RWMutex
	order   []string
	specs   map[string]knob.Spec // Value is the live value
	graph   *graph.Graph
	binding *binder.Binding
	drag    *knob.Session
	active  string // name of the dragged parameter, never its value
	prims   []*tessellate.Primitive
}

// New creates a Session for the given parameters. Invalid specs are
// rejected.
func New(eval graph.Evaluator, specs []knob.Spec, opts ...Option) (*Session, error) {
	s := &Session{
		eval:          eval,
		logger:        slog.Default(),
		observer:      NopObserver{},
		artifactLabel: artifact.DefaultLabel,
		now:           time.Now,
		specs:         make(map[string]knob.Spec, len(specs)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.specs[spec.Name]; dup {
			return nil, fmt.Errorf("parameter %q declared twice", spec.Name)
		}
		spec.Value = knob.Quantize(spec, spec.Value)
		s.specs[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}
	if s.rules == nil {
		s.rules = lo.Map(s.order, func(name string, _ int) binder.Rule {
			return binder.LabelRule(name, name)
		})
	}

	schedOpts := append([]scheduler.Option{
		scheduler.WithLogger(s.logger),
		scheduler.WithContext(logging.WithLogger(context.Background(), s.logger)),
	}, s.schedOpts...)
	s.sched = scheduler.New(s.evaluate, schedOpts...)
	return s, nil
}

// Load loads a graph definition, binds parameters to its nodes and runs the
// initial evaluation before any user change is considered. Pending changes
// for the previous graph are discarded when the new binding takes over. A
// failed initial evaluation leaves the graph loaded and is returned.
func (s *Session) Load(ctx context.Context, definition string) error {
	ctx = logging.WithLogger(ctx, s.logger)
	return s.sched.Exclusive(ctx, func(ctx context.Context) error {
		if err := s.eval.LoadGraph(ctx, definition); err != nil {
			return fmt.Errorf("loading graph: %w", err)
		}
		nodes := s.eval.ListNodes()
		g := graph.FromNodes(nodes)
		for _, w := range graph.ValidateBindable(g) {
			s.logger.Warn("graph binding contract", "node", w.NodeID.Short(), "problem", w.Message)
		}
		b := binder.Bind(nodes, s.rules, s.logger)

		// Changes submitted so far carry node ids of the previous graph.
		// Their values are already live and go out with the initial pass.
		s.mu.Lock()
		s.graph, s.binding = g, b
		s.sched.Reset()
		s.mu.Unlock()
		s.artifact.Clear()

		s.logger.Info("graph loaded", "nodes", len(nodes), "bound", b.Len(), "unresolved", len(b.Unresolved()))
		initial := scheduler.Request{Updates: s.boundValues(), RequestedAt: s.now()}
		if err := s.evaluate(ctx, initial); err != nil {
			return fmt.Errorf("initial evaluation: %w", err)
		}
		return nil
	})
}

// boundValues returns the live value of every bound parameter, keyed by
// node.
func (s *Session) boundValues() map[graph.NodeID]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	updates := make(map[graph.NodeID]float64)
	for _, name := range s.order {
		if id, ok := s.binding.Lookup(name); ok {
			updates[id] = s.specs[name].Value
		}
	}
	return updates
}

// evaluate is the scheduler task: push the batch, evaluate, convert and
// apply the result. Nothing is applied unless the evaluator succeeds.
func (s *Session) evaluate(ctx context.Context, req scheduler.Request) error {
	logger := logging.FromContext(ctx)

	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()

	for id, v := range req.Updates {
		if g == nil || g.Get(id) == nil {
			logger.Debug("dropping update for a node outside the loaded graph", "node", id.Short())
			continue
		}
		if err := s.eval.SetNodeProperty(id, graph.Property{Name: graph.ValueProperty, Value: v}); err != nil {
			return fmt.Errorf("setting node %s: %w", id.Short(), err)
		}
	}
	res, err := s.eval.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluating graph: %w", err)
	}

	records := make([]graph.GeometryRecord, 0, len(res.Geometry))
	for _, ref := range res.Geometry {
		rec, err := s.eval.FindGeometryByID(ref.ID)
		if err != nil {
			logger.Warn("skipping geometry", "id", ref.ID, "err", err)
			continue
		}
		rec.Transform = ref.Transform
		records = append(records, rec)
	}
	prims, _ := tessellate.ConvertAll(records, logger)

	s.mu.Lock()
	s.prims = prims
	s.mu.Unlock()
	s.observer.PrimitivesReplaced(prims)

	text, err := artifact.Extract(g, s.eval, s.artifactLabel)
	switch {
	case errors.Is(err, artifact.ErrNodeNotFound):
		logger.Debug("graph has no artifact node", "label", s.artifactLabel)
	case err != nil:
		logger.Warn("artifact left stale", "err", err)
	default:
		s.artifact.Set(text, s.now())
		s.observer.ArtifactUpdated(text)
	}

	logger.Debug("evaluation applied",
		"primitives", len(prims),
		"latency", s.now().Sub(req.RequestedAt))
	return nil
}

// Set assigns a parameter programmatically. The value is quantized and
// forwarded to the evaluator when the parameter is bound.
func (s *Session) Set(name string, v float64) (float64, error) {
	s.mu.Lock()
	spec, ok := s.specs[name]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	spec.Value = knob.Quantize(spec, v)
	s.specs[name] = spec
	id, bound := s.binding.Lookup(name)
	s.mu.Unlock()

	if bound {
		if err := s.sched.Submit(map[graph.NodeID]float64{id: spec.Value}); err != nil {
			return spec.Value, err
		}
	}
	return spec.Value, nil
}

// BeginDrag starts a drag gesture on name at pointer position x. A drag
// still in progress is ended first.
func (s *Session) BeginDrag(name string, x float64) error {
	s.mu.Lock()
	spec, ok := s.specs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	prev := s.active
	if s.drag != nil {
		s.drag.End()
	}
	s.drag = knob.Begin(spec, x)
	s.active = name
	s.mu.Unlock()

	if prev != "" {
		s.observer.InteractionEnded(prev)
	}
	s.observer.InteractionStarted(name)
	return nil
}

// UpdateDrag maps pointer position x to a value for the dragged parameter.
func (s *Session) UpdateDrag(x float64) (float64, error) {
	s.mu.Lock()
	if s.drag == nil {
		s.mu.Unlock()
		return 0, ErrNoDrag
	}
	name := s.active
	v := s.drag.Update(x)
	spec := s.specs[name]
	changed := spec.Value != v
	spec.Value = v
	s.specs[name] = spec
	id, bound := s.binding.Lookup(name)
	s.mu.Unlock()

	if changed && bound {
		if err := s.sched.Submit(map[graph.NodeID]float64{id: v}); err != nil {
			return v, err
		}
	}
	return v, nil
}

// EndDrag ends the current gesture. It is a no-op without one.
func (s *Session) EndDrag() {
	s.mu.Lock()
	if s.drag == nil {
		s.mu.Unlock()
		return
	}
	s.drag.End()
	name := s.active
	s.drag, s.active = nil, ""
	s.mu.Unlock()
	s.observer.InteractionEnded(name)
}

// Active returns the parameter being dragged, or "".
func (s *Session) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Gauge projects the dragged parameter's current value. ok is false when no
// drag is in progress.
func (s *Session) Gauge() (ticks []gauge.Tick, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return nil, false
	}
	return gauge.Project(s.specs[s.active]), true
}

// Value returns the live value of name.
func (s *Session) Value(name string) (float64, bool) {
	spec, ok := s.Spec(name)
	return spec.Value, ok
}

// Spec returns the spec of name with its live value.
func (s *Session) Spec(name string) (knob.Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[name]
	return spec, ok
}

// Specs returns all parameter specs in declaration order.
func (s *Session) Specs() []knob.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.order, func(name string, _ int) knob.Spec { return s.specs[name] })
}

// Bound reports whether name is bound to a node of the loaded graph.
func (s *Session) Bound(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.binding.Lookup(name)
	return ok
}

// Unresolved lists the parameters whose rules matched no node.
func (s *Session) Unresolved() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.binding.Unresolved()
}

// Graph returns the node snapshot of the loaded graph, or nil.
func (s *Session) Graph() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Primitives returns the current primitive set. The set is replaced
// wholesale by every successful evaluation.
func (s *Session) Primitives() []*tessellate.Primitive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*tessellate.Primitive(nil), s.prims...)
}

// Artifact returns the last successfully extracted artifact.
func (s *Session) Artifact() (string, bool) {
	return s.artifact.Get()
}

// ArtifactUpdatedAt returns when the artifact was last replaced.
func (s *Session) ArtifactUpdatedAt() time.Time {
	return s.artifact.UpdatedAt()
}

// PixelDensity returns the render surface density, 1 when the parameter is
// not configured.
func (s *Session) PixelDensity() float64 {
	if v, ok := s.Value(PixelDensityParam); ok {
		return v
	}
	return 1
}

// Flush evaluates immediately, folding in any debounced changes. It waits
// for an evaluation in flight first.
func (s *Session) Flush(ctx context.Context) error {
	return s.sched.RunNow(logging.WithLogger(ctx, s.logger), nil)
}

// State reports the scheduler phase.
func (s *Session) State() scheduler.State {
	return s.sched.State()
}

// Stats returns the scheduler counters.
func (s *Session) Stats() scheduler.Stats {
	return s.sched.Stats()
}

// WaitIdle blocks until no evaluation is pending or running.
func (s *Session) WaitIdle(ctx context.Context) error {
	return s.sched.WaitIdle(ctx)
}

// Close stops scheduling. An evaluation in flight runs to completion.
func (s *Session) Close() {
	s.sched.Close()
}
