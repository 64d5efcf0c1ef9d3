package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bep/debounce"
	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/chazu/knurl/pkg/artifact"
	"github.com/chazu/knurl/pkg/config"
	"github.com/chazu/knurl/pkg/engine"
	"github.com/chazu/knurl/pkg/gauge"
	"github.com/chazu/knurl/pkg/knob"
	"github.com/chazu/knurl/pkg/scheduler"
	"github.com/chazu/knurl/pkg/session"
	"github.com/chazu/knurl/pkg/tessellate"
)

// Events pushed to the frontend.
const (
	EventMeshes   = "knurl:meshes"
	EventGauge    = "knurl:gauge"
	EventArtifact = "knurl:artifact"
)

// GaugeHideDelay keeps the gauge overlay up briefly after a drag ends.
const GaugeHideDelay = 400 * time.Millisecond

// colorPalette is a default palette used to assign distinct colors to
// primitives.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App is the Wails backend. It exposes methods to the frontend via bindings.
type App struct {
	ctx     context.Context
	cfg     *config.Config
	logger  *slog.Logger
	session *session.Session
	initial string

	// emit publishes a frontend event. It is a no-op until startup.
	emit      func(event string, data ...any)
	hideGauge func(f func())
	now       func() time.Time
}

// MeshData is the JSON-serializable primitive format sent to the frontend.
type MeshData struct {
	Kind     string    `json:"kind"`
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// ParamData describes one dial.
type ParamData struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Bound   bool    `json:"bound"`
}

// TickData is one gauge mark.
type TickData struct {
	Angle   float64 `json:"angle"`
	Value   float64 `json:"value"`
	Label   string  `json:"label"`
	Major   bool    `json:"major"`
	Current bool    `json:"current"`
	Opacity float64 `json:"opacity"`
}

// GaugeEvent is the payload of EventGauge.
type GaugeEvent struct {
	Visible   bool       `json:"visible"`
	Parameter string     `json:"parameter,omitempty"`
	Ticks     []TickData `json:"ticks,omitempty"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// LoadResult is returned to the frontend after a graph load.
type LoadResult struct {
	Parameters []ParamData     `json:"parameters"`
	Unresolved []string        `json:"unresolved"`
	Meshes     []MeshData      `json:"meshes"`
	Artifact   string          `json:"artifact"`
	Errors     []EvalErrorData `json:"errors"`
}

// NewApp creates an App driving the reference engine with the given
// configuration. initial is loaded on startup when non-empty.
func NewApp(cfg *config.Config, logger *slog.Logger, initial string) (*App, error) {
	a := &App{
		cfg:       cfg,
		logger:    logger,
		initial:   initial,
		emit:      func(string, ...any) {},
		hideGauge: debounce.New(GaugeHideDelay),
		now:       time.Now,
	}
	eng, err := cfg.Kernel.NewEngine(engine.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s, err := session.New(eng, cfg.Specs(),
		session.WithRules(cfg.Rules()),
		session.WithLogger(logger),
		session.WithArtifactLabel(cfg.Artifact.Label),
		session.WithObserver(observer{a}),
		session.WithSchedulerOptions(scheduler.WithDebounce(cfg.Debounce)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	a.session = s
	return a, nil
}

// startup is called by Wails on app startup. Events are only emitted once
// the runtime context is known.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.emit = func(event string, data ...any) {
		runtime.EventsEmit(ctx, event, data...)
	}
	if a.initial != "" {
		if res := a.LoadGraph(a.initial); len(res.Errors) > 0 {
			a.logger.Error("initial graph failed to load", "err", res.Errors[0].Message)
		}
	}
}

func (a *App) shutdown(ctx context.Context) {
	a.session.Close()
}

// LoadGraph loads a graph definition and runs its initial evaluation.
func (a *App) LoadGraph(source string) LoadResult {
	result := LoadResult{
		Unresolved: []string{},
		Errors:     []EvalErrorData{},
	}

	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.session.Load(ctx, source); err != nil {
		a.logger.Warn("graph load failed", "err", err)
		result.Errors = evalErrors(err)
	}

	result.Parameters = a.Parameters()
	result.Unresolved = append(result.Unresolved, a.session.Unresolved()...)
	result.Meshes = a.Meshes()
	result.Artifact = a.Artifact()
	return result
}

// evalErrors flattens err into frontend errors, keeping script positions.
func evalErrors(err error) []EvalErrorData {
	var evalErrs engine.EvalErrors
	if errors.As(err, &evalErrs) {
		return lo.Map(evalErrs, func(e engine.EvalError, _ int) EvalErrorData {
			return EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message}
		})
	}
	return []EvalErrorData{{Message: err.Error()}}
}

// Parameters returns every dial with its live value.
func (a *App) Parameters() []ParamData {
	return lo.Map(a.session.Specs(), func(s knob.Spec, _ int) ParamData {
		return ParamData{
			Name:    s.Name,
			Label:   s.DisplayLabel(),
			Value:   s.Value,
			Display: s.Format(s.Value),
			Min:     s.Min,
			Max:     s.Max,
			Step:    s.Step,
			Bound:   a.session.Bound(s.Name),
		}
	})
}

// BeginDrag starts a drag on the named dial at pointer position x.
func (a *App) BeginDrag(name string, x float64) error {
	return a.session.BeginDrag(name, x)
}

// Drag maps pointer position x to the dragged dial's new value and pushes
// the refreshed gauge.
func (a *App) Drag(x float64) (float64, error) {
	v, err := a.session.UpdateDrag(x)
	if err != nil {
		return 0, err
	}
	a.emitGauge()
	return v, nil
}

// EndDrag ends the current drag.
func (a *App) EndDrag() {
	a.session.EndDrag()
}

// SetParameter assigns a dial directly, e.g. from a text field.
func (a *App) SetParameter(name string, value float64) (float64, error) {
	return a.session.Set(name, value)
}

// Gauge returns the visible ticks of the dragged dial, empty when idle.
func (a *App) Gauge() []TickData {
	ticks, ok := a.session.Gauge()
	if !ok {
		return []TickData{}
	}
	return tickData(ticks)
}

// PixelDensity returns the render surface density.
func (a *App) PixelDensity() float64 {
	return a.session.PixelDensity()
}

// Meshes returns the current primitive set.
func (a *App) Meshes() []MeshData {
	return meshData(a.session.Primitives())
}

// Artifact returns the current text artifact, empty when none exists.
func (a *App) Artifact() string {
	text, _ := a.session.Artifact()
	return text
}

// ExportArtifact writes the current artifact to a timestamped file in the
// configured directory and returns its path.
func (a *App) ExportArtifact() (string, error) {
	text, ok := a.session.Artifact()
	if !ok {
		return "", errors.New("no artifact available")
	}
	c := a.cfg.Artifact
	path, err := artifact.Export(c.Dir, c.Prefix, c.Extension, text, a.now())
	if err != nil {
		return "", err
	}
	a.logger.Info("artifact exported", "path", path, "bytes", len(text))
	return path, nil
}

func (a *App) emitGauge() {
	ticks, ok := a.session.Gauge()
	if !ok {
		return
	}
	a.emit(EventGauge, GaugeEvent{Visible: true, Parameter: a.session.Active(), Ticks: tickData(ticks)})
}

func meshData(prims []*tessellate.Primitive) []MeshData {
	out := make([]MeshData, 0, len(prims))
	for i, p := range prims {
		out = append(out, MeshData{
			Kind:     string(p.Kind),
			Vertices: p.Vertices,
			Normals:  p.Normals,
			Indices:  p.Indices,
			PartName: p.Name,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return out
}

func tickData(ticks []gauge.Tick) []TickData {
	return lo.Map(ticks, func(t gauge.Tick, _ int) TickData {
		return TickData{
			Angle:   t.Angle,
			Value:   t.Value,
			Label:   t.Label,
			Major:   t.Major,
			Current: t.Current,
			Opacity: t.Opacity,
		}
	})
}

// observer forwards session notifications to the frontend. It is kept off
// App so its methods are not bound.
type observer struct{ a *App }

func (o observer) InteractionStarted(name string) {
	o.a.hideGauge(func() {}) // cancel a pending hide
	o.a.emitGauge()
}

func (o observer) InteractionEnded(name string) {
	o.a.hideGauge(func() {
		o.a.emit(EventGauge, GaugeEvent{Visible: false, Parameter: name})
	})
}

func (o observer) PrimitivesReplaced(prims []*tessellate.Primitive) {
	o.a.emit(EventMeshes, meshData(prims))
}

func (o observer) ArtifactUpdated(text string) {
	o.a.emit(EventArtifact, text)
}
