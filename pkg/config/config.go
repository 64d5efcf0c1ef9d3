// Package config loads knurl settings from HCL: the debounce interval,
// logging, the geometry kernel, artifact export and the parameter set with
// its bindings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/chazu/knurl/pkg/artifact"
	"github.com/chazu/knurl/pkg/binder"
	"github.com/chazu/knurl/pkg/engine"
	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/knob"
	"github.com/chazu/knurl/pkg/scheduler"
)

// PixelDensity is the name of the built-in local display parameter.
const PixelDensity = "pixel_density"

// Config is the resolved configuration.
type Config struct {
	Debounce   time.Duration
	Log        LogConfig
	Kernel     KernelConfig
	Artifact   ArtifactConfig
	Parameters []Parameter
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// KernelConfig selects the solid modeling kernel used by the engine.
type KernelConfig struct {
	Name      string // sdfx or manifold
	MeshCells int    // sdfx marching cubes resolution; 0 keeps the default
	Segments  int    // manifold cylinder segments; 0 keeps the default
}

// NewEngine builds an engine using the configured kernel.
func (k KernelConfig) NewEngine(opts ...engine.Option) (*engine.Engine, error) {
	kern, err := engine.NewKernel(k.Name, k.MeshCells, k.Segments)
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(append([]engine.Option{engine.WithKernel(kern)}, opts...)...), nil
}

// ArtifactConfig controls artifact extraction and export.
type ArtifactConfig struct {
	Label     string
	Dir       string
	Prefix    string
	Extension string
}

// Parameter is a tunable parameter and how it finds its graph node. A
// Local parameter never binds and only drives display state.
type Parameter struct {
	knob.Spec
	BindRange *graph.Range
	BindLabel string
	Local     bool
}

// Rule returns the binding rule for p. Parameters without an explicit bind
// block bind by their name as label. ok is false for local parameters.
func (p Parameter) Rule() (rule binder.Rule, ok bool) {
	switch {
	case p.Local:
		return binder.Rule{}, false
	case p.BindRange != nil:
		return binder.RangeRule(p.Name, p.BindRange.Min, p.BindRange.Max), true
	case p.BindLabel != "":
		return binder.LabelRule(p.Name, p.BindLabel), true
	default:
		return binder.LabelRule(p.Name, p.Name), true
	}
}

// Specs returns the knob specs of all parameters.
func (c *Config) Specs() []knob.Spec {
	specs := make([]knob.Spec, len(c.Parameters))
	for i, p := range c.Parameters {
		specs[i] = p.Spec
	}
	return specs
}

// Rules returns the binding rules of all non-local parameters.
func (c *Config) Rules() []binder.Rule {
	var rules []binder.Rule
	for _, p := range c.Parameters {
		if r, ok := p.Rule(); ok {
			rules = append(rules, r)
		}
	}
	return rules
}

// Parameter returns the named parameter.
func (c *Config) Parameter(name string) (Parameter, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Default returns the built-in configuration, matching the vase example.
func Default() *Config {
	return &Config{
		Debounce: scheduler.DefaultDebounce,
		Log:      LogConfig{Level: "info", Format: "text"},
		Kernel:   KernelConfig{Name: engine.KernelSdfx},
		Artifact: ArtifactConfig{
			Label:     artifact.DefaultLabel,
			Dir:       ".",
			Prefix:    "knurl",
			Extension: "gcode",
		},
		Parameters: []Parameter{
			{
				Spec:      knob.Spec{Name: "diameter", Label: "Diameter", Value: 120, Min: 80, Max: 250, Step: 1, MajorStep: 10},
				BindRange: &graph.Range{Min: 80, Max: 250},
			},
			{
				Spec:      knob.Spec{Name: "height", Label: "Height", Value: 150, Min: 50, Max: 300, Step: 1, MajorStep: 10},
				BindRange: &graph.Range{Min: 50, Max: 300},
			},
			{
				Spec:      knob.Spec{Name: "taper", Label: "Taper", Value: 0.8, Min: 0.5, Max: 1.5, Step: 0.01, MajorStep: 0.1},
				BindLabel: "taper",
			},
			{
				Spec:  knob.Spec{Name: PixelDensity, Label: "Pixel density", Value: 1, Min: 0.5, Max: 3, Step: 0.1, MajorStep: 0.5},
				Local: true,
			},
		},
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %s must not be negative", c.Debounce))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if !lo.Contains(engine.KernelNames, c.Kernel.Name) {
		errs = append(errs, fmt.Errorf("unknown kernel %q", c.Kernel.Name))
	}
	if c.Kernel.MeshCells < 0 || c.Kernel.Segments < 0 {
		errs = append(errs, errors.New("kernel mesh_cells and segments must not be negative"))
	}
	if c.Artifact.Label == "" {
		errs = append(errs, errors.New("artifact label must not be empty"))
	}

	seen := make(map[string]bool)
	for _, p := range c.Parameters {
		if err := p.Spec.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("parameter %q declared twice", p.Name))
		}
		seen[p.Name] = true
		if p.BindRange != nil && !(p.BindRange.Min < p.BindRange.Max) {
			errs = append(errs, fmt.Errorf("parameter %q: bind range [%g, %g] is empty", p.Name, p.BindRange.Min, p.BindRange.Max))
		}
		if p.Local && (p.BindRange != nil || p.BindLabel != "") {
			errs = append(errs, fmt.Errorf("parameter %q is local and cannot bind", p.Name))
		}
	}
	return errors.Join(errs...)
}
