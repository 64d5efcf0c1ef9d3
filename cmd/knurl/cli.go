package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/chazu/knurl/pkg/artifact"
	"github.com/chazu/knurl/pkg/binder"
	"github.com/chazu/knurl/pkg/config"
	"github.com/chazu/knurl/pkg/engine"
	"github.com/chazu/knurl/pkg/gauge"
	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/logging"
	"github.com/chazu/knurl/pkg/scheduler"
	"github.com/chazu/knurl/pkg/session"
	"github.com/chazu/knurl/pkg/tessellate"
)

// env is the state shared by all commands once flags are parsed.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	now    func() time.Time
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(stdout, stderr io.Writer) *cli.App {
	e := &env{stdout: stdout, now: time.Now}
	app := &cli.App{
		Name:    "knurl",
		Usage:   "Drive a parametric graph from the command line",
		Version: Version,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "HCL configuration file"},
			&cli.StringFlag{Name: "log-level", Usage: "Override the configured log level"},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Default()
			if path := c.String("config"); path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				cfg = loaded
			}
			if lvl := c.String("log-level"); lvl != "" {
				cfg.Log.Level = lvl
			}
			e.cfg = cfg
			e.logger = logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
			return nil
		},
		Commands: []*cli.Command{
			nodesCmd(e),
			renderCmd(e),
			exportCmd(e),
			gaugeCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

var setFlag = &cli.StringSliceFlag{
	Name:    "set",
	Aliases: []string{"s"},
	Usage:   "Parameter override name=value (repeatable)",
}

// NodeOutput is one row of the nodes command.
type NodeOutput struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Label     string       `json:"label,omitempty"`
	Range     *graph.Range `json:"range,omitempty"`
	Value     float64      `json:"value"`
	Parameter string       `json:"parameter,omitempty"`
}

// BindingOutput is the node a parameter resolved to.
type BindingOutput struct {
	Parameter string       `json:"parameter"`
	NodeID    string       `json:"node_id"`
	Label     string       `json:"label,omitempty"`
	Range     *graph.Range `json:"range,omitempty"`
}

// NodesOutput is the result of the nodes command.
type NodesOutput struct {
	Nodes      []NodeOutput    `json:"nodes"`
	Bindings   []BindingOutput `json:"bindings"`
	Unresolved []string        `json:"unresolved"`
	Warnings   []string     `json:"warnings"`
}

// nodesCmd lists the nodes of a graph and the parameter bound to each.
func nodesCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "nodes",
		Usage:     "List a graph's nodes and parameter bindings",
		ArgsUsage: "<graph>",
		Action: func(c *cli.Context) error {
			source, err := readGraph(c)
			if err != nil {
				return outputError(err)
			}
			eng, err := e.cfg.Kernel.NewEngine(engine.WithLogger(e.logger))
			if err != nil {
				return outputError(err)
			}
			if err := eng.LoadGraph(c.Context, source); err != nil {
				return outputError(err)
			}

			nodes := eng.ListNodes()
			b := binder.Bind(nodes, e.cfg.Rules(), e.logger)
			owner := make(map[graph.NodeID]string)
			bindings := []BindingOutput{}
			for _, p := range e.cfg.Parameters {
				n, ok := b.Node(p.Name)
				if !ok {
					continue
				}
				owner[n.ID] = p.Name
				bindings = append(bindings, BindingOutput{
					Parameter: p.Name,
					NodeID:    string(n.ID),
					Label:     n.Label,
					Range:     n.Range,
				})
			}

			out := NodesOutput{
				Nodes: lo.Map(nodes, func(n graph.Node, _ int) NodeOutput {
					return NodeOutput{
						ID:        string(n.ID),
						Kind:      n.Kind.String(),
						Label:     n.Label,
						Range:     n.Range,
						Value:     n.Value,
						Parameter: owner[n.ID],
					}
				}),
				Bindings:   bindings,
				Unresolved: append([]string{}, b.Unresolved()...),
				Warnings: lo.Map(graph.ValidateAll(graph.FromNodes(nodes)).Warnings, func(w graph.ValidationError, _ int) string {
					return w.Error()
				}),
			}
			return e.outputJSON(out)
		},
	}
}

// PrimitiveOutput summarizes one render primitive.
type PrimitiveOutput struct {
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Vertices  int    `json:"vertices"`
	Triangles int    `json:"triangles"`
}

// RenderOutput is the result of the render command.
type RenderOutput struct {
	Parameters    map[string]float64 `json:"parameters"`
	Primitives    []PrimitiveOutput  `json:"primitives"`
	BoundsMin     *[3]float32        `json:"bounds_min,omitempty"`
	BoundsMax     *[3]float32        `json:"bounds_max,omitempty"`
	Unresolved    []string           `json:"unresolved"`
	ArtifactBytes int                `json:"artifact_bytes"`
}

// renderCmd evaluates a graph with overrides and summarizes the primitives.
func renderCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Evaluate a graph and summarize its primitives",
		ArgsUsage: "<graph>",
		Flags:     []cli.Flag{setFlag},
		Action: func(c *cli.Context) error {
			s, err := e.evaluate(c)
			if err != nil {
				return outputError(err)
			}
			defer s.Close()

			prims := s.Primitives()
			out := RenderOutput{
				Parameters: make(map[string]float64),
				Primitives: lo.Map(prims, func(p *tessellate.Primitive, _ int) PrimitiveOutput {
					return PrimitiveOutput{
						Name:      p.Name,
						Kind:      string(p.Kind),
						Vertices:  p.VertexCount(),
						Triangles: p.TriangleCount(),
					}
				}),
				Unresolved: append([]string{}, s.Unresolved()...),
			}
			for _, spec := range s.Specs() {
				out.Parameters[spec.Name] = spec.Value
			}
			if mn, mx, ok := tessellate.Bounds(prims); ok {
				out.BoundsMin, out.BoundsMax = &mn, &mx
			}
			if text, ok := s.Artifact(); ok {
				out.ArtifactBytes = len(text)
			}
			return e.outputJSON(out)
		},
	}
}

// ExportOutput is the result of the export command.
type ExportOutput struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// exportCmd evaluates a graph and writes its artifact to a timestamped file.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Evaluate a graph and write its text artifact",
		ArgsUsage: "<graph>",
		Flags: []cli.Flag{
			setFlag,
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Output directory (default from config)"},
			&cli.StringFlag{Name: "prefix", Usage: "File name prefix (default from config)"},
		},
		Action: func(c *cli.Context) error {
			s, err := e.evaluate(c)
			if err != nil {
				return outputError(err)
			}
			defer s.Close()

			text, ok := s.Artifact()
			if !ok {
				return outputError(fmt.Errorf("graph has no %q artifact", e.cfg.Artifact.Label))
			}
			ac := e.cfg.Artifact
			if dir := c.String("dir"); dir != "" {
				ac.Dir = dir
			}
			if prefix := c.String("prefix"); prefix != "" {
				ac.Prefix = prefix
			}
			path, err := artifact.Export(ac.Dir, ac.Prefix, ac.Extension, text, e.now())
			if err != nil {
				return outputError(err)
			}
			return e.outputJSON(ExportOutput{Path: path, Bytes: len(text)})
		},
	}
}

// gaugeCmd prints the gauge ticks of a configured parameter.
func gaugeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "gauge",
		Usage: "Print the visible gauge ticks for a parameter",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "param", Aliases: []string{"p"}, Required: true, Usage: "Parameter name"},
			&cli.Float64Flag{Name: "value", Aliases: []string{"v"}, Usage: "Value to centre on (default: configured value)"},
			&cli.BoolFlag{Name: "major", Usage: "Only print major ticks"},
		},
		Action: func(c *cli.Context) error {
			p, ok := e.cfg.Parameter(c.String("param"))
			if !ok {
				return outputError(fmt.Errorf("unknown parameter %q", c.String("param")))
			}
			spec := p.Spec
			if c.IsSet("value") {
				spec.Value = c.Float64("value")
			}
			ticks := gauge.Project(spec)
			if c.Bool("major") {
				ticks = lo.Filter(ticks, func(t gauge.Tick, _ int) bool { return t.Major })
			}
			return e.outputJSON(ticks)
		},
	}
}

// evaluate loads the graph argument into a session, applies --set
// overrides and runs them through one evaluation.
func (e *env) evaluate(c *cli.Context) (*session.Session, error) {
	source, err := readGraph(c)
	if err != nil {
		return nil, err
	}
	sets, err := parseSets(c.StringSlice("set"))
	if err != nil {
		return nil, err
	}

	eng, err := e.cfg.Kernel.NewEngine(engine.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	s, err := session.New(eng, e.cfg.Specs(),
		session.WithRules(e.cfg.Rules()),
		session.WithLogger(e.logger),
		session.WithArtifactLabel(e.cfg.Artifact.Label),
		session.WithSchedulerOptions(scheduler.WithDebounce(e.cfg.Debounce)),
	)
	if err != nil {
		return nil, err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Load(ctx, source); err != nil {
		s.Close()
		return nil, err
	}
	if len(sets) == 0 {
		return s, nil
	}
	for _, kv := range sets {
		if _, err := s.Set(kv.name, kv.value); err != nil {
			s.Close()
			return nil, err
		}
	}
	if err := s.Flush(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

type override struct {
	name  string
	value float64
}

// parseSets parses name=value pairs, keeping their order.
func parseSets(raw []string) ([]override, error) {
	out := make([]override, 0, len(raw))
	for _, kv := range raw {
		name, val, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid override %q: want name=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", kv, err)
		}
		out = append(out, override{name: name, value: v})
	}
	return out, nil
}

func readGraph(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one graph file")
	}
	b, err := os.ReadFile(c.Args().First())
	if err != nil {
		return "", fmt.Errorf("reading graph: %w", err)
	}
	return string(b), nil
}

func (e *env) outputJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err for the CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}
