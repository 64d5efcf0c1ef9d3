package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/chazu/knurl/pkg/graph"
	"github.com/chazu/knurl/pkg/knob"
)

// hclFile is the top-level structure of a knurl.hcl for decoding.
type hclFile struct {
	Debounce   *string         `hcl:"debounce,optional"`
	Log        *hclLog         `hcl:"log,block"`
	Kernel     *hclKernel      `hcl:"kernel,block"`
	Artifact   *hclArtifact    `hcl:"artifact,block"`
	Parameters []*hclParameter `hcl:"parameter,block"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type hclKernel struct {
	Name      *string `hcl:"name,optional"`
	MeshCells *int    `hcl:"mesh_cells,optional"`
	Segments  *int    `hcl:"segments,optional"`
}

type hclArtifact struct {
	Label     *string `hcl:"label,optional"`
	Dir       *string `hcl:"dir,optional"`
	Prefix    *string `hcl:"prefix,optional"`
	Extension *string `hcl:"extension,optional"`
}

type hclParameter struct {
	Name      string   `hcl:"name,label"`
	Label     *string  `hcl:"label,optional"`
	Min       float64  `hcl:"min"`
	Max       float64  `hcl:"max"`
	Value     *float64 `hcl:"value,optional"`
	Step      *float64 `hcl:"step,optional"`
	MajorStep *float64 `hcl:"major_step,optional"`
	Local     *bool    `hcl:"local,optional"`
	Bind      *hclBind `hcl:"bind,block"`
}

type hclBind struct {
	Range hcl.Expression `hcl:"range,optional"`
	Label *string        `hcl:"label,optional"`
}

// Load reads and resolves the configuration file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source on top of Default and validates the result.
// Parameter blocks, when present, replace the default parameter set.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, diags)
	}

	cfg, err := parsed.resolve()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

func (f *hclFile) resolve() (*Config, error) {
	cfg := Default()

	if f.Debounce != nil {
		d, err := time.ParseDuration(*f.Debounce)
		if err != nil {
			return nil, fmt.Errorf("debounce: %w", err)
		}
		cfg.Debounce = d
	}
	if f.Log != nil {
		setString(&cfg.Log.Level, f.Log.Level)
		setString(&cfg.Log.Format, f.Log.Format)
	}
	if f.Kernel != nil {
		setString(&cfg.Kernel.Name, f.Kernel.Name)
		setInt(&cfg.Kernel.MeshCells, f.Kernel.MeshCells)
		setInt(&cfg.Kernel.Segments, f.Kernel.Segments)
	}
	if f.Artifact != nil {
		setString(&cfg.Artifact.Label, f.Artifact.Label)
		setString(&cfg.Artifact.Dir, f.Artifact.Dir)
		setString(&cfg.Artifact.Prefix, f.Artifact.Prefix)
		setString(&cfg.Artifact.Extension, f.Artifact.Extension)
	}

	if len(f.Parameters) > 0 {
		cfg.Parameters = make([]Parameter, 0, len(f.Parameters))
		for _, hp := range f.Parameters {
			p, err := hp.resolve()
			if err != nil {
				return nil, err
			}
			cfg.Parameters = append(cfg.Parameters, p)
		}
	}
	return cfg, nil
}

func (hp *hclParameter) resolve() (Parameter, error) {
	p := Parameter{Spec: knob.Spec{Name: hp.Name, Min: hp.Min, Max: hp.Max, Value: hp.Min}}
	setString(&p.Label, hp.Label)
	setFloat(&p.Value, hp.Value)
	setFloat(&p.Step, hp.Step)
	setFloat(&p.MajorStep, hp.MajorStep)
	if hp.Local != nil {
		p.Local = *hp.Local
	}

	if hp.Bind != nil {
		setString(&p.BindLabel, hp.Bind.Label)
		r, err := decodeRange(hp.Bind.Range)
		if err != nil {
			return Parameter{}, fmt.Errorf("parameter %q: bind: %w", hp.Name, err)
		}
		p.BindRange = r
		if p.BindRange == nil && p.BindLabel == "" {
			return Parameter{}, fmt.Errorf("parameter %q: bind block needs range or label", hp.Name)
		}
	}
	return p, nil
}

// decodeRange reads a two-element numeric list. A missing attribute yields
// nil.
func decodeRange(expr hcl.Expression) (*graph.Range, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if !ty.IsTupleType() && !ty.IsListType() {
		return nil, fmt.Errorf("range must be a list of two numbers, got %s", ty.FriendlyName())
	}
	if !val.IsWhollyKnown() || val.LengthInt() != 2 {
		return nil, fmt.Errorf("range must have exactly two elements")
	}

	var bounds [2]float64
	for i, v := range val.AsValueSlice() {
		if v.IsNull() || v.Type() != cty.Number {
			return nil, fmt.Errorf("range element %d must be a number", i)
		}
		f, _ := v.AsBigFloat().Float64()
		bounds[i] = f
	}
	return &graph.Range{Min: bounds[0], Max: bounds[1]}, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
