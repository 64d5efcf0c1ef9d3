// Package knob turns pointer drags into bounded, quantized parameter values.
// It is pure input transformation: nothing here talks to the evaluator.
package knob

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DragDistance is the horizontal pointer travel, in display units, that
// sweeps the full range of a parameter.
const DragDistance = 200.0

// DefaultPrecision is the number of decimals kept when no step is set.
const DefaultPrecision = 2

// Spec describes one tunable parameter.
type Spec struct {
	Name      string  `json:"name"`
	Label     string  `json:"label,omitempty"`
	Value     float64 `json:"value"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Step      float64 `json:"step,omitempty"`       // quantization step, 0 = continuous
	MajorStep float64 `json:"major_step,omitempty"` // gauge label spacing, 0 = 1
}

// Validate checks the invariants of a Spec.
func (s Spec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !(s.Min < s.Max) {
		errs = append(errs, fmt.Errorf("min %g must be less than max %g", s.Min, s.Max))
	}
	if s.Step < 0 {
		errs = append(errs, fmt.Errorf("step %g must not be negative", s.Step))
	}
	if s.MajorStep < 0 {
		errs = append(errs, fmt.Errorf("major step %g must not be negative", s.MajorStep))
	}
	if s.Min < s.Max && (s.Value < s.Min || s.Value > s.Max) {
		errs = append(errs, fmt.Errorf("value %g outside [%g, %g]", s.Value, s.Min, s.Max))
	}
	if len(errs) > 0 {
		return fmt.Errorf("parameter %q: %w", s.Name, errors.Join(errs...))
	}
	return nil
}

// DisplayLabel returns Label, falling back to Name.
func (s Spec) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Name
}

// Precision returns the number of decimals values of s are rounded to.
func (s Spec) Precision() int {
	return Precision(s.Step)
}

// Format renders v at the spec's precision.
func (s Spec) Format(v float64) string {
	return strconv.FormatFloat(v, 'f', s.Precision(), 64)
}

// Precision returns the number of fractional digits in step, or
// DefaultPrecision when step is not positive.
func Precision(step float64) int {
	if step <= 0 {
		return DefaultPrecision
	}
	str := strconv.FormatFloat(step, 'f', -1, 64)
	dot := strings.IndexByte(str, '.')
	if dot < 0 {
		return 0
	}
	return len(str) - dot - 1
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}

// Quantize clamps v to the spec's range, snaps it to the step when one is
// set and rounds it to the spec's precision.
func Quantize(s Spec, v float64) float64 {
	v = clamp(v, s.Min, s.Max)
	if s.Step > 0 {
		v = math.Round(v/s.Step) * s.Step
		// Snapping may overshoot a bound that is not itself a step multiple.
		if v > s.Max {
			v -= s.Step
		}
		if v < s.Min {
			v += s.Step
		}
		v = clamp(v, s.Min, s.Max)
	}
	return Round(v, s.Precision())
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
