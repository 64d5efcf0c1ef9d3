// Package gauge projects a parameter onto the fan-shaped tick gauge shown
// while a knob is dragged. The gauge is re-centred on every call so that the
// current value always sits at angle 0.
package gauge

import (
	"iter"
	"math"
	"slices"
	"strconv"

	"github.com/chazu/knurl/pkg/knob"
)

const (
	// ArcSpan is the total angular width of the full range, in degrees.
	ArcSpan = 120.0

	// VisibleAngle is the largest absolute angle still drawn.
	VisibleAngle = 90.0

	// DefaultTicks is the tick count used when the spec has no step.
	DefaultTicks = 41

	// MaxTicks bounds the tick count; finer steps fall back to DefaultTicks.
	MaxTicks = 4001

	// MajorEpsilon is the tolerance for classifying a tick as major.
	MajorEpsilon = 1e-3
)

// Tick describes one gauge mark.
type Tick struct {
	Index   int     `json:"index"`
	Value   float64 `json:"value"` // nominal value
	Angle   float64 `json:"angle"` // degrees, 0 = current value
	Current bool    `json:"current"`
	Major   bool    `json:"major"`
	Label   string  `json:"label,omitempty"` // set on major ticks only
	Opacity float64 `json:"opacity"`
}

// TickCount returns the number of nominal ticks for spec, before filtering.
func TickCount(spec knob.Spec) int {
	if spec.Step <= 0 || spec.Max <= spec.Min {
		return DefaultTicks
	}
	n := int(math.Round((spec.Max-spec.Min)/spec.Step)) + 1
	if n < 2 || n > MaxTicks {
		return DefaultTicks
	}
	return n
}

// Ticks yields the visible ticks for spec in ascending value order. Ticks
// beyond VisibleAngle are skipped while iterating, never materialized.
func Ticks(spec knob.Spec) iter.Seq[Tick] {
	return func(yield func(Tick) bool) {
		span := spec.Max - spec.Min
		if span <= 0 {
			return
		}
		n := TickCount(spec)
		last := float64(n - 1)

		value := math.Min(math.Max(spec.Value, spec.Min), spec.Max)
		valueRatio := (value - spec.Min) / span
		centerOffset := valueRatio*ArcSpan - ArcSpan/2
		current := int(math.Round(valueRatio * last))

		major := spec.MajorStep
		if major <= 0 {
			major = 1
		}
		precision := spec.Precision()

		for i := 0; i < n; i++ {
			tickRatio := float64(i) / last
			angle := (tickRatio*ArcSpan - ArcSpan/2) - centerOffset
			if math.Abs(angle) > VisibleAngle {
				continue
			}
			nominal := spec.Min + tickRatio*span
			t := Tick{
				Index:   i,
				Value:   knob.Round(nominal, precision),
				Angle:   angle,
				Current: i == current,
				Major:   isMultiple(nominal, major),
				Opacity: opacity(angle),
			}
			if t.Major {
				t.Label = strconv.FormatFloat(t.Value, 'f', -1, 64)
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Project collects the visible ticks for spec.
func Project(spec knob.Spec) []Tick {
	return slices.Collect(Ticks(spec))
}

// Current returns the tick marked current, if it is visible.
func Current(spec knob.Spec) (Tick, bool) {
	for t := range Ticks(spec) {
		if t.Current {
			return t, true
		}
	}
	return Tick{}, false
}

func isMultiple(v, step float64) bool {
	return math.Abs(math.Remainder(v, step)) < MajorEpsilon
}

func opacity(angle float64) float64 {
	o := 1 - math.Abs(angle)/VisibleAngle
	return math.Min(math.Max(o, 0), 1)
}
