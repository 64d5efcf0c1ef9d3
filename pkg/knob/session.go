package knob

// Session is one continuous drag gesture. It holds the pointer position and
// value captured when the gesture started; every update is computed from
// that anchor, never incrementally.
type Session struct {
	spec        Spec
	anchorX     float64
	anchorValue float64
	last        float64
	ended       bool
}

// Begin starts a drag at pointerX for a parameter currently at spec.Value.
func Begin(spec Spec, pointerX float64) *Session {
	anchor := clamp(spec.Value, spec.Min, spec.Max)
	return &Session{
		spec:        spec,
		anchorX:     pointerX,
		anchorValue: anchor,
		last:        anchor,
	}
}

// Update maps the current pointer position to a parameter value. After End
// it keeps returning the last emitted value.
func (s *Session) Update(pointerX float64) float64 {
	if s.ended {
		return s.last
	}
	delta := pointerX - s.anchorX
	sensitivity := (s.spec.Max - s.spec.Min) / DragDistance
	s.last = Quantize(s.spec, s.anchorValue+delta*sensitivity)
	return s.last
}

// End closes the session and returns the last emitted value.
func (s *Session) End() float64 {
	s.ended = true
	return s.last
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return !s.ended
}

// Spec returns the parameter the session drags.
func (s *Session) Spec() Spec {
	return s.spec
}

// Last returns the most recently emitted value.
func (s *Session) Last() float64 {
	return s.last
}
