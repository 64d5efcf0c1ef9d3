// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library. When the "manifold" build tag is not set, a stub is
// compiled instead and New returns ErrUnavailable.
//
// Build with: go build -tags=manifold
package manifold

import "errors"

// DefaultSegments is the number of circular segments used for cylinders.
const DefaultSegments = 64

// ErrUnavailable is returned by New in builds without the manifold tag.
var ErrUnavailable = errors.New("manifold kernel not available: build with -tags=manifold")

// Option configures the kernel.
type Option func(*config)

type config struct {
	segments int
}

// WithSegments sets the circular segment count. Values below 3 are
// ignored.
func WithSegments(n int) Option {
	return func(c *config) {
		if n >= 3 {
			c.segments = n
		}
	}
}

func newConfig(opts []Option) config {
	c := config{segments: DefaultSegments}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
