//go:build !manifold

package manifold

import "github.com/chazu/knurl/pkg/kernel"

// New reports ErrUnavailable. Build with -tags=manifold to enable.
func New(opts ...Option) (kernel.Kernel, error) {
	_ = newConfig(opts)
	return nil, ErrUnavailable
}
