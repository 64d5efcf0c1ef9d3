//go:build !manifold

package engine

import (
	"errors"
	"testing"

	"github.com/chazu/knurl/pkg/kernel/manifold"
)

func TestNewKernelManifoldUnavailable(t *testing.T) {
	_, err := NewKernel(KernelManifold, 0, 32)
	if !errors.Is(err, manifold.ErrUnavailable) {
		t.Fatalf("NewKernel(manifold) error = %v, want ErrUnavailable", err)
	}
}
