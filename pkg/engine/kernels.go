package engine

import (
	"fmt"

	"github.com/chazu/knurl/pkg/kernel"
	"github.com/chazu/knurl/pkg/kernel/manifold"
	"github.com/chazu/knurl/pkg/kernel/sdfx"
)

// Kernel names accepted by NewKernel.
const (
	KernelSdfx     = "sdfx"
	KernelManifold = "manifold"
)

// KernelNames lists the selectable kernels.
var KernelNames = []string{KernelSdfx, KernelManifold}

// NewKernel constructs a kernel by name. cells tunes sdfx's marching
// cubes and segments tunes manifold's cylinders; zero keeps the default.
// An empty name selects sdfx.
func NewKernel(name string, cells, segments int) (kernel.Kernel, error) {
	switch name {
	case "", KernelSdfx:
		return sdfx.New(sdfx.WithMeshCells(cells)), nil
	case KernelManifold:
		k, err := manifold.New(manifold.WithSegments(segments))
		if err != nil {
			return nil, fmt.Errorf("creating %s kernel: %w", name, err)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}
