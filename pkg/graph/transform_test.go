package graph

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTransformApply(t *testing.T) {
	tests := []struct {
		name       string
		tr         Transform
		in         [3]float64
		wantX, wantY, wantZ float64
	}{
		{"identity", Identity(), [3]float64{1, 2, 3}, 1, 2, 3},
		{"zero value is identity", Transform{}, [3]float64{1, 2, 3}, 1, 2, 3},
		{"translation", Translation(10, -5, 2), [3]float64{1, 2, 3}, 11, -3, 5},
		{"scale", Scaling(2, 3, 4), [3]float64{1, 1, 1}, 2, 3, 4},
		{"rotate z 90", RotationZ(90), [3]float64{1, 0, 0}, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, z := tt.tr.Apply(tt.in[0], tt.in[1], tt.in[2])
			if !approx(x, tt.wantX) || !approx(y, tt.wantY) || !approx(z, tt.wantZ) {
				t.Errorf("Apply = (%g, %g, %g), want (%g, %g, %g)", x, y, z, tt.wantX, tt.wantY, tt.wantZ)
			}
		})
	}
}

func TestTransformMulOrder(t *testing.T) {
	// Scale first, then translate.
	m := Translation(10, 0, 0).Mul(Scaling(2, 2, 2))
	x, y, z := m.Apply(1, 1, 1)
	if !approx(x, 12) || !approx(y, 2) || !approx(z, 2) {
		t.Errorf("Apply = (%g, %g, %g), want (12, 2, 2)", x, y, z)
	}
}

func TestTransformApplyNormal(t *testing.T) {
	nx, ny, nz := Translation(5, 5, 5).ApplyNormal(0, 0, 1)
	if !approx(nx, 0) || !approx(ny, 0) || !approx(nz, 1) {
		t.Errorf("translation changed normal: (%g, %g, %g)", nx, ny, nz)
	}

	nx, ny, nz = Scaling(3, 3, 3).ApplyNormal(0, 2, 0)
	if !approx(nx, 0) || !approx(ny, 1) || !approx(nz, 0) {
		t.Errorf("normal not renormalized: (%g, %g, %g)", nx, ny, nz)
	}
}

func TestTransformApplyNormalInverseTranspose(t *testing.T) {
	s5 := 1 / math.Sqrt(5)
	tests := []struct {
		name string
		tr   Transform
		in   [3]float64
		want [3]float64
	}{
		// The plane x+y=c stretched along y has normal (2, 1, 0).
		{"non-uniform scale", Scaling(1, 2, 1), [3]float64{1, 1, 0}, [3]float64{2 * s5, s5, 0}},
		{"mirror", Scaling(-1, 1, 1), [3]float64{1, 0, 0}, [3]float64{-1, 0, 0}},
		{"rotate z 90", RotationZ(90), [3]float64{1, 0, 0}, [3]float64{0, 1, 0}},
		{"singular", Scaling(1, 1, 0), [3]float64{0, 1, 0}, [3]float64{0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, z := tt.tr.ApplyNormal(tt.in[0], tt.in[1], tt.in[2])
			if !approx(x, tt.want[0]) || !approx(y, tt.want[1]) || !approx(z, tt.want[2]) {
				t.Errorf("ApplyNormal = (%g, %g, %g), want %v", x, y, z, tt.want)
			}
		})
	}
}
