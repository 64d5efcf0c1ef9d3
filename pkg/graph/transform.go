package graph

import "math"

// Transform is a row-major 4x4 affine matrix. The zero value is treated as
// the identity so evaluators may omit it.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation.
func Translation(x, y, z float64) Transform {
	return Transform{
		1, 0, 0, x,
		0, 1, 0, y,
		0, 0, 1, z,
		0, 0, 0, 1,
	}
}

// Scaling returns a pure axis-aligned scale.
func Scaling(x, y, z float64) Transform {
	return Transform{
		x, 0, 0, 0,
		0, y, 0, 0,
		0, 0, z, 0,
		0, 0, 0, 1,
	}
}

// RotationZ returns a rotation about the Z axis by deg degrees.
func RotationZ(deg float64) Transform {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Transform{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// IsZero reports whether every element is zero.
func (t Transform) IsZero() bool {
	return t == Transform{}
}

func (t Transform) orIdentity() Transform {
	if t.IsZero() {
		return Identity()
	}
	return t
}

// Mul returns t·o, i.e. o is applied first.
func (t Transform) Mul(o Transform) Transform {
	a, b := t.orIdentity(), o.orIdentity()
	var r Transform
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[row*4+k] * b[k*4+col]
			}
			r[row*4+col] = sum
		}
	}
	return r
}

// Apply transforms a point, including the homogeneous divide.
func (t Transform) Apply(x, y, z float64) (float64, float64, float64) {
	m := t.orIdentity()
	px := m[0]*x + m[1]*y + m[2]*z + m[3]
	py := m[4]*x + m[5]*y + m[6]*z + m[7]
	pz := m[8]*x + m[9]*y + m[10]*z + m[11]
	w := m[12]*x + m[13]*y + m[14]*z + m[15]
	if w != 0 && w != 1 {
		px, py, pz = px/w, py/w, pz/w
	}
	return px, py, pz
}

// ApplyNormal transforms a surface normal by the inverse transpose of the
// linear part of t and renormalizes it. Translation does not affect
// normals. A singular linear part falls back to the plain linear map.
func (t Transform) ApplyNormal(x, y, z float64) (float64, float64, float64) {
	m := t.orIdentity()
	a := [3]float64{m[0], m[1], m[2]}
	b := [3]float64{m[4], m[5], m[6]}
	c := [3]float64{m[8], m[9], m[10]}

	// Rows of the cofactor matrix; inverse transpose = cofactor / det.
	r0 := cross(b, c)
	r1 := cross(c, a)
	r2 := cross(a, b)
	det := a[0]*r0[0] + a[1]*r0[1] + a[2]*r0[2]

	var nx, ny, nz float64
	if det == 0 {
		nx = a[0]*x + a[1]*y + a[2]*z
		ny = b[0]*x + b[1]*y + b[2]*z
		nz = c[0]*x + c[1]*y + c[2]*z
	} else {
		sign := math.Copysign(1, det)
		nx = sign * (r0[0]*x + r0[1]*y + r0[2]*z)
		ny = sign * (r1[0]*x + r1[1]*y + r1[2]*z)
		nz = sign * (r2[0]*x + r2[1]*y + r2[2]*z)
	}
	l := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if l == 0 {
		return nx, ny, nz
	}
	return nx / l, ny / l, nz / l
}

func cross(u, v [3]float64) [3]float64 {
	return [3]float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
}
