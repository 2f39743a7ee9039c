package tilemath

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
)

// Affine is a 2D affine transform stored as a 2x3 row-major matrix:
//
//	| a  b  c |
//	| d  e  f |
type Affine struct {
	A, B, C float64
	D, E, F float64
}

func Identity() Affine {
	return Affine{A: 1, E: 1}
}

func Translate(x, y float64) Affine {
	return Affine{A: 1, C: x, E: 1, F: y}
}

func Scale(x, y float64) Affine {
	return Affine{A: x, E: y}
}

// Multiply returns m * o, i.e. o is applied first.
func (m Affine) Multiply(o Affine) Affine {
	return Affine{
		A: m.A*o.A + m.B*o.D,
		B: m.A*o.B + m.B*o.E,
		C: m.A*o.C + m.B*o.F + m.C,
		D: m.D*o.A + m.E*o.D,
		E: m.D*o.B + m.E*o.E,
		F: m.D*o.C + m.E*o.F + m.F,
	}
}

func (m Affine) Apply(p orb.Point) orb.Point {
	return orb.Point{
		m.A*p[0] + m.B*p[1] + m.C,
		m.D*p[0] + m.E*p[1] + m.F,
	}
}

// Invert returns the inverse transform. Singular matrices are an error.
func (m Affine) Invert() (Affine, error) {
	det := m.A*m.E - m.B*m.D
	if det == 0 {
		return Affine{}, errors.New("affine transform is not invertible")
	}
	inv := 1 / det
	return Affine{
		A: m.E * inv,
		B: -m.B * inv,
		C: (m.B*m.F - m.E*m.C) * inv,
		D: -m.D * inv,
		E: m.A * inv,
		F: (m.D*m.C - m.A*m.F) * inv,
	}, nil
}

// Array returns the transform as a column-major 3x3 matrix, the layout
// uniform buffers expect.
func (m Affine) Array() [9]float32 {
	return [9]float32{
		float32(m.A), float32(m.D), 0,
		float32(m.B), float32(m.E), 0,
		float32(m.C), float32(m.F), 1,
	}
}
