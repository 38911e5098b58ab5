// Package orient brings meshes into the renderer's up-axis convention.
//
// A fixed upright Transform is applied first. A per-mesh correction then
// comes from the transform store or, when calibration is enabled, from an
// interactive Calibrator whose answer is saved back to the store so later
// runs stay headless.
package orient

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a rotation given as Euler angles in degrees, applied in the
// xyz convention: R = Rx * Ry * Rz.
type Transform struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Upright is the default correction from Z-up authoring tools to the Y-up
// renderer.
var Upright = Transform{X: -20, Y: 180, Z: 90}

// FromArray converts a config triple.
func FromArray(a [3]float64) Transform {
	return Transform{X: a[0], Y: a[1], Z: a[2]}
}

// Matrix returns Rx * Ry * Rz.
func (t Transform) Matrix() mgl64.Mat3 {
	rx := mgl64.Rotate3DX(mgl64.DegToRad(t.X))
	ry := mgl64.Rotate3DY(mgl64.DegToRad(t.Y))
	rz := mgl64.Rotate3DZ(mgl64.DegToRad(t.Z))
	return rx.Mul3(ry).Mul3(rz)
}

// IsZero reports whether the transform is the identity.
func (t Transform) IsZero() bool {
	return t == Transform{}
}

// Add returns the component-wise sum, each angle wrapped into [0, 360).
func (t Transform) Add(d Transform) Transform {
	return Transform{X: wrap(t.X + d.X), Y: wrap(t.Y + d.Y), Z: wrap(t.Z + d.Z)}
}

func wrap(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
