package orient

// Axis selects a rotation axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Rotation steps for interactive adjustment, in degrees.
const (
	StepDegrees         = 2.0
	FastStepDegrees     = 10.0
	DragDegreesPerPixel = 0.5
)

// Adjustment accumulates interactive rotation input into a Transform.
type Adjustment struct {
	start   Transform
	current Transform
}

// NewAdjustment starts from t.
func NewAdjustment(t Transform) *Adjustment {
	return &Adjustment{start: t, current: t}
}

// Nudge rotates by steps increments about axis; fast uses the larger step.
func (a *Adjustment) Nudge(axis Axis, steps int, fast bool) {
	deg := StepDegrees
	if fast {
		deg = FastStepDegrees
	}
	d := float64(steps) * deg

	var delta Transform
	switch axis {
	case AxisX:
		delta.X = d
	case AxisY:
		delta.Y = d
	case AxisZ:
		delta.Z = d
	}
	a.current = a.current.Add(delta)
}

// Drag maps a mouse drag to rotation: horizontal motion turns about Y,
// vertical motion about X.
func (a *Adjustment) Drag(dx, dy int) {
	a.current = a.current.Add(Transform{
		X: float64(dy) * DragDegreesPerPixel,
		Y: float64(dx) * DragDegreesPerPixel,
	})
}

// Reset returns to the starting transform.
func (a *Adjustment) Reset() {
	a.current = a.start
}

// Transform is the accumulated rotation.
func (a *Adjustment) Transform() Transform {
	return a.current
}
