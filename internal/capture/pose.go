package capture

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/orient"
)

// Pose is the view of the oriented base mesh for one frame.
type Pose struct {
	Rotation orient.Transform
	Zoom     float64
	// SliceNormal, when non-zero, keeps only the faces straddling the plane
	// through the centroid with this normal.
	SliceNormal mgl64.Vec3
}

// Planner produces the pose of each frame.
type Planner interface {
	Pose(i int) Pose
}

// NewRand returns a PCG source for seed. Seed 0 seeds from the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Orbit spins the mesh about one axis in equal steps with a small random
// tilt on a second axis. Poses are absolute, so jitter never accumulates.
type Orbit struct {
	Frames        int
	JitterDegrees float64
	Axis          orient.Axis
	rng           *rand.Rand
}

// NewOrbit creates an orbit planner drawing jitter from rng.
func NewOrbit(frames int, jitterDegrees float64, axis orient.Axis, rng *rand.Rand) *Orbit {
	return &Orbit{Frames: frames, JitterDegrees: jitterDegrees, Axis: axis, rng: rng}
}

// Step is the angle between consecutive frames.
func (o *Orbit) Step() float64 {
	return 360 / float64(o.Frames)
}

// Pose returns yaw i*step mod 360 on the primary axis and a uniform jitter
// in [-JitterDegrees, +JitterDegrees] on the secondary axis.
func (o *Orbit) Pose(i int) Pose {
	yaw := math.Mod(float64(i)*o.Step(), 360)
	jitter := 0.0
	if o.JitterDegrees > 0 {
		jitter = (o.rng.Float64()*2 - 1) * o.JitterDegrees
	}

	var t orient.Transform
	set(&t, o.Axis, yaw)
	set(&t, secondary(o.Axis), jitter)
	return Pose{Rotation: t, Zoom: 1}
}

// secondary is the jitter axis for a primary orbit axis.
func secondary(a orient.Axis) orient.Axis {
	if a == orient.AxisX {
		return orient.AxisZ
	}
	return orient.AxisX
}

func set(t *orient.Transform, a orient.Axis, deg float64) {
	switch a {
	case orient.AxisX:
		t.X = deg
	case orient.AxisY:
		t.Y = deg
	case orient.AxisZ:
		t.Z = deg
	}
}

// Random draws an independent rotation on every axis and a zoom factor for
// each frame, optionally slicing the mesh by a random plane.
type Random struct {
	ZoomMin, ZoomMax float64
	Slice            bool
	rng              *rand.Rand
}

// NewRandom creates a random-view planner.
func NewRandom(zoomMin, zoomMax float64, slice bool, rng *rand.Rand) *Random {
	return &Random{ZoomMin: zoomMin, ZoomMax: zoomMax, Slice: slice, rng: rng}
}

// Pose ignores i; every frame is independent.
func (r *Random) Pose(int) Pose {
	p := Pose{
		Rotation: orient.Transform{
			X: r.rng.Float64() * 360,
			Y: r.rng.Float64() * 360,
			Z: r.rng.Float64() * 360,
		},
		Zoom: r.ZoomMin + r.rng.Float64()*(r.ZoomMax-r.ZoomMin),
	}
	if r.Slice {
		n := mgl64.Vec3{r.rng.Float64(), r.rng.Float64(), r.rng.Float64()}
		if n.Len() == 0 {
			n = mgl64.Vec3{0, 1, 0}
		}
		p.SliceNormal = n.Normalize()
	}
	return p
}

// ParseAxis converts "x", "y" or "z".
func ParseAxis(s string) (orient.Axis, error) {
	switch s {
	case "x":
		return orient.AxisX, nil
	case "y":
		return orient.AxisY, nil
	case "z":
		return orient.AxisZ, nil
	}
	return 0, fmt.Errorf("%w: unknown axis %q", config.ErrInvalid, s)
}

// PlannerFromConfig builds the planner selected by capture.mode.
func PlannerFromConfig(cfg config.CaptureConfig) (Planner, error) {
	rng := NewRand(cfg.Seed)
	switch cfg.Mode {
	case config.CaptureOrbit:
		axis, err := ParseAxis(cfg.Axis)
		if err != nil {
			return nil, err
		}
		if cfg.Frames <= 0 {
			return nil, fmt.Errorf("%w: frames must be positive", config.ErrInvalid)
		}
		return NewOrbit(cfg.Frames, cfg.JitterDegrees, axis, rng), nil
	case config.CaptureRandom:
		return NewRandom(cfg.ZoomMin, cfg.ZoomMax, cfg.Slice, rng), nil
	}
	return nil, fmt.Errorf("%w: unknown capture mode %q", config.ErrInvalid, cfg.Mode)
}
