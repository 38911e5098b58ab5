package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/mesh"
	"github.com/ironsheep/meshsynth/internal/orient"
	"github.com/ironsheep/meshsynth/internal/render"
)

const tetraOBJ = `v 0 0 0
v 1 0 0
v 0 1 0
v 0 0 1
f 1 3 2
f 1 2 4
f 1 4 3
f 2 3 4
`

// fakeRenderer returns a gray square on white and records the first vertex
// of every mesh it is given.
type fakeRenderer struct {
	first []mgl64.Vec3
	zooms []float64
	err   error
	blank bool
}

func (f *fakeRenderer) Render(m *mesh.Mesh, zoom float64) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.first = append(f.first, m.Vertices[0])
	f.zooms = append(f.zooms, zoom)

	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if !f.blank && x >= 8 && x < 24 && y >= 6 && y < 18 {
				c = color.RGBA{128, 128, 128, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// fixedPlanner returns the same pose for every frame.
type fixedPlanner struct{ pose Pose }

func (p fixedPlanner) Pose(int) Pose { return p.pose }

func tetra(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.ReadOBJ(strings.NewReader(tetraOBJ))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func writeMesh(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOrbit_YawSequence(t *testing.T) {
	for _, frames := range []int{1, 7, 36, 150} {
		o := NewOrbit(frames, 6, orient.AxisY, NewRand(1))
		for i := 0; i < frames; i++ {
			want := math.Mod(float64(i)*360/float64(frames), 360)
			got := o.Pose(i).Rotation.Y
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("frames=%d i=%d: yaw %g, want %g", frames, i, got, want)
			}
		}
	}
}

func TestOrbit_JitterBounded(t *testing.T) {
	o := NewOrbit(150, 6, orient.AxisY, NewRand(7))
	nonZero := false
	for i := 0; i < 150; i++ {
		p := o.Pose(i)
		if math.Abs(p.Rotation.X) > 6 {
			t.Fatalf("frame %d: jitter %g exceeds 6", i, p.Rotation.X)
		}
		if p.Rotation.Z != 0 {
			t.Fatalf("frame %d: unexpected rotation on Z", i)
		}
		if p.Rotation.X != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("expected some jitter")
	}
}

func TestOrbit_Deterministic(t *testing.T) {
	a := NewOrbit(10, 6, orient.AxisY, NewRand(42))
	b := NewOrbit(10, 6, orient.AxisY, NewRand(42))
	for i := 0; i < 10; i++ {
		if a.Pose(i) != b.Pose(i) {
			t.Fatalf("frame %d differs for the same seed", i)
		}
	}
}

func TestOrbit_OtherAxes(t *testing.T) {
	o := NewOrbit(4, 0, orient.AxisX, NewRand(1))
	if got := o.Pose(1).Rotation; got != (orient.Transform{X: 90}) {
		t.Errorf("x axis: got %+v", got)
	}
	o = NewOrbit(4, 0, orient.AxisZ, NewRand(1))
	if got := o.Pose(3).Rotation; got != (orient.Transform{Z: 270}) {
		t.Errorf("z axis: got %+v", got)
	}
}

func TestRandom_Ranges(t *testing.T) {
	r := NewRandom(0.3, 2.0, true, NewRand(3))
	for i := 0; i < 100; i++ {
		p := r.Pose(i)
		for _, a := range []float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z} {
			if a < 0 || a >= 360 {
				t.Fatalf("angle %g out of [0,360)", a)
			}
		}
		if p.Zoom < 0.3 || p.Zoom > 2.0 {
			t.Fatalf("zoom %g out of range", p.Zoom)
		}
		if math.Abs(p.SliceNormal.Len()-1) > 1e-9 {
			t.Fatalf("slice normal not unit: %v", p.SliceNormal)
		}
	}
}

func TestPlannerFromConfig(t *testing.T) {
	cfg := config.Default().Capture
	p, err := PlannerFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Orbit); !ok {
		t.Errorf("default mode should plan an orbit, got %T", p)
	}

	cfg.Mode = config.CaptureRandom
	if p, _ = PlannerFromConfig(cfg); p == nil {
		t.Fatal("random planner expected")
	}

	cfg.Mode = "spiral"
	if _, err := PlannerFromConfig(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("unknown mode: got %v", err)
	}
}

func TestCaptureMesh_NamesAndPoses(t *testing.T) {
	out := t.TempDir()
	r := &fakeRenderer{}
	c := New(Options{Frames: 4, FramePad: 3}, r, NewOrbit(4, 0, orient.AxisY, NewRand(1)), nil)

	base := tetra(t)
	paths, err := c.CaptureMesh(context.Background(), base, out, SinglePrefix)
	if err != nil {
		t.Fatalf("CaptureMesh failed: %v", err)
	}

	want := []string{"image001.png", "image002.png", "image003.png", "image004.png"}
	if len(paths) != len(want) {
		t.Fatalf("got %d paths, want %d", len(paths), len(want))
	}
	for i, name := range want {
		if filepath.Base(paths[i]) != name {
			t.Errorf("path %d: got %s, want %s", i, filepath.Base(paths[i]), name)
		}
		if _, err := os.Stat(paths[i]); err != nil {
			t.Errorf("frame not written: %v", err)
		}
	}

	// Frames are absolute rotations of the base, which stays untouched.
	if !vecNear(base.Vertices[0], mgl64.Vec3{0, 0, 0}, 1e-12) {
		t.Errorf("base mesh was modified: %v", base.Vertices[0])
	}
	if !vecNear(r.first[0], base.Vertices[0], 1e-9) {
		t.Errorf("frame 1 should be unrotated, got %v", r.first[0])
	}
	c1 := base.Centroid()
	want2 := mgl64.Rotate3DY(math.Pi / 2).Mul3x1(base.Vertices[0].Sub(c1)).Add(c1)
	if !vecNear(r.first[1], want2, 1e-9) {
		t.Errorf("frame 2: got %v, want %v", r.first[1], want2)
	}
}

func TestCaptureMesh_FramePad(t *testing.T) {
	c := New(Options{Frames: 1, FramePad: 5}, &fakeRenderer{}, fixedPlanner{Pose{Zoom: 1}}, nil)
	if got := c.FrameName("cup_", 11); got != "cup_00012.png" {
		t.Errorf("FrameName: got %s", got)
	}
}

func TestCaptureMesh_ZoomAndSlice(t *testing.T) {
	r := &fakeRenderer{}
	pose := Pose{Zoom: 1.7, SliceNormal: mgl64.Vec3{0, 0, 1}}
	c := New(Options{Frames: 2}, r, fixedPlanner{pose}, nil)

	if _, err := c.CaptureMesh(context.Background(), tetra(t), t.TempDir(), "s_"); err != nil {
		t.Fatal(err)
	}
	if len(r.zooms) != 2 || r.zooms[0] != 1.7 {
		t.Errorf("zooms: got %v", r.zooms)
	}
}

func TestCaptureMesh_RenderError(t *testing.T) {
	r := &fakeRenderer{err: render.ErrSurface}
	c := New(Options{Frames: 3}, r, fixedPlanner{Pose{Zoom: 1}}, nil)

	_, err := c.CaptureMesh(context.Background(), tetra(t), t.TempDir(), "x")
	if !errors.Is(err, render.ErrSurface) {
		t.Errorf("expected ErrSurface, got %v", err)
	}
}

func TestCaptureMesh_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(Options{Frames: 3}, &fakeRenderer{}, fixedPlanner{Pose{Zoom: 1}}, nil)

	paths, err := c.CaptureMesh(ctx, tetra(t), t.TempDir(), "x")
	if !errors.Is(err, context.Canceled) || len(paths) != 0 {
		t.Errorf("got %d paths, err %v", len(paths), err)
	}
}

func TestCaptureMesh_BlankFrameStillWritten(t *testing.T) {
	c := New(Options{Frames: 1}, &fakeRenderer{blank: true}, fixedPlanner{Pose{Zoom: 1}}, nil)
	paths, err := c.CaptureMesh(context.Background(), tetra(t), t.TempDir(), "x")
	if err != nil || len(paths) != 1 {
		t.Errorf("got %v, %v", paths, err)
	}
}

func TestCaptureDir(t *testing.T) {
	root := t.TempDir()
	writeMesh(t, filepath.Join(root, "cup", "mug.obj"), tetraOBJ)
	writeMesh(t, filepath.Join(root, "can", "soda.OBJ"), tetraOBJ)
	writeMesh(t, filepath.Join(root, "can", "broken.obj"), "v 0 0 0\n")
	writeMesh(t, filepath.Join(root, "can", "notes.txt"), "ignored")

	out := t.TempDir()
	c := New(Options{Frames: 2, NameFrom: "class"}, &fakeRenderer{}, fixedPlanner{Pose{Zoom: 1}}, nil)

	report, err := c.CaptureDir(context.Background(), root, out)
	if err != nil {
		t.Fatalf("CaptureDir failed: %v", err)
	}
	if report != (Report{Meshes: 2, Skipped: 1, Frames: 4}) {
		t.Errorf("report: got %+v", report)
	}

	for _, name := range []string{"can_soda_001.png", "can_soda_002.png", "cup_mug_001.png", "cup_mug_002.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s", name)
		}
	}
}

func TestCaptureDir_NamedByMesh(t *testing.T) {
	root := t.TempDir()
	writeMesh(t, filepath.Join(root, "cup", "cup.obj"), tetraOBJ)
	out := t.TempDir()

	c := New(Options{Frames: 1, NameFrom: "mesh"}, &fakeRenderer{}, fixedPlanner{Pose{Zoom: 1}}, nil)
	if _, err := c.CaptureDir(context.Background(), root, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "cup_001.png")); err != nil {
		t.Errorf("expected cup_001.png: %v", err)
	}
}

func TestCaptureDir_SurfaceFailureAborts(t *testing.T) {
	root := t.TempDir()
	writeMesh(t, filepath.Join(root, "a", "one.obj"), tetraOBJ)
	writeMesh(t, filepath.Join(root, "b", "two.obj"), tetraOBJ)

	c := New(Options{Frames: 1}, &fakeRenderer{err: render.ErrSurface}, fixedPlanner{Pose{Zoom: 1}}, nil)
	report, err := c.CaptureDir(context.Background(), root, t.TempDir())
	if !errors.Is(err, render.ErrSurface) {
		t.Fatalf("expected ErrSurface, got %v", err)
	}
	if report.Meshes != 0 {
		t.Errorf("no mesh should complete, got %d", report.Meshes)
	}
}

func TestCaptureDir_AppliesSavedOrientation(t *testing.T) {
	root := t.TempDir()
	writeMesh(t, filepath.Join(root, "cup", "mug.obj"), tetraOBJ)

	store, _ := orient.OpenStore("")
	if err := store.Put("cup/mug", orient.Transform{Y: 90}); err != nil {
		t.Fatal(err)
	}
	n, err := orient.NewNormalizer(orient.Transform{}, config.CalibrateNone, store, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := &fakeRenderer{}
	c := New(Options{Frames: 1}, r, fixedPlanner{Pose{Zoom: 1}}, n)
	if _, err := c.CaptureDir(context.Background(), root, t.TempDir()); err != nil {
		t.Fatal(err)
	}

	base := tetra(t)
	cen := base.Centroid()
	want := mgl64.Rotate3DY(math.Pi / 2).Mul3x1(base.Vertices[0].Sub(cen)).Add(cen)
	if len(r.first) != 1 || !vecNear(r.first[0], want, 1e-9) {
		t.Errorf("saved transform not applied: got %v, want %v", r.first, want)
	}
}

func TestFindMeshes_Missing(t *testing.T) {
	if _, err := FindMeshes(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestCaptureFile_RealRenderer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tetra.obj")
	writeMesh(t, path, tetraOBJ)

	r, err := render.New(render.Options{
		Width: 32, Height: 24, Supersample: 1,
		Background: "#FFFFFF", ObjectColor: "#808080",
		FovY: 30, Light: [3]float64{0, 0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	out := t.TempDir()
	c := New(Options{Frames: 2}, r, NewOrbit(2, 0, orient.AxisY, NewRand(1)), nil)
	paths, err := c.CaptureFile(context.Background(), path, out)
	if err != nil {
		t.Fatalf("CaptureFile failed: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[1]) != "image002.png" {
		t.Errorf("paths: got %v", paths)
	}
}

func vecNear(a, b mgl64.Vec3, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}
