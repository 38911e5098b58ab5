package annotate

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/dataset"
	"github.com/ironsheep/meshsynth/internal/detection"
	"github.com/ironsheep/meshsynth/internal/imaging"
)

// onePixel is the scenario tolerance: one pixel of a 100 pixel frame.
const onePixel = 0.01 + 1e-9

// fakeFinder returns fixed boxes regardless of the image.
type fakeFinder struct {
	boxes []image.Rectangle
	err   error
}

func (f fakeFinder) FindBoxes(image.Image, int, int) ([]image.Rectangle, error) {
	return append([]image.Rectangle(nil), f.boxes...), f.err
}

// squaresImage draws filled white squares on a black background.
func squaresImage(width, height int, squares ...image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Black)
		}
	}
	for _, sq := range squares {
		for y := sq.Min.Y; y < sq.Max.Y; y++ {
			for x := sq.Min.X; x < sq.Max.X; x++ {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(t *testing.T, mode string) Options {
	t.Helper()
	root := t.TempDir()
	return Options{
		Mode:             mode,
		LowThreshold:     50,
		HighThreshold:    150,
		LabelsDir:        filepath.Join(root, "labels"),
		VisualizationDir: filepath.Join(root, "annotated"),
		Style:            imaging.DefaultOverlayStyle(),
	}
}

func readLabelFile(t *testing.T, path string) []Label {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("label file missing: %v", err)
	}
	defer f.Close()
	labels, err := ReadLabels(f)
	if err != nil {
		t.Fatalf("ReadLabels failed: %v", err)
	}
	return labels
}

func TestAnnotateFile_SingleSquare(t *testing.T) {
	opts := testOptions(t, config.ModeLargest)
	a := New(opts, detection.Native{})
	path := writePNG(t, t.TempDir(), "square.png", squaresImage(100, 100, image.Rect(20, 20, 60, 60)))

	res, err := a.AnnotateFile(path)
	if err != nil {
		t.Fatalf("AnnotateFile failed: %v", err)
	}

	labels := readLabelFile(t, filepath.Join(opts.LabelsDir, "square.txt"))
	if len(labels) != 1 {
		t.Fatalf("expected 1 label line, got %d", len(labels))
	}
	l := labels[0]
	if l.ClassID != 0 {
		t.Errorf("ClassID: got %d, want 0", l.ClassID)
	}
	for name, got := range map[string]float64{"cx": l.CenterX, "cy": l.CenterY, "w": l.Width, "h": l.Height} {
		if math.Abs(got-0.40) > onePixel {
			t.Errorf("%s: got %.4f, want 0.40 +/- 0.01", name, got)
		}
	}

	if res.OverlayPath == "" {
		t.Fatal("expected an overlay")
	}
	if _, err := os.Stat(res.OverlayPath); err != nil {
		t.Errorf("overlay not written: %v", err)
	}
}

func TestAnnotateFile_TwoSquares(t *testing.T) {
	img := squaresImage(200, 100, image.Rect(10, 10, 30, 30), image.Rect(100, 20, 160, 80))

	tests := []struct {
		mode      string
		wantLines int
	}{
		{config.ModeLargest, 1},
		{config.ModeAll, 2},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			opts := testOptions(t, tt.mode)
			a := New(opts, detection.Native{})
			path := writePNG(t, t.TempDir(), "pair.png", img)

			if _, err := a.AnnotateFile(path); err != nil {
				t.Fatalf("AnnotateFile failed: %v", err)
			}
			labels := readLabelFile(t, filepath.Join(opts.LabelsDir, "pair.txt"))
			if len(labels) != tt.wantLines {
				t.Fatalf("got %d label lines, want %d", len(labels), tt.wantLines)
			}
			if tt.mode == config.ModeLargest {
				// The larger square spans x 100..160 of 200.
				if math.Abs(labels[0].CenterX-0.65) > 0.01 || math.Abs(labels[0].Width-0.30) > 0.01 {
					t.Errorf("largest mode picked the wrong square: %+v", labels[0])
				}
			}
		})
	}
}

func TestAnnotateFile_AllBlack(t *testing.T) {
	opts := testOptions(t, config.ModeLargest)
	a := New(opts, detection.Native{})
	path := writePNG(t, t.TempDir(), "black.png", squaresImage(100, 100))

	res, err := a.AnnotateFile(path)
	if err != nil {
		t.Fatalf("AnnotateFile failed: %v", err)
	}
	if len(res.Labels) != 0 || res.LabelPath != "" || res.OverlayPath != "" {
		t.Errorf("expected no outputs, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(opts.LabelsDir, "black.txt")); !os.IsNotExist(err) {
		t.Error("no label file should exist for an image without edges")
	}
}

func TestAnnotateFile_AlwaysVisualize(t *testing.T) {
	opts := testOptions(t, config.ModeLargest)
	opts.AlwaysVisualize = true
	a := New(opts, fakeFinder{})
	path := writePNG(t, t.TempDir(), "empty.png", squaresImage(20, 20))

	res, err := a.AnnotateFile(path)
	if err != nil {
		t.Fatalf("AnnotateFile failed: %v", err)
	}
	if res.LabelPath != "" {
		t.Error("no label file expected")
	}
	if _, err := os.Stat(filepath.Join(opts.VisualizationDir, "empty.png")); err != nil {
		t.Errorf("overlay should be written anyway: %v", err)
	}
}

func TestAnnotateFile_UnknownClass(t *testing.T) {
	classes, _ := dataset.NewClassMap([]string{"cup", "can"})
	opts := testOptions(t, config.ModeLargest)
	opts.Classes = classes
	a := New(opts, fakeFinder{boxes: []image.Rectangle{image.Rect(1, 1, 5, 5)}})
	path := writePNG(t, t.TempDir(), "plate_001.png", squaresImage(10, 10))

	_, err := a.AnnotateFile(path)
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.LabelsDir, "plate_001.txt")); !os.IsNotExist(err) {
		t.Error("no label file should be written for an unknown class")
	}
}

func TestAnnotateFile_ClassFromFilename(t *testing.T) {
	classes, _ := dataset.NewClassMap([]string{"cup", "can", "bottle"})
	opts := testOptions(t, config.ModeAll)
	opts.Classes = classes
	a := New(opts, fakeFinder{boxes: []image.Rectangle{image.Rect(0, 0, 5, 5)}})
	path := writePNG(t, t.TempDir(), "bottle_mesh_007.png", squaresImage(10, 10))

	res, err := a.AnnotateFile(path)
	if err != nil {
		t.Fatalf("AnnotateFile failed: %v", err)
	}
	if res.Labels[0].ClassID != 2 {
		t.Errorf("ClassID: got %d, want 2", res.Labels[0].ClassID)
	}
}

func TestAnnotateFile_UnderscoreClassName(t *testing.T) {
	classes, _ := dataset.NewClassMap([]string{"can", "soda_can"})
	opts := testOptions(t, config.ModeAll)
	opts.Classes = classes
	a := New(opts, fakeFinder{boxes: []image.Rectangle{image.Rect(0, 0, 5, 5)}})
	path := writePNG(t, t.TempDir(), "soda_can_can_001.png", squaresImage(10, 10))

	res, err := a.AnnotateFile(path)
	if err != nil {
		t.Fatalf("AnnotateFile failed: %v", err)
	}
	if res.Labels[0].ClassID != 1 {
		t.Errorf("ClassID: got %d, want 1 (soda_can)", res.Labels[0].ClassID)
	}
	if res.LabelPath == "" {
		t.Error("expected a label file")
	}
}

func TestAnnotate_FieldsInUnitRange(t *testing.T) {
	opts := testOptions(t, config.ModeAll)
	a := New(opts, fakeFinder{boxes: []image.Rectangle{
		image.Rect(-10, -10, 120, 50), // overhangs the frame
		image.Rect(0, 0, 100, 100),
		image.Rect(99, 99, 100, 100),
	}})

	labels, err := a.Annotate(squaresImage(100, 100), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(labels))
	}
	for _, l := range labels {
		for _, v := range []float64{l.CenterX, l.CenterY, l.Width, l.Height} {
			if v < 0 || v > 1 {
				t.Errorf("field out of [0,1]: %+v", l)
			}
		}
		if l.CenterX-l.Width/2 < -1e-9 || l.CenterX+l.Width/2 > 1+1e-9 {
			t.Errorf("box leaves the frame horizontally: %+v", l)
		}
	}
}

func TestAnnotate_PinnedFrame(t *testing.T) {
	opts := testOptions(t, config.ModeLargest)
	opts.Width, opts.Height = 200, 400
	a := New(opts, fakeFinder{boxes: []image.Rectangle{image.Rect(0, 0, 100, 100)}})

	labels, err := a.Annotate(squaresImage(100, 100), 0)
	if err != nil {
		t.Fatal(err)
	}
	if labels[0].Width != 0.5 || labels[0].Height != 0.25 {
		t.Errorf("pinned frame: got w=%g h=%g, want 0.5 0.25", labels[0].Width, labels[0].Height)
	}
}

func TestAnnotate_FinderError(t *testing.T) {
	a := New(testOptions(t, config.ModeLargest), fakeFinder{err: errors.New("backend down")})
	if _, err := a.Annotate(squaresImage(10, 10), 0); err == nil {
		t.Error("expected finder error to propagate")
	}
}

func TestSelect(t *testing.T) {
	small := image.Rect(0, 0, 2, 2)
	big := image.Rect(10, 10, 20, 20)
	tieA := image.Rect(0, 0, 4, 5)
	tieB := image.Rect(10, 10, 15, 14)

	tests := []struct {
		name  string
		boxes []image.Rectangle
		mode  string
		want  []image.Rectangle
	}{
		{"largest picks max area", []image.Rectangle{small, big}, config.ModeLargest, []image.Rectangle{big}},
		{"largest tie keeps first", []image.Rectangle{tieA, tieB}, config.ModeLargest, []image.Rectangle{tieA}},
		{"all keeps order", []image.Rectangle{big, small}, config.ModeAll, []image.Rectangle{big, small}},
		{"empty", nil, config.ModeLargest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.boxes, tt.mode)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("box %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBatch_Report(t *testing.T) {
	classes, _ := dataset.NewClassMap([]string{"cup"})
	opts := testOptions(t, config.ModeLargest)
	opts.Classes = classes
	a := New(opts, detection.Native{})

	dir := t.TempDir()
	writePNG(t, dir, "cup_001.png", squaresImage(100, 100, image.Rect(20, 20, 60, 60)))
	writePNG(t, dir, "cup_002.png", squaresImage(100, 100))
	writePNG(t, dir, "plate_001.png", squaresImage(100, 100, image.Rect(20, 20, 60, 60)))
	if err := os.WriteFile(filepath.Join(dir, "cup_003.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := a.BatchDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("BatchDir failed: %v", err)
	}
	want := Report{Processed: 4, Labeled: 1, Skipped: 1, Unknown: 1, Failed: 1, Boxes: 1}
	if report != want {
		t.Errorf("report: got %+v, want %+v", report, want)
	}
}

func TestBatch_Cancelled(t *testing.T) {
	a := New(testOptions(t, config.ModeLargest), fakeFinder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Batch(ctx, []string{"a.png"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Annotate

	if _, err := OptionsFromConfig(cfg, nil); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("filename class source without a table should fail, got %v", err)
	}

	cfg.ClassSource = "fixed"
	cfg.ClassID = 4
	opts, err := OptionsFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("OptionsFromConfig failed: %v", err)
	}
	if opts.Classes != nil || opts.ClassID != 4 {
		t.Errorf("fixed class source: got %+v", opts)
	}

	cfg.BoxColor = "green"
	if _, err := OptionsFromConfig(cfg, nil); err == nil || !strings.Contains(err.Error(), "box_color") {
		t.Errorf("expected box_color error, got %v", err)
	}
}
