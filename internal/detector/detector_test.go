package detector

import (
	"image"
	"math"
	"testing"
)

// tensor builds a [1, 4+nc, anchors] output from per-anchor rows of
// cx, cy, w, h, scores...
func tensor(nc int, anchors ...[]float32) ([]float32, Shape) {
	shape := Shape{Channels: 4 + nc, Anchors: len(anchors)}
	data := make([]float32, shape.Channels*shape.Anchors)
	for a, col := range anchors {
		for row, v := range col {
			data[row*shape.Anchors+a] = v
		}
	}
	return data, shape
}

func TestDecode(t *testing.T) {
	data, shape := tensor(2,
		[]float32{320, 320, 64, 128, 0.9, 0.1}, // class 0
		[]float32{100, 100, 20, 20, 0.2, 0.3},  // below threshold
		[]float32{620, 40, 80, 40, 0.05, 0.7},  // class 1
	)

	dets, err := Decode(data, shape, 640, image.Pt(1280, 720), 0.5)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2", len(dets))
	}

	// 640 -> 1280 wide, 640 -> 720 high.
	want := image.Rect(576, 288, 704, 432)
	if dets[0].Box != want || dets[0].ClassID != 0 || dets[0].Confidence != 0.9 {
		t.Errorf("detection 0: got %+v, want box %v class 0", dets[0], want)
	}
	if dets[1].ClassID != 1 {
		t.Errorf("detection 1: got class %d, want 1", dets[1].ClassID)
	}
	// Clipped at the right frame edge: 1240+80 would pass 1280.
	if dets[1].Box.Max.X != 1280 {
		t.Errorf("detection 1 should be clipped, got %v", dets[1].Box)
	}
}

func TestDecode_ShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  []float32
		shape Shape
		input int
	}{
		{"no classes", make([]float32, 4), Shape{Channels: 4, Anchors: 1}, 640},
		{"length mismatch", make([]float32, 5), Shape{Channels: 6, Anchors: 1}, 640},
		{"zero input", make([]float32, 6), Shape{Channels: 6, Anchors: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data, tt.shape, tt.input, image.Pt(640, 640), 0.5); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b image.Rectangle
		want float64
	}{
		{"identical", image.Rect(0, 0, 10, 10), image.Rect(0, 0, 10, 10), 1},
		{"disjoint", image.Rect(0, 0, 10, 10), image.Rect(20, 20, 30, 30), 0},
		{"half overlap", image.Rect(0, 0, 10, 10), image.Rect(5, 0, 15, 10), 50.0 / 150.0},
		{"touching", image.Rect(0, 0, 10, 10), image.Rect(10, 0, 20, 10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IoU(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IoU: got %g, want %g", got, tt.want)
			}
		})
	}
}

func TestNMS(t *testing.T) {
	dets := []Detection{
		{Box: image.Rect(0, 0, 100, 100), ClassID: 0, Confidence: 0.6},
		{Box: image.Rect(5, 5, 105, 105), ClassID: 0, Confidence: 0.9},
		{Box: image.Rect(5, 5, 105, 105), ClassID: 1, Confidence: 0.8},
		{Box: image.Rect(300, 300, 350, 350), ClassID: 0, Confidence: 0.55},
	}

	kept := NMS(dets, 0.45)
	if len(kept) != 3 {
		t.Fatalf("got %d detections, want 3: %+v", len(kept), kept)
	}
	if kept[0].Confidence != 0.9 || kept[1].ClassID != 1 || kept[2].Box.Min.X != 300 {
		t.Errorf("unexpected order or survivors: %+v", kept)
	}
	if dets[0].Confidence != 0.6 {
		t.Error("input slice should not be reordered")
	}
}

func TestNMS_Empty(t *testing.T) {
	if got := NMS(nil, 0.45); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestTracker_KeepsIDs(t *testing.T) {
	tr := NewTracker(0.3, 2)

	first := tr.Update([]Detection{
		{Box: image.Rect(0, 0, 50, 50), ClassID: 0, Confidence: 0.9},
		{Box: image.Rect(200, 200, 250, 250), ClassID: 1, Confidence: 0.8},
	})
	if len(first) != 2 || first[0].ID != 1 || first[1].ID != 2 {
		t.Fatalf("first frame: %+v", first)
	}

	// Both objects moved a little; a new one appeared.
	second := tr.Update([]Detection{
		{Box: image.Rect(205, 205, 255, 255), ClassID: 1, Confidence: 0.8},
		{Box: image.Rect(4, 4, 54, 54), ClassID: 0, Confidence: 0.9},
		{Box: image.Rect(400, 0, 450, 50), ClassID: 0, Confidence: 0.7},
	})
	if len(second) != 3 {
		t.Fatalf("second frame: %+v", second)
	}
	if second[0].ID != 1 || second[0].Detection.Box.Min.X != 4 || second[0].Hits != 2 {
		t.Errorf("track 1 not continued: %+v", second[0])
	}
	if second[1].ID != 2 || second[1].Detection.ClassID != 1 {
		t.Errorf("track 2 not continued: %+v", second[1])
	}
	if second[2].ID != 3 {
		t.Errorf("new object should get ID 3, got %d", second[2].ID)
	}
}

func TestTracker_ClassMustMatch(t *testing.T) {
	tr := NewTracker(0.3, 2)
	tr.Update([]Detection{{Box: image.Rect(0, 0, 50, 50), ClassID: 0}})
	got := tr.Update([]Detection{{Box: image.Rect(0, 0, 50, 50), ClassID: 1}})
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("different class should start a new track: %+v", got)
	}
}

func TestTracker_DropsAfterMaxMissed(t *testing.T) {
	tr := NewTracker(0.3, 2)
	tr.Update([]Detection{{Box: image.Rect(0, 0, 50, 50)}})

	for i := 1; i <= 2; i++ {
		if seen := tr.Update(nil); len(seen) != 0 {
			t.Fatalf("missed frame %d should report nothing", i)
		}
		if tr.Len() != 1 {
			t.Fatalf("track should survive %d missed frames", i)
		}
	}
	tr.Update(nil)
	if tr.Len() != 0 {
		t.Errorf("track should be dropped after 3 missed frames, have %d", tr.Len())
	}

	// A track that reappears within the window keeps its ID.
	tr = NewTracker(0.3, 2)
	tr.Update([]Detection{{Box: image.Rect(0, 0, 50, 50)}})
	tr.Update(nil)
	got := tr.Update([]Detection{{Box: image.Rect(2, 2, 52, 52)}})
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("reappearing object should keep ID 1: %+v", got)
	}
}

func TestLabel(t *testing.T) {
	names := []string{"cup", "can", "bottle"}
	tests := []struct {
		track Track
		want  string
	}{
		{Track{ID: 3, Detection: Detection{ClassID: 2, Confidence: 0.876}}, "bottle #3: 0.88"},
		{Track{ID: 1, Detection: Detection{ClassID: 0, Confidence: 0.5}}, "cup #1: 0.50"},
		{Track{ID: 9, Detection: Detection{ClassID: 7, Confidence: 0.61}}, "class 7 #9: 0.61"},
	}
	for _, tt := range tests {
		if got := Label(names, tt.track); got != tt.want {
			t.Errorf("Label: got %q, want %q", got, tt.want)
		}
	}
}
