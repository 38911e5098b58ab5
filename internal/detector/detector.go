// Package detector decodes YOLOv8 detection output and post-processes it.
//
// Nothing here depends on OpenCV: the vision package runs the network and
// hands the raw output tensor to Decode, then applies NMS and a Tracker.
package detector

import (
	"fmt"
	"image"
	"sort"
)

// Detection is one object found in a frame.
type Detection struct {
	Box        image.Rectangle // Frame pixel coordinates
	ClassID    int
	Confidence float32
}

// Shape describes a YOLOv8 output tensor laid out as [1, 4+nc, anchors].
// Each anchor column holds cx, cy, w, h in network input pixels followed by
// one score per class.
type Shape struct {
	Channels int // 4 + number of classes
	Anchors  int
}

// Classes is the number of class score rows.
func (s Shape) Classes() int {
	return s.Channels - 4
}

// Decode converts the raw output into detections whose best class score is
// at least minConfidence. Boxes are scaled from the square network input
// of inputSize pixels to frame, which is the stretched source frame size.
func Decode(data []float32, shape Shape, inputSize int, frame image.Point, minConfidence float32) ([]Detection, error) {
	if shape.Classes() < 1 || shape.Anchors < 1 {
		return nil, fmt.Errorf("output shape [1, %d, %d] has no classes", shape.Channels, shape.Anchors)
	}
	if len(data) != shape.Channels*shape.Anchors {
		return nil, fmt.Errorf("output has %d values, shape [1, %d, %d] needs %d",
			len(data), shape.Channels, shape.Anchors, shape.Channels*shape.Anchors)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", inputSize)
	}

	sx := float32(frame.X) / float32(inputSize)
	sy := float32(frame.Y) / float32(inputSize)
	at := func(row, anchor int) float32 {
		return data[row*shape.Anchors+anchor]
	}

	var dets []Detection
	for a := 0; a < shape.Anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < shape.Classes(); c++ {
			if s := at(4+c, a); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < minConfidence {
			continue
		}

		cx, cy, w, h := at(0, a)*sx, at(1, a)*sy, at(2, a)*sx, at(3, a)*sy
		box := image.Rect(
			int(cx-w/2+0.5), int(cy-h/2+0.5),
			int(cx+w/2+0.5), int(cy+h/2+0.5),
		).Intersect(image.Rectangle{Max: frame})
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{Box: box, ClassID: best, Confidence: bestScore})
	}
	return dets, nil
}

// IoU is the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	if union == 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// NMS performs greedy per-class non-maximum suppression. Detections are
// visited by descending confidence; one is dropped when it overlaps an
// already kept detection of the same class by more than iouThreshold.
func NMS(dets []Detection, iouThreshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && IoU(k.Box, d.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}
