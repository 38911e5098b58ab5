package annotate

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"
)

// Label is one normalized bounding box: class_id cx cy w h, each of the four
// coordinates in [0,1].
type Label struct {
	ClassID int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// String formats the label as one line of a YOLO label file.
func (l Label) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.ClassID, l.CenterX, l.CenterY, l.Width, l.Height)
}

// Normalize converts a pixel box to a Label using the given frame size.
// The box is clipped to the frame first, then every field is clamped to
// [0,1].
func Normalize(classID int, box image.Rectangle, width, height int) Label {
	box = box.Intersect(image.Rect(0, 0, width, height))
	w := float64(width)
	h := float64(height)
	return Label{
		ClassID: classID,
		CenterX: unit(float64(box.Min.X+box.Max.X) / 2 / w),
		CenterY: unit(float64(box.Min.Y+box.Max.Y) / 2 / h),
		Width:   unit(float64(box.Dx()) / w),
		Height:  unit(float64(box.Dy()) / h),
	}
}

// Rect maps the label back to pixel coordinates in a width x height frame.
func (l Label) Rect(width, height int) image.Rectangle {
	w := float64(width)
	h := float64(height)
	x1 := math.Round((l.CenterX - l.Width/2) * w)
	y1 := math.Round((l.CenterY - l.Height/2) * h)
	x2 := math.Round((l.CenterX + l.Width/2) * w)
	y2 := math.Round((l.CenterY + l.Height/2) * h)
	return image.Rect(int(x1), int(y1), int(x2), int(y2))
}

func unit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// WriteLabels writes one line per label.
func WriteLabels(w io.Writer, labels []Label) error {
	for _, l := range labels {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return nil
}

// ReadLabels parses a label file. Blank lines are ignored.
func ReadLabels(r io.Reader) ([]Label, error) {
	var labels []Label
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", line, len(fields))
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid class id: %w", line, err)
		}
		var v [4]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid coordinate: %w", line, err)
			}
		}
		labels = append(labels, Label{ClassID: id, CenterX: v[0], CenterY: v[1], Width: v[2], Height: v[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}
