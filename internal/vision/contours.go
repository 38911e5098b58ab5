package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Contours finds bounding boxes with OpenCV: grayscale, Canny, external
// contours, bounding rectangles. It implements annotate.ContourFinder.
type Contours struct{}

// FindBoxes returns one rectangle per external contour in img.
func (Contours) FindBoxes(img image.Image, low, high int) ([]image.Rectangle, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(low), float32(high))

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	boxes := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		boxes = append(boxes, gocv.BoundingRect(contours.At(i)))
	}
	return boxes, nil
}
