package detection

import (
	"image"

	"github.com/ironsheep/meshsynth/internal/imaging"
)

// LinkRadius is the Chebyshev distance within which two edge pixels belong
// to the same contour. A radius of 2 bridges the one pixel gaps non-maximum
// suppression leaves at sharp corners.
const LinkRadius = 2

// Contour is a connected group of edge pixels.
type Contour struct {
	// Points are the member pixels in discovery order. Points[0] is the
	// first pixel met in a raster scan.
	Points []image.Point

	// Bounds is the axis-aligned bounding rectangle of Points. Min is
	// inclusive and Max exclusive, so Bounds.Dx() counts pixel columns.
	Bounds image.Rectangle
}

// Area is the bounding rectangle area in square pixels.
func (c Contour) Area() int {
	return c.Bounds.Dx() * c.Bounds.Dy()
}

// FindContours groups the EdgeOn pixels of an edge map into contours.
//
// Contours are returned in raster order of their first pixel, which is the
// enumeration order box selection uses to break ties. Contours with fewer
// than minPoints pixels are dropped.
//
// # Algorithm
//
//  1. Scan the map row by row for unvisited edge pixels
//  2. Flood-fill from each one, linking pixels up to LinkRadius apart
//  3. Track the bounding rectangle while filling
func FindContours(edges *image.Gray, minPoints int) []Contour {
	bounds := edges.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	isEdge := func(x, y int) bool {
		return edges.Pix[edges.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)] == imaging.EdgeOn
	}

	visited := make([][]bool, height)
	for y := 0; y < height; y++ {
		visited[y] = make([]bool, width)
	}

	contours := make([]Contour, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if visited[y][x] || !isEdge(x, y) {
				continue
			}
			points := floodFill(isEdge, visited, x, y, width, height)
			if len(points) < minPoints {
				continue
			}
			contours = append(contours, newContour(points, bounds.Min))
		}
	}
	return contours
}

// floodFill collects every edge pixel reachable from (startX, startY).
// Iterative so large contours cannot overflow the stack.
func floodFill(isEdge func(x, y int) bool, visited [][]bool, startX, startY, width, height int) []image.Point {
	var points []image.Point
	stack := []image.Point{{X: startX, Y: startY}}
	visited[startY][startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		points = append(points, p)

		for dy := -LinkRadius; dy <= LinkRadius; dy++ {
			for dx := -LinkRadius; dx <= LinkRadius; dx++ {
				nx, ny := p.X+dx, p.Y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				if visited[ny][nx] || !isEdge(nx, ny) {
					continue
				}
				visited[ny][nx] = true
				stack = append(stack, image.Point{X: nx, Y: ny})
			}
		}
	}
	return points
}

func newContour(points []image.Point, origin image.Point) Contour {
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for i := range points {
		p := points[i]
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
		points[i] = p.Add(origin)
	}
	return Contour{
		Points: points,
		Bounds: image.Rect(minX, minY, maxX+1, maxY+1).Add(origin),
	}
}

// External keeps only outermost contours: a contour whose bounding rectangle
// lies inside another contour's rectangle (and differs from it) is dropped.
// Order is preserved.
func External(contours []Contour) []Contour {
	out := make([]Contour, 0, len(contours))
	for i, c := range contours {
		nested := false
		for j, other := range contours {
			if i == j {
				continue
			}
			if c.Bounds.In(other.Bounds) && c.Bounds != other.Bounds {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}

// Largest returns the contour with the greatest bounding area. On ties the
// earliest contour wins. ok is false when contours is empty.
func Largest(contours []Contour) (largest Contour, ok bool) {
	best := -1
	for i, c := range contours {
		if best < 0 || c.Area() > contours[best].Area() {
			best = i
		}
	}
	if best < 0 {
		return Contour{}, false
	}
	return contours[best], true
}

// Boxes returns the bounding rectangles of contours in order.
func Boxes(contours []Contour) []image.Rectangle {
	boxes := make([]image.Rectangle, len(contours))
	for i, c := range contours {
		boxes[i] = c.Bounds
	}
	return boxes
}

// Native finds external contour boxes with the pure Go Canny and flood-fill.
type Native struct {
	// MinPoints drops contours with fewer pixels. Zero keeps everything.
	MinPoints int
}

// FindBoxes runs Canny on img and returns the bounding rectangles of its
// external contours in enumeration order.
func (n Native) FindBoxes(img image.Image, low, high int) ([]image.Rectangle, error) {
	edges := imaging.Canny(img, low, high)
	return Boxes(External(FindContours(edges, n.MinPoints))), nil
}
