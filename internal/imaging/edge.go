package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// Edge pixel values in the map returned by Canny.
const (
	EdgeOn  uint8 = 255
	EdgeOff uint8 = 0
)

// blurRadius is the Gaussian radius applied before gradients are computed.
// A radius of 2 gives a symmetric 5-tap kernel.
const blurRadius = 2

// nmsTolerance absorbs 8-bit quantization noise when neighbouring gradient
// magnitudes are compared. Values are on the Sobel scale of intensities in
// [0,1], where a hard black to white step peaks near 4.
const nmsTolerance = 0.05

// Canny runs Canny edge detection and returns a binary map with the same
// bounds as img. Edge pixels are EdgeOn, everything else EdgeOff.
//
// Thresholds are on the 0-255 intensity scale (typical 50/150).
//
// # Algorithm
//
//  1. Grayscale conversion (bild effect.Grayscale)
//  2. Gaussian blur (bild blur.Gaussian, radius 2)
//  3. Sobel gradients: magnitude and direction
//  4. Non-maximum suppression along the gradient direction
//  5. Hysteresis: strong pixels (>= high) are kept, weak pixels
//     (>= low) are kept when a chain of 8-connected weak pixels leads
//     to a strong one
//
// When two neighbours across the gradient tie, only the one with the lower
// coordinate survives, so a symmetric step yields a one pixel wide edge.
func Canny(img image.Image, thresholdLow, thresholdHigh int) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := image.NewGray(bounds)
	if width < 3 || height < 3 {
		return result
	}

	blurred := blur.Gaussian(effect.Grayscale(img), blurRadius)
	bb := blurred.Bounds()

	intensity := make([][]float64, height)
	for y := 0; y < height; y++ {
		intensity[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			off := blurred.PixOffset(x+bb.Min.X, y+bb.Min.Y)
			intensity[y][x] = float64(blurred.Pix[off]) / 255.0
		}
	}

	magnitude, direction := sobel(intensity, width, height)
	suppressed := suppressNonMaxima(magnitude, direction, width, height)

	keep := hysteresis(suppressed, float64(thresholdLow)/255.0, float64(thresholdHigh)/255.0, width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if keep[y][x] {
				result.SetGray(x+bounds.Min.X, y+bounds.Min.Y, color.Gray{EdgeOn})
			}
		}
	}

	return result
}

// hysteresis marks every pixel >= high, then grows those marks through
// 8-connected pixels >= low to any depth.
func hysteresis(suppressed [][]float64, low, high float64, width, height int) [][]bool {
	keep := make([][]bool, height)
	var stack []image.Point
	for y := 0; y < height; y++ {
		keep[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			if suppressed[y][x] >= high {
				keep[y][x] = true
				stack = append(stack, image.Point{X: x, Y: y})
			}
		}
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for ky := -1; ky <= 1; ky++ {
			for kx := -1; kx <= 1; kx++ {
				px, py := p.X+kx, p.Y+ky
				if px < 0 || py < 0 || px >= width || py >= height || keep[py][px] {
					continue
				}
				if suppressed[py][px] >= low {
					keep[py][px] = true
					stack = append(stack, image.Point{X: px, Y: py})
				}
			}
		}
	}
	return keep
}

func sobel(intensity [][]float64, width, height int) (magnitude, direction [][]float64) {
	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	magnitude = make([][]float64, height)
	direction = make([][]float64, height)
	for y := 0; y < height; y++ {
		magnitude[y] = make([]float64, width)
		direction[y] = make([]float64, width)

		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clamp(y+ky, 0, height-1)
					px := clamp(x+kx, 0, width-1)
					gx += intensity[py][px] * sobelX[ky+1][kx+1]
					gy += intensity[py][px] * sobelY[ky+1][kx+1]
				}
			}
			magnitude[y][x] = math.Sqrt(gx*gx + gy*gy)
			direction[y][x] = math.Atan2(gy, gx)
		}
	}
	return magnitude, direction
}

// suppressNonMaxima keeps pixels that are local maxima across the edge.
// Y grows downward, so a gradient at +45 degrees points to (x+1, y+1).
// n1 is always the neighbour with the lower coordinate.
func suppressNonMaxima(magnitude, direction [][]float64, width, height int) [][]float64 {
	suppressed := make([][]float64, height)
	for y := 0; y < height; y++ {
		suppressed[y] = make([]float64, width)
		if y == 0 || y == height-1 {
			continue
		}
		for x := 1; x < width-1; x++ {
			angle := direction[y][x]
			mag := magnitude[y][x]
			if mag == 0 {
				continue
			}

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1 = magnitude[y][x-1]
				n2 = magnitude[y][x+1]
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1 = magnitude[y-1][x-1]
				n2 = magnitude[y+1][x+1]
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1 = magnitude[y-1][x]
				n2 = magnitude[y+1][x]
			default:
				n1 = magnitude[y-1][x+1]
				n2 = magnitude[y+1][x-1]
			}

			if mag > n1+nmsTolerance && mag >= n2-nmsTolerance {
				suppressed[y][x] = mag
			}
		}
	}
	return suppressed
}

// EdgeCount returns the number of EdgeOn pixels in an edge map.
func EdgeCount(edges *image.Gray) int {
	n := 0
	for _, v := range edges.Pix {
		if v == EdgeOn {
			n++
		}
	}
	return n
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
