package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ParseColor parses "#RGB", "#RRGGBB" or "#RRGGBBAA" into an RGBA color.
// The leading '#' is optional.
func ParseColor(hex string) (color.RGBA, error) {
	if hex == "" {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	switch len(hex) {
	case 4, 7, 9:
	default:
		return color.RGBA{}, fmt.Errorf("invalid color %q: want #RGB, #RRGGBB or #RRGGBBAA", hex)
	}
	if i := strings.IndexFunc(hex[1:], func(r rune) bool { return !isHexDigit(r) }); i >= 0 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %q is not a hex digit", hex, hex[i+1])
	}

	alpha := uint8(255)
	if len(hex) == 9 {
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha in color %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:7]
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}, nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ForegroundFraction returns the fraction of pixels whose RGB distance from
// bg exceeds tolerance (0 to ~1.73). A render whose object left the frame
// scores 0.
func ForegroundFraction(img image.Image, bg color.Color, tolerance float64) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	ref, _ := colorful.MakeColor(bg)
	foreground := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue // fully transparent
			}
			if c.DistanceRgb(ref) > tolerance {
				foreground++
			}
		}
	}
	return float64(foreground) / float64(total)
}
