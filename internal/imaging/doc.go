// Package imaging provides the image operations the annotator and renderer
// share: Canny edge detection, overlay drawing, color parsing and file IO.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For rectangles, Min is inclusive and Max is exclusive, as in image.Rectangle
//
// # Edge Maps
//
// Canny returns an *image.Gray where edge pixels are EdgeOn (255) and all
// other pixels are EdgeOff (0). The map has the same bounds as its source.
//
// # Thread Safety
//
// Functions are stateless and can be called concurrently on different
// images. DrawRect and DrawLabel mutate their destination; DrawBoxes works on
// a copy.
package imaging
