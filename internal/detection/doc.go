// Package detection extracts object outlines from edge maps.
//
// The annotator asks a finder for the bounding boxes of the external
// contours in an image. Native is the pure Go finder: Canny edges from
// package imaging, flood-fill grouping of edge pixels, then removal of
// contours nested inside others.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive Min and exclusive Max
//
// # Enumeration Order
//
// Contours are reported in raster order of their first pixel. Callers that
// pick a single contour rely on this order to break ties deterministically.
//
// # Limitations
//
// Nesting is judged on bounding rectangles, not on the contour polygons, so
// an outline that merely sits inside another's rectangle is treated as
// internal.
//
// Edge pixels up to LinkRadius apart join one contour. OpenCV links only
// touching pixels, so two objects whose outlines pass within two pixels of
// each other come back as one box here and as two from the opencv backend.
package detection
