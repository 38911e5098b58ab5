// Package annotate derives bounding-box labels for rendered images from
// their edges and contours.
//
// One Annotator covers both labeling strategies: ModeLargest keeps the
// contour box with the greatest area (first seen wins ties) and ModeAll
// keeps every external contour. Images without contours get no label file.
package annotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/dataset"
	"github.com/ironsheep/meshsynth/internal/imaging"
	"github.com/ironsheep/meshsynth/internal/logging"
)

// ErrUnknownClass is returned when an image name maps to no known class.
var ErrUnknownClass = errors.New("unknown class")

// ContourFinder returns the bounding rectangles of the external contours in
// an image, in enumeration order. Thresholds are on the 0-255 scale.
type ContourFinder interface {
	FindBoxes(img image.Image, low, high int) ([]image.Rectangle, error)
}

// Options configures an Annotator.
type Options struct {
	Mode          string
	LowThreshold  int
	HighThreshold int

	// Width and Height pin the normalization frame. Zero uses the image size.
	Width  int
	Height int

	// Classes resolves the class from the file name prefix. When nil every
	// image gets ClassID.
	Classes *dataset.ClassMap
	ClassID int

	LabelsDir        string
	VisualizationDir string // Empty disables overlays
	AlwaysVisualize  bool
	Style            imaging.OverlayStyle
}

// OptionsFromConfig maps the annotate config section to Options. classes is
// only used when class_source is "filename".
func OptionsFromConfig(cfg config.AnnotateConfig, classes *dataset.ClassMap) (Options, error) {
	boxColor, err := imaging.ParseColor(cfg.BoxColor)
	if err != nil {
		return Options{}, fmt.Errorf("%w: annotate.box_color: %v", config.ErrInvalid, err)
	}

	opts := Options{
		Mode:             cfg.Mode,
		LowThreshold:     cfg.LowThreshold,
		HighThreshold:    cfg.HighThreshold,
		Width:            cfg.Width,
		Height:           cfg.Height,
		ClassID:          cfg.ClassID,
		LabelsDir:        cfg.LabelsDir,
		VisualizationDir: cfg.VisualizationDir,
		AlwaysVisualize:  cfg.AlwaysVisualize,
		Style:            imaging.OverlayStyle{Color: boxColor, LineWidth: cfg.LineWidth},
	}
	if cfg.ClassSource == "filename" {
		if classes == nil {
			return Options{}, fmt.Errorf("%w: annotate.class_source filename needs a class table", config.ErrInvalid)
		}
		opts.Classes = classes
	}
	return opts, nil
}

// Result describes one annotated image.
type Result struct {
	Labels      []Label
	LabelPath   string // Empty when no label file was written
	OverlayPath string // Empty when no overlay was written
}

// Report summarizes a batch run.
type Report struct {
	Processed int // Images looked at
	Labeled   int // Label files written
	Skipped   int // No contour found
	Unknown   int // Class not in the table
	Failed    int // Load or write errors
	Boxes     int // Label lines written
}

// Annotator labels images with a ContourFinder.
type Annotator struct {
	opts   Options
	finder ContourFinder
	logger zerolog.Logger
}

// New creates an Annotator.
func New(opts Options, finder ContourFinder) *Annotator {
	return &Annotator{
		opts:   opts,
		finder: finder,
		logger: logging.Component("annotate"),
	}
}

// Annotate returns the labels for img without touching disk.
//
// Parameters:
//   - img: the rendered frame. Its size is the normalization frame unless
//     Options.Width and Options.Height pin one.
//   - classID: written as the first field of every label.
//
// Returns:
//   - []Label: one label per selected box, in enumeration order. Empty when
//     the finder saw no contours.
//   - error: Non-nil only when the contour backend fails.
func (a *Annotator) Annotate(img image.Image, classID int) ([]Label, error) {
	boxes, err := a.finder.FindBoxes(img, a.opts.LowThreshold, a.opts.HighThreshold)
	if err != nil {
		return nil, fmt.Errorf("contour search failed: %w", err)
	}

	bounds := img.Bounds()
	for i := range boxes {
		boxes[i] = boxes[i].Sub(bounds.Min)
	}
	boxes = Select(boxes, a.opts.Mode)

	width, height := bounds.Dx(), bounds.Dy()
	if a.opts.Width > 0 {
		width = a.opts.Width
	}
	if a.opts.Height > 0 {
		height = a.opts.Height
	}

	labels := make([]Label, 0, len(boxes))
	for _, b := range boxes {
		labels = append(labels, Normalize(classID, b, width, height))
	}
	return labels, nil
}

// Select applies the annotation mode to boxes in enumeration order.
// ModeLargest returns the single box of greatest area, the first one on a
// tie; any other mode returns every box.
func Select(boxes []image.Rectangle, mode string) []image.Rectangle {
	if mode != config.ModeLargest || len(boxes) <= 1 {
		return boxes
	}
	best := 0
	for i, b := range boxes {
		if area(b) > area(boxes[best]) {
			best = i
		}
	}
	return []image.Rectangle{boxes[best]}
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// ResolveClass returns the class ID for an image path.
//
// With no class table every path gets Options.ClassID. Otherwise the file
// name must start with a known class name (see dataset.ClassMap.Match);
// names that match none return an error wrapping ErrUnknownClass.
func (a *Annotator) ResolveClass(path string) (int, error) {
	if a.opts.Classes == nil {
		return a.opts.ClassID, nil
	}
	_, id, ok := a.opts.Classes.Match(path)
	if !ok {
		name := dataset.ClassFromFilename(path)
		return 0, fmt.Errorf("%w: %q from %s", ErrUnknownClass, name, filepath.Base(path))
	}
	return id, nil
}

// AnnotateFile labels one image file and writes <stem>.txt to LabelsDir
// and <stem>.png to VisualizationDir. No label file is written when the
// image has no contours.
//
// Parameters:
//   - path: a PNG or JPEG frame, usually written by package capture.
//
// Returns:
//   - *Result: the labels and the paths actually written.
//   - error: Non-nil if the class is unknown, the image cannot be decoded,
//     or an output file cannot be written.
//
// # Errors
//
//   - Wraps ErrUnknownClass when ResolveClass fails; nothing is written
//   - Returns the decode or write error with the offending path
func (a *Annotator) AnnotateFile(path string) (*Result, error) {
	classID, err := a.ResolveClass(path)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Load(path)
	if err != nil {
		return nil, err
	}

	labels, err := a.Annotate(img, classID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	stem := imaging.Stem(path)
	result := &Result{Labels: labels}

	if len(labels) > 0 {
		result.LabelPath = filepath.Join(a.opts.LabelsDir, stem+".txt")
		if err := writeLabelFile(result.LabelPath, labels); err != nil {
			return nil, err
		}
	}

	if a.opts.VisualizationDir != "" && (len(labels) > 0 || a.opts.AlwaysVisualize) {
		result.OverlayPath = filepath.Join(a.opts.VisualizationDir, stem+".png")
		if err := imaging.Save(result.OverlayPath, a.overlay(img, labels)); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *Annotator) overlay(img image.Image, labels []Label) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if a.opts.Width > 0 {
		width = a.opts.Width
	}
	if a.opts.Height > 0 {
		height = a.opts.Height
	}

	boxes := make([]imaging.Box, 0, len(labels))
	for _, l := range labels {
		boxes = append(boxes, imaging.Box{
			Rect:  l.Rect(width, height).Add(bounds.Min),
			Label: a.className(l.ClassID),
		})
	}
	return imaging.DrawBoxes(img, boxes, a.opts.Style)
}

func (a *Annotator) className(id int) string {
	if a.opts.Classes != nil {
		if name, ok := a.opts.Classes.Name(id); ok {
			return name
		}
	}
	return strconv.Itoa(id)
}

func writeLabelFile(path string, labels []Label) error {
	var buf bytes.Buffer
	if err := WriteLabels(&buf, labels); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create labels directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write label file: %w", err)
	}
	return nil
}

// Batch annotates every path in order. Unknown classes, images without
// contours and per-file errors are logged and counted; the batch carries on.
// It stops early only when ctx is cancelled.
//
// Returns:
//   - Report: counts for every path looked at before returning.
//   - error: ctx.Err() on cancellation, otherwise nil.
func (a *Annotator) Batch(ctx context.Context, paths []string) (Report, error) {
	var report Report
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++

		res, err := a.AnnotateFile(path)
		switch {
		case errors.Is(err, ErrUnknownClass):
			report.Unknown++
			a.logger.Warn().Err(err).Str("path", path).Msg("skipping image with unknown class")
		case err != nil:
			report.Failed++
			a.logger.Error().Err(err).Str("path", path).Msg("failed to annotate image")
		case len(res.Labels) == 0:
			report.Skipped++
			a.logger.Debug().Str("path", path).Msg("no contours found")
		default:
			report.Labeled++
			report.Boxes += len(res.Labels)
			a.logger.Debug().Str("path", path).Int("boxes", len(res.Labels)).Str("label", res.LabelPath).Msg("labeled")
		}
	}
	return report, nil
}

// BatchDir annotates every image directly inside dir in name order.
func (a *Annotator) BatchDir(ctx context.Context, dir string) (Report, error) {
	paths, err := imaging.ListImages(dir)
	if err != nil {
		return Report{}, err
	}
	a.logger.Info().Str("dir", dir).Int("images", len(paths)).Str("mode", a.opts.Mode).Msg("annotating")

	report, err := a.Batch(ctx, paths)
	if err != nil {
		return report, err
	}
	a.logger.Info().
		Int("processed", report.Processed).
		Int("labeled", report.Labeled).
		Int("skipped", report.Skipped).
		Int("unknown", report.Unknown).
		Int("failed", report.Failed).
		Msg("annotation finished")
	return report, nil
}
