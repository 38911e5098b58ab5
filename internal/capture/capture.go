// Package capture renders orbit image sequences of meshes.
//
// A Capturer takes an oriented base mesh, asks its Planner for the pose of
// each frame, renders the rotated copy and writes it as
// <prefix><index>.png with a 1-based, zero padded index.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/imaging"
	"github.com/ironsheep/meshsynth/internal/logging"
	"github.com/ironsheep/meshsynth/internal/mesh"
	"github.com/ironsheep/meshsynth/internal/orient"
)

// SinglePrefix names frames of a single-mesh run.
const SinglePrefix = "image"

// minForeground is the fraction of non-background pixels below which a
// frame is reported as probably empty.
const minForeground = 0.001

// Renderer draws a mesh. render.Renderer implements it.
type Renderer interface {
	Render(m *mesh.Mesh, zoom float64) (image.Image, error)
}

// Options configure a Capturer.
type Options struct {
	Frames     int
	FramePad   int
	NameFrom   string // "mesh" or "class"
	Background color.Color
}

// Report summarizes a directory capture.
type Report struct {
	Meshes  int
	Skipped int
	Frames  int
}

// Capturer renders frame sequences. It is not safe for concurrent use.
type Capturer struct {
	opts       Options
	renderer   Renderer
	planner    Planner
	normalizer *orient.Normalizer
	logger     zerolog.Logger
}

// New creates a Capturer. normalizer may be nil when meshes are already
// oriented.
func New(opts Options, renderer Renderer, planner Planner, normalizer *orient.Normalizer) *Capturer {
	if opts.FramePad < 1 {
		opts.FramePad = 3
	}
	if opts.Background == nil {
		opts.Background = color.White
	}
	return &Capturer{
		opts:       opts,
		renderer:   renderer,
		planner:    planner,
		normalizer: normalizer,
		logger:     logging.Component("capture"),
	}
}

// OptionsFromConfig derives capture options; the background comes from the
// render section.
func OptionsFromConfig(capture config.CaptureConfig, render config.RenderConfig) (Options, error) {
	bg, err := imaging.ParseColor(render.Background)
	if err != nil {
		return Options{}, fmt.Errorf("%w: render.background: %v", config.ErrInvalid, err)
	}
	return Options{
		Frames:     capture.Frames,
		FramePad:   capture.FramePad,
		NameFrom:   capture.NameFrom,
		Background: bg,
	}, nil
}

// FrameName returns the file name of frame i (0-based) for prefix.
func (c *Capturer) FrameName(prefix string, i int) string {
	return fmt.Sprintf("%s%0*d.png", prefix, c.opts.FramePad, i+1)
}

// CaptureMesh renders every frame of base into outDir and returns the
// written paths. base is not modified.
//
// Parameters:
//   - ctx: checked before each frame; cancellation stops the run.
//   - base: the oriented mesh. Each frame rotates a fresh clone by the
//     planner's absolute pose.
//   - outDir: created if missing.
//   - prefix: prepended to the 1-based, zero padded frame index.
//
// Returns:
//   - []string: paths of the frames written so far, also on error.
//   - error: the renderer's or encoder's error, or ctx.Err().
//
// Frames that are almost entirely background are still written and logged
// at warn level.
func (c *Capturer) CaptureMesh(ctx context.Context, base *mesh.Mesh, outDir, prefix string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	total := c.opts.Frames
	paths := make([]string, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		pose := c.planner.Pose(i)
		frame := base.Clone()
		frame.Rotate(pose.Rotation.Matrix())
		if pose.SliceNormal.Len() > 0 {
			frame = frame.SliceByPlane(frame.Centroid(), pose.SliceNormal)
		}

		img, err := c.renderer.Render(frame, pose.Zoom)
		if err != nil {
			return paths, fmt.Errorf("render frame %d: %w", i+1, err)
		}

		path := filepath.Join(outDir, c.FrameName(prefix, i))
		if err := imaging.Save(path, img); err != nil {
			return paths, err
		}
		paths = append(paths, path)

		event := c.logger.Info()
		if imaging.ForegroundFraction(img, c.opts.Background, 0.05) < minForeground {
			event = c.logger.Warn().Bool("empty", true)
		}
		event.Int("frame", i+1).Int("total", total).Str("path", path).Msg("captured frame")
	}
	return paths, nil
}

// CaptureFile loads, orients and captures a single mesh using SinglePrefix.
func (c *Capturer) CaptureFile(ctx context.Context, path, outDir string) ([]string, error) {
	m, err := mesh.LoadOBJ(path)
	if err != nil {
		return nil, err
	}
	if err := c.orient(ctx, m, imaging.Stem(path)); err != nil {
		return nil, err
	}
	return c.CaptureMesh(ctx, m, outDir, SinglePrefix)
}

// CaptureDir captures every .obj under root in lexical order. Meshes that
// fail to load are logged and skipped; any other failure ends the run.
//
// Parameters:
//   - root: a tree of class directories, root/<class>/<mesh>.obj.
//   - outDir: receives every frame. Names follow Options.NameFrom:
//     "<class>_<mesh>_NNN.png" for "class", "<mesh>_NNN.png" for "mesh".
//
// Returns:
//   - Report: meshes captured, meshes skipped and frames written.
//   - error: a render surface, calibration or write failure, or ctx.Err().
func (c *Capturer) CaptureDir(ctx context.Context, root, outDir string) (Report, error) {
	var report Report

	meshes, err := FindMeshes(root)
	if err != nil {
		return report, err
	}
	if len(meshes) == 0 {
		c.logger.Warn().Str("root", root).Msg("no .obj files found")
		return report, nil
	}

	for _, path := range meshes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		m, err := mesh.LoadOBJ(path)
		if err != nil {
			c.logger.Error().Err(err).Str("mesh", path).Msg("skipping mesh")
			report.Skipped++
			continue
		}

		key := MeshKey(root, path)
		if err := c.orient(ctx, m, key); err != nil {
			return report, err
		}

		c.logger.Info().Str("mesh", key).Int("faces", len(m.Faces)).Msg("capturing mesh")
		written, err := c.CaptureMesh(ctx, m, outDir, c.prefix(path))
		report.Frames += len(written)
		if err != nil {
			return report, fmt.Errorf("capture %s: %w", path, err)
		}
		report.Meshes++
	}
	return report, nil
}

func (c *Capturer) orient(ctx context.Context, m *mesh.Mesh, key string) error {
	if c.normalizer == nil {
		return nil
	}
	_, err := c.normalizer.Normalize(ctx, m, key)
	return err
}

// prefix is "<mesh>_" or, when naming by class, "<class>_<mesh>_".
func (c *Capturer) prefix(path string) string {
	name := imaging.Stem(path) + "_"
	if c.opts.NameFrom == "class" {
		name = filepath.Base(filepath.Dir(path)) + "_" + name
	}
	return name
}

// MeshKey identifies a mesh in the transform store: its path relative to
// root, slash separated, without extension.
func MeshKey(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
}

// FindMeshes walks root and returns every .obj file (any letter case) in
// lexical order.
//
// Returns an error if root cannot be walked. An empty tree returns no paths
// and no error.
func FindMeshes(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".obj") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("mesh directory not found: %s", root)
		}
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return paths, nil
}
