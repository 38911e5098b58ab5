// Package pipeline wires the stages into a full dataset run: capture,
// annotate, manifest and, optionally, training and ONNX export.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ironsheep/meshsynth/internal/annotate"
	"github.com/ironsheep/meshsynth/internal/capture"
	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/dataset"
	"github.com/ironsheep/meshsynth/internal/logging"
	"github.com/ironsheep/meshsynth/internal/orient"
	"github.com/ironsheep/meshsynth/internal/render"
	"github.com/ironsheep/meshsynth/internal/train"
)

// Steps selects the stages Run executes.
type Steps struct {
	Capture  bool
	Annotate bool
	Manifest bool
	Train    bool
	Export   bool
}

// DatasetSteps builds the dataset without training.
func DatasetSteps() Steps {
	return Steps{Capture: true, Annotate: true, Manifest: true}
}

// Pipeline runs stages from one validated config.
type Pipeline struct {
	cfg        *config.Config
	finder     annotate.ContourFinder
	calibrator orient.Calibrator
	logger     zerolog.Logger
}

// New creates a Pipeline. finder is the annotator's contour backend;
// calibrator may be nil when orient.calibration is "none".
func New(cfg *config.Config, finder annotate.ContourFinder, calibrator orient.Calibrator) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		finder:     finder,
		calibrator: calibrator,
		logger:     logging.Component("pipeline"),
	}
}

// Capture renders frames for capture.input, which is either one mesh file or
// a directory of class subdirectories.
func (p *Pipeline) Capture(ctx context.Context) (capture.Report, error) {
	var report capture.Report
	cfg := p.cfg

	renderer, err := render.New(render.OptionsFromConfig(cfg.Render))
	if err != nil {
		return report, err
	}
	defer renderer.Close()

	planner, err := capture.PlannerFromConfig(cfg.Capture)
	if err != nil {
		return report, err
	}
	normalizer, err := p.Normalizer()
	if err != nil {
		return report, err
	}
	opts, err := capture.OptionsFromConfig(cfg.Capture, cfg.Render)
	if err != nil {
		return report, err
	}
	c := capture.New(opts, renderer, planner, normalizer)

	info, err := os.Stat(cfg.Capture.Input)
	if err != nil {
		return report, fmt.Errorf("capture input: %w", err)
	}
	if !info.IsDir() {
		paths, err := c.CaptureFile(ctx, cfg.Capture.Input, cfg.Capture.OutputDir)
		report.Frames = len(paths)
		if err == nil {
			report.Meshes = 1
		}
		return report, err
	}

	report, err = c.CaptureDir(ctx, cfg.Capture.Input, cfg.Capture.OutputDir)
	if err != nil {
		return report, err
	}
	p.logger.Info().
		Int("meshes", report.Meshes).
		Int("skipped", report.Skipped).
		Int("frames", report.Frames).
		Msg("capture finished")
	return report, nil
}

// Normalizer builds the orientation normalizer from the orient section.
func (p *Pipeline) Normalizer() (*orient.Normalizer, error) {
	cfg := p.cfg.Orient
	store, err := orient.OpenStore(cfg.TransformsFile)
	if err != nil {
		return nil, err
	}
	return orient.NewNormalizer(orient.FromArray(cfg.Upright), cfg.Calibration, store, p.calibrator)
}

// Classes scans dataset.classes_dir.
func (p *Pipeline) Classes() (*dataset.ClassMap, error) {
	return dataset.ScanClasses(p.cfg.Dataset.ClassesDir)
}

// Annotate labels every image in annotate.image_dir. Frames of a single
// mesh capture carry no class in their names, so when capture.input is a
// file every image gets annotate.class_id.
func (p *Pipeline) Annotate(ctx context.Context) (annotate.Report, error) {
	cfg := p.cfg.Annotate
	if cfg.ClassSource == "filename" && p.singleMesh() {
		p.logger.Debug().Int("class_id", cfg.ClassID).Msg("single mesh input, using fixed class")
		cfg.ClassSource = "fixed"
	}

	var classes *dataset.ClassMap
	if cfg.ClassSource == "filename" {
		var err error
		if classes, err = p.Classes(); err != nil {
			return annotate.Report{}, err
		}
	}
	opts, err := annotate.OptionsFromConfig(cfg, classes)
	if err != nil {
		return annotate.Report{}, err
	}
	return annotate.New(opts, p.finder).BatchDir(ctx, p.cfg.Annotate.ImageDir)
}

// singleMesh reports whether capture.input names one mesh file.
func (p *Pipeline) singleMesh() bool {
	info, err := os.Stat(p.cfg.Capture.Input)
	return err == nil && !info.IsDir()
}

// Manifest writes the dataset manifest and returns it.
func (p *Pipeline) Manifest() (*dataset.Manifest, error) {
	classes, err := p.Classes()
	if err != nil {
		return nil, err
	}
	m, err := dataset.BuildManifest(classes, p.cfg.Dataset)
	if err != nil {
		return nil, err
	}
	if err := m.Write(p.cfg.Dataset.ManifestPath); err != nil {
		return nil, err
	}
	p.logger.Info().
		Str("path", p.cfg.Dataset.ManifestPath).
		Int("nc", m.NC()).
		Strs("names", m.Names).
		Msg("manifest written")
	return m, nil
}

// Run executes the selected steps in order, stopping at the first error.
func (p *Pipeline) Run(ctx context.Context, steps Steps) error {
	if steps.Capture {
		if _, err := p.Capture(ctx); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if steps.Annotate {
		if _, err := p.Annotate(ctx); err != nil {
			return fmt.Errorf("annotate: %w", err)
		}
	}
	if steps.Manifest {
		if _, err := p.Manifest(); err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
	}

	trainer := train.New(p.cfg.Train)
	if steps.Train {
		if err := trainer.Train(ctx); err != nil {
			return err
		}
	}
	if steps.Export {
		if _, err := trainer.Export(ctx, ""); err != nil {
			return err
		}
	}
	return nil
}
