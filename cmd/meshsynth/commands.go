package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/meshsynth/internal/annotate"
	"github.com/ironsheep/meshsynth/internal/calibrate"
	"github.com/ironsheep/meshsynth/internal/capture"
	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/detection"
	"github.com/ironsheep/meshsynth/internal/imaging"
	"github.com/ironsheep/meshsynth/internal/mesh"
	"github.com/ironsheep/meshsynth/internal/orient"
	"github.com/ironsheep/meshsynth/internal/pipeline"
	"github.com/ironsheep/meshsynth/internal/render"
	"github.com/ironsheep/meshsynth/internal/train"
	"github.com/ironsheep/meshsynth/internal/vision"
)

type command struct {
	summary string
	flags   func(fs *flag.FlagSet, cfg *config.Config)
	run     func(ctx context.Context, cfg *config.Config) error
}

var commandOrder = []string{"capture", "annotate", "manifest", "calibrate", "pipeline", "train", "export", "infer"}

var commands = map[string]command{
	"capture": {
		summary: "Render orbit images of a mesh or a directory of class meshes",
		flags:   captureFlags,
		run: func(ctx context.Context, cfg *config.Config) error {
			return withCalibrator(cfg, func(cal orient.Calibrator) error {
				_, err := pipeline.New(cfg, nil, cal).Capture(ctx)
				return err
			})
		},
	},
	"annotate": {
		summary: "Write bounding-box labels for rendered images",
		flags:   annotateFlags,
		run: func(ctx context.Context, cfg *config.Config) error {
			_, err := pipeline.New(cfg, contourFinder(cfg.Annotate.Backend), nil).Annotate(ctx)
			return err
		},
	},
	"manifest": {
		summary: "Write the dataset manifest from the class directories",
		flags:   manifestFlags,
		run: func(ctx context.Context, cfg *config.Config) error {
			_, err := pipeline.New(cfg, nil, nil).Manifest()
			return err
		},
	},
	"calibrate": {
		summary: "Interactively set and save the orientation of every mesh",
		flags: func(fs *flag.FlagSet, cfg *config.Config) {
			fs.StringVar(&cfg.Capture.Input, "input", cfg.Capture.Input, "mesh file or directory of class meshes")
			fs.StringVar(&cfg.Orient.TransformsFile, "transforms", cfg.Orient.TransformsFile, "saved transforms file")
		},
		run: runCalibrate,
	},
	"pipeline": {
		summary: "Capture, annotate and write the manifest, optionally train and export",
		flags:   pipelineFlags,
		run: func(ctx context.Context, cfg *config.Config) error {
			return withCalibrator(cfg, func(cal orient.Calibrator) error {
				return pipeline.New(cfg, contourFinder(cfg.Annotate.Backend), cal).Run(ctx, steps)
			})
		},
	},
	"train": {
		summary: "Train the detector with the external yolo command",
		flags:   trainFlags,
		run: func(ctx context.Context, cfg *config.Config) error {
			return train.New(cfg.Train).Train(ctx)
		},
	},
	"export": {
		summary: "Convert trained weights to ONNX for inference",
		flags: func(fs *flag.FlagSet, cfg *config.Config) {
			fs.StringVar(&exportWeights, "weights", "", "checkpoint to export (default: best weights of the training run)")
			fs.StringVar(&cfg.Train.Binary, "yolo", cfg.Train.Binary, "yolo executable")
		},
		run: func(ctx context.Context, cfg *config.Config) error {
			_, err := train.New(cfg.Train).Export(ctx, exportWeights)
			return err
		},
	},
	"infer": {
		summary: "Run the trained detector on a live camera feed",
		flags:   inferFlags,
		run: func(ctx context.Context, cfg *config.Config) error {
			r, err := vision.NewRunner(cfg.Infer)
			if err != nil {
				return err
			}
			return r.Run(ctx)
		},
	},
}

var (
	exportWeights string
	steps         = pipeline.DatasetSteps()
)

func captureFlags(fs *flag.FlagSet, cfg *config.Config) {
	c := &cfg.Capture
	fs.StringVar(&c.Input, "input", c.Input, "mesh file or directory of class meshes")
	fs.StringVar(&c.OutputDir, "out", c.OutputDir, "output image directory")
	fs.IntVar(&c.Frames, "frames", c.Frames, "frames per mesh")
	fs.Float64Var(&c.JitterDegrees, "jitter", c.JitterDegrees, "tilt jitter in degrees")
	fs.StringVar(&c.Axis, "axis", c.Axis, "orbit axis: x, y or z")
	fs.StringVar(&c.Mode, "mode", c.Mode, "orbit or random")
	fs.BoolVar(&c.Slice, "slice", c.Slice, "random mode: render a random slice of the mesh")
	fs.StringVar(&c.NameFrom, "name-from", c.NameFrom, "frame prefix for directory runs: mesh or class")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed (0 seeds from the clock)")
	fs.StringVar(&cfg.Orient.Calibration, "calibrate", cfg.Orient.Calibration, "none, once or per-mesh")
	fs.IntVar(&cfg.Render.Width, "width", cfg.Render.Width, "image width")
	fs.IntVar(&cfg.Render.Height, "height", cfg.Render.Height, "image height")
}

func annotateFlags(fs *flag.FlagSet, cfg *config.Config) {
	a := &cfg.Annotate
	fs.StringVar(&a.ImageDir, "images", a.ImageDir, "directory of images to label")
	fs.StringVar(&a.LabelsDir, "labels", a.LabelsDir, "label output directory")
	fs.StringVar(&a.VisualizationDir, "vis", a.VisualizationDir, "overlay output directory (empty disables)")
	fs.StringVar(&a.Mode, "mode", a.Mode, "largest or all")
	fs.IntVar(&a.LowThreshold, "low", a.LowThreshold, "Canny low threshold")
	fs.IntVar(&a.HighThreshold, "high", a.HighThreshold, "Canny high threshold")
	fs.StringVar(&a.Backend, "backend", a.Backend, "contour backend: native or opencv")
	fs.StringVar(&a.ClassSource, "class-source", a.ClassSource, "fixed or filename")
	fs.IntVar(&a.ClassID, "class-id", a.ClassID, "class id for class-source fixed")
	fs.BoolVar(&a.AlwaysVisualize, "always-visualize", a.AlwaysVisualize, "write overlays for images without boxes")
	fs.StringVar(&cfg.Dataset.ClassesDir, "classes", cfg.Dataset.ClassesDir, "class directory root")
}

func manifestFlags(fs *flag.FlagSet, cfg *config.Config) {
	d := &cfg.Dataset
	fs.StringVar(&d.ClassesDir, "classes", d.ClassesDir, "class directory root")
	fs.StringVar(&d.ManifestPath, "out", d.ManifestPath, "manifest path")
	fs.StringVar(&d.TrainPath, "train", d.TrainPath, "training image path written to the manifest")
	fs.StringVar(&d.ValMode, "val-mode", d.ValMode, "same or separate")
	fs.StringVar(&d.ValPath, "val", d.ValPath, "validation image path for val-mode separate")
}

func pipelineFlags(fs *flag.FlagSet, cfg *config.Config) {
	captureFlags(fs, cfg)
	fs.StringVar(&cfg.Annotate.Mode, "annotate-mode", cfg.Annotate.Mode, "largest or all")
	fs.StringVar(&cfg.Annotate.Backend, "backend", cfg.Annotate.Backend, "contour backend: native or opencv")
	fs.BoolVar(&steps.Capture, "do-capture", steps.Capture, "run the capture stage")
	fs.BoolVar(&steps.Annotate, "do-annotate", steps.Annotate, "run the annotate stage")
	fs.BoolVar(&steps.Manifest, "do-manifest", steps.Manifest, "write the manifest")
	fs.BoolVar(&steps.Train, "train", steps.Train, "train after building the dataset")
	fs.BoolVar(&steps.Export, "export", steps.Export, "export the trained weights to ONNX")
}

func trainFlags(fs *flag.FlagSet, cfg *config.Config) {
	t := &cfg.Train
	fs.StringVar(&t.Binary, "yolo", t.Binary, "yolo executable")
	fs.StringVar(&t.Model, "model", t.Model, "starting model")
	fs.StringVar(&t.Data, "data", t.Data, "dataset manifest")
	fs.IntVar(&t.Epochs, "epochs", t.Epochs, "training epochs")
	fs.IntVar(&t.ImageSize, "imgsz", t.ImageSize, "training image size")
	fs.IntVar(&t.Batch, "batch", t.Batch, "batch size")
	fs.StringVar(&t.Project, "project", t.Project, "output project directory")
	fs.StringVar(&t.Name, "name", t.Name, "run name")
}

func inferFlags(fs *flag.FlagSet, cfg *config.Config) {
	in := &cfg.Infer
	fs.IntVar(&in.Device, "camera", in.Device, "camera device index")
	fs.StringVar(&in.Model, "model", in.Model, "ONNX model")
	fs.StringVar(&in.Manifest, "manifest", in.Manifest, "dataset manifest with class names")
	fs.Float64Var(&in.Confidence, "conf", in.Confidence, "minimum confidence")
	fs.Float64Var(&in.IoU, "iou", in.IoU, "NMS IoU threshold")
}

func contourFinder(backend string) annotate.ContourFinder {
	if backend == "opencv" {
		return vision.Contours{}
	}
	return detection.Native{}
}

// withCalibrator runs work directly when calibration is off, or inside the
// calibration window, which has to own the main goroutine.
func withCalibrator(cfg *config.Config, work func(orient.Calibrator) error) error {
	if cfg.Orient.Calibration == config.CalibrateNone {
		return work(nil)
	}
	window, closeRenderer, err := newWindow(cfg)
	if err != nil {
		return err
	}
	defer closeRenderer()
	return window.Run("meshsynth calibration", func() error { return work(window) })
}

func newWindow(cfg *config.Config) (*calibrate.Window, func(), error) {
	opts := render.OptionsFromConfig(cfg.Render)
	opts.Width, opts.Height, opts.Supersample = cfg.Orient.PreviewWidth, cfg.Orient.PreviewHeight, 1
	r, err := render.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return calibrate.New(r, cfg.Orient.PreviewFaces), func() { r.Close() }, nil
}

// runCalibrate asks for the orientation of every mesh under capture.input,
// starting from its saved transform, and saves the answers.
func runCalibrate(ctx context.Context, cfg *config.Config) error {
	paths := []string{cfg.Capture.Input}
	root := cfg.Capture.Input
	if info, err := os.Stat(root); err != nil {
		return err
	} else if info.IsDir() {
		if paths, err = capture.FindMeshes(root); err != nil {
			return err
		}
	}

	store, err := orient.OpenStore(cfg.Orient.TransformsFile)
	if err != nil {
		return err
	}
	upright := orient.FromArray(cfg.Orient.Upright)

	window, closeRenderer, err := newWindow(cfg)
	if err != nil {
		return err
	}
	defer closeRenderer()

	return window.Run("meshsynth calibration", func() error {
		for _, path := range paths {
			m, err := mesh.LoadOBJ(path)
			if err != nil {
				log.Error().Err(err).Str("mesh", path).Msg("skipping mesh")
				continue
			}
			m.Rotate(upright.Matrix())

			key := imaging.Stem(path)
			if path != root {
				key = capture.MeshKey(root, path)
			}
			saved, _ := store.Get(key)
			t, err := window.Calibrate(ctx, m, key, saved)
			if err != nil {
				return fmt.Errorf("calibrate %s: %w", key, err)
			}
			if err := store.Put(key, t); err != nil {
				return err
			}
		}
		log.Info().Int("meshes", len(paths)).Str("file", cfg.Orient.TransformsFile).Msg("transforms saved")
		return nil
	})
}
