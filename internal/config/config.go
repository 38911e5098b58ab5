// Package config holds the settings for every meshsynth stage.
//
// Values are resolved with the priority defaults < YAML file < environment
// (MESHSYNTH_* variables, optionally from a .env file) < command-line flags.
// Flags are applied by the CLI after Load returns; Validate should be called
// once all overrides are in place.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Annotation modes.
const (
	ModeLargest = "largest"
	ModeAll     = "all"
)

// Capture modes.
const (
	CaptureOrbit  = "orbit"
	CaptureRandom = "random"
)

// Calibration policies.
const (
	CalibrateNone    = "none"
	CalibrateOnce    = "once"
	CalibratePerMesh = "per-mesh"
)

// Validation split modes.
const (
	ValSame     = "same"
	ValSeparate = "separate"
)

// Config holds all pipeline settings.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Render   RenderConfig   `yaml:"render"`
	Capture  CaptureConfig  `yaml:"capture"`
	Orient   OrientConfig   `yaml:"orient"`
	Annotate AnnotateConfig `yaml:"annotate"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Train    TrainConfig    `yaml:"train"`
	Infer    InferConfig    `yaml:"infer"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // Empty disables file logging
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RenderConfig holds the offscreen render surface settings.
type RenderConfig struct {
	Width       int        `yaml:"width"`
	Height      int        `yaml:"height"`
	Supersample int        `yaml:"supersample"` // Render at N times the size, then downscale
	Background  string     `yaml:"background"`
	ObjectColor string     `yaml:"object_color"`
	FovY        float64    `yaml:"fov_y"` // Degrees
	Light       [3]float64 `yaml:"light"` // Light direction
}

// CaptureConfig holds orbit capture settings.
type CaptureConfig struct {
	Input         string  `yaml:"input"` // A mesh file or a directory of class subdirectories
	OutputDir     string  `yaml:"output_dir"`
	Frames        int     `yaml:"frames"`
	JitterDegrees float64 `yaml:"jitter_degrees"`
	Axis          string  `yaml:"axis"` // Primary orbit axis: x, y or z
	Mode          string  `yaml:"mode"` // orbit or random
	ZoomMin       float64 `yaml:"zoom_min"`
	ZoomMax       float64 `yaml:"zoom_max"`
	Slice         bool    `yaml:"slice"`
	FramePad      int     `yaml:"frame_pad"`
	NameFrom      string  `yaml:"name_from"` // mesh or class
	Seed          uint64  `yaml:"seed"`      // 0 seeds from the clock
}

// OrientConfig holds the orientation normalizer settings.
type OrientConfig struct {
	Upright        [3]float64 `yaml:"upright"` // Euler XYZ degrees
	Calibration    string     `yaml:"calibration"`
	TransformsFile string     `yaml:"transforms_file"`
	PreviewWidth   int        `yaml:"preview_width"`
	PreviewHeight  int        `yaml:"preview_height"`
	PreviewFaces   int        `yaml:"preview_faces"` // Decimate larger meshes for the preview
}

// AnnotateConfig holds auto-annotator settings.
type AnnotateConfig struct {
	ImageDir         string `yaml:"image_dir"`
	LabelsDir        string `yaml:"labels_dir"`
	VisualizationDir string `yaml:"visualization_dir"`
	Mode             string `yaml:"mode"`
	LowThreshold     int    `yaml:"low_threshold"`
	HighThreshold    int    `yaml:"high_threshold"`
	Backend          string `yaml:"backend"` // native or opencv
	Width            int    `yaml:"width"`   // 0 uses the image width
	Height           int    `yaml:"height"`  // 0 uses the image height
	ClassSource      string `yaml:"class_source"`
	ClassID          int    `yaml:"class_id"`
	AlwaysVisualize  bool   `yaml:"always_visualize"`
	BoxColor         string `yaml:"box_color"`
	LineWidth        int    `yaml:"line_width"`
}

// DatasetConfig holds manifest builder settings.
type DatasetConfig struct {
	ClassesDir   string `yaml:"classes_dir"`
	ManifestPath string `yaml:"manifest_path"`
	TrainPath    string `yaml:"train_path"`
	ValPath      string `yaml:"val_path"`
	ValMode      string `yaml:"val_mode"`
}

// TrainConfig holds the external trainer invocation.
type TrainConfig struct {
	Binary     string `yaml:"binary"`
	Model      string `yaml:"model"`
	Data       string `yaml:"data"`
	Epochs     int    `yaml:"epochs"`
	ImageSize  int    `yaml:"image_size"`
	Batch      int    `yaml:"batch"`
	Project    string `yaml:"project"`
	Name       string `yaml:"name"`
	SavePeriod int    `yaml:"save_period"`
	Augment    bool   `yaml:"augment"`
}

// InferConfig holds live inference settings.
type InferConfig struct {
	Device      int     `yaml:"device"`
	Model       string  `yaml:"model"` // ONNX export of the trained checkpoint
	Manifest    string  `yaml:"manifest"`
	Confidence  float64 `yaml:"confidence"`
	IoU         float64 `yaml:"iou"`
	InputSize   int     `yaml:"input_size"`
	WindowTitle string  `yaml:"window_title"`
	QuitKey     string  `yaml:"quit_key"`
	TrackIoU    float64 `yaml:"track_iou"`
	MaxMissed   int     `yaml:"max_missed"`
}

// Default returns a Config with the documented default for every field.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Render: RenderConfig{
			Width:       1920,
			Height:      1080,
			Supersample: 2,
			Background:  "#FFFFFF",
			ObjectColor: "#8C8C8C",
			FovY:        30,
			Light:       [3]float64{0.25, 0.5, 1},
		},
		Capture: CaptureConfig{
			Input:         "models_",
			OutputDir:     "train/images",
			Frames:        150,
			JitterDegrees: 6,
			Axis:          "y",
			Mode:          CaptureOrbit,
			ZoomMin:       0.3,
			ZoomMax:       2.0,
			FramePad:      3,
			NameFrom:      "class",
		},
		Orient: OrientConfig{
			Upright:        [3]float64{-20, 180, 90},
			Calibration:    CalibrateNone,
			TransformsFile: "transforms.yaml",
			PreviewWidth:   960,
			PreviewHeight:  540,
			PreviewFaces:   20000,
		},
		Annotate: AnnotateConfig{
			ImageDir:         "train/images",
			LabelsDir:        "train/labels",
			VisualizationDir: "annotated_images",
			Mode:             ModeLargest,
			LowThreshold:     50,
			HighThreshold:    150,
			Backend:          "native",
			ClassSource:      "filename",
			BoxColor:         "#00FF00",
			LineWidth:        2,
		},
		Dataset: DatasetConfig{
			ClassesDir:   "models_",
			ManifestPath: "data.yaml",
			TrainPath:    "train/images",
			ValMode:      ValSame,
		},
		Train: TrainConfig{
			Binary:     "yolo",
			Model:      "yolov8n.pt",
			Data:       "data.yaml",
			Epochs:     70,
			ImageSize:  640,
			Batch:      24,
			Project:    "yolo_training",
			Name:       "experiment",
			SavePeriod: 25,
			Augment:    true,
		},
		Infer: InferConfig{
			Device:      0,
			Model:       "yolo_training/experiment/weights/best.onnx",
			Manifest:    "data.yaml",
			Confidence:  0.5,
			IoU:         0.45,
			InputSize:   640,
			WindowTitle: "YOLO Webcam Inference",
			QuitKey:     "q",
			TrackIoU:    0.3,
			MaxMissed:   15,
		},
	}
}

// Validate checks every field that a stage depends on and reports all
// problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		bad("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.Supersample < 1 {
		bad("render.supersample must be at least 1, got %d", c.Render.Supersample)
	}
	if c.Render.FovY <= 0 || c.Render.FovY >= 180 {
		bad("render.fov_y must be in (0, 180), got %g", c.Render.FovY)
	}

	if c.Capture.Frames <= 0 {
		bad("capture.frames must be positive, got %d", c.Capture.Frames)
	}
	if c.Capture.JitterDegrees < 0 {
		bad("capture.jitter_degrees must not be negative, got %g", c.Capture.JitterDegrees)
	}
	switch c.Capture.Axis {
	case "x", "y", "z":
	default:
		bad("capture.axis %q is not one of x, y, z", c.Capture.Axis)
	}
	switch c.Capture.Mode {
	case CaptureOrbit, CaptureRandom:
	default:
		bad("capture.mode %q is not one of orbit, random", c.Capture.Mode)
	}
	if c.Capture.ZoomMin <= 0 || c.Capture.ZoomMax < c.Capture.ZoomMin {
		bad("capture zoom range [%g, %g] is invalid", c.Capture.ZoomMin, c.Capture.ZoomMax)
	}
	if c.Capture.FramePad < 1 {
		bad("capture.frame_pad must be at least 1, got %d", c.Capture.FramePad)
	}
	switch c.Capture.NameFrom {
	case "mesh", "class":
	default:
		bad("capture.name_from %q is not one of mesh, class", c.Capture.NameFrom)
	}

	switch c.Orient.Calibration {
	case CalibrateNone, CalibrateOnce, CalibratePerMesh:
	default:
		bad("orient.calibration %q is not one of none, once, per-mesh", c.Orient.Calibration)
	}

	switch c.Annotate.Mode {
	case ModeLargest, ModeAll:
	default:
		bad("annotate.mode %q is not one of largest, all", c.Annotate.Mode)
	}
	if c.Annotate.LowThreshold < 0 || c.Annotate.HighThreshold > 255 || c.Annotate.LowThreshold >= c.Annotate.HighThreshold {
		bad("annotate thresholds must satisfy 0 <= low < high <= 255, got %d/%d",
			c.Annotate.LowThreshold, c.Annotate.HighThreshold)
	}
	switch c.Annotate.Backend {
	case "native", "opencv":
	default:
		bad("annotate.backend %q is not one of native, opencv", c.Annotate.Backend)
	}
	switch c.Annotate.ClassSource {
	case "fixed", "filename":
	default:
		bad("annotate.class_source %q is not one of fixed, filename", c.Annotate.ClassSource)
	}
	if c.Annotate.Width < 0 || c.Annotate.Height < 0 {
		bad("annotate size must not be negative, got %dx%d", c.Annotate.Width, c.Annotate.Height)
	}

	switch c.Dataset.ValMode {
	case ValSame:
	case ValSeparate:
		if c.Dataset.ValPath == "" {
			bad("dataset.val_path is required when dataset.val_mode is separate")
		}
	default:
		bad("dataset.val_mode %q is not one of same, separate", c.Dataset.ValMode)
	}

	if c.Train.Epochs <= 0 || c.Train.Batch <= 0 || c.Train.ImageSize <= 0 {
		bad("train epochs, batch and image_size must be positive")
	}

	if c.Infer.Confidence <= 0 || c.Infer.Confidence > 1 {
		bad("infer.confidence must be in (0, 1], got %g", c.Infer.Confidence)
	}
	if c.Infer.IoU <= 0 || c.Infer.IoU > 1 {
		bad("infer.iou must be in (0, 1], got %g", c.Infer.IoU)
	}
	if len(c.Infer.QuitKey) != 1 {
		bad("infer.quit_key must be a single character, got %q", c.Infer.QuitKey)
	}

	return errors.Join(errs...)
}
