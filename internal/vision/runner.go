package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/dataset"
	"github.com/ironsheep/meshsynth/internal/detector"
	"github.com/ironsheep/meshsynth/internal/logging"
)

var boxColor = color.RGBA{0, 255, 0, 0}

// Runner is the live inference loop.
type Runner struct {
	cfg    config.InferConfig
	names  []string
	logger zerolog.Logger
}

// NewRunner creates a Runner. Class names come from the dataset manifest.
func NewRunner(cfg config.InferConfig) (*Runner, error) {
	m, err := dataset.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load class names: %w", err)
	}
	return &Runner{cfg: cfg, names: m.Names, logger: logging.Component("infer")}, nil
}

// Run opens the camera, model and window and processes frames until the
// quit key is pressed, ctx is cancelled or a frame cannot be read.
func (r *Runner) Run(ctx context.Context) error {
	cam, err := OpenCamera(r.cfg.Device)
	if err != nil {
		return err
	}
	defer cam.Close()

	det, err := NewDetector(r.cfg.Model, r.cfg.InputSize, r.cfg.Confidence, r.cfg.IoU)
	if err != nil {
		return err
	}
	defer det.Close()

	window := gocv.NewWindow(r.cfg.WindowTitle)
	defer window.Close()

	tracker := detector.NewTracker(r.cfg.TrackIoU, r.cfg.MaxMissed)
	frame := gocv.NewMat()
	defer frame.Close()

	quit := int(r.cfg.QuitKey[0])
	r.logger.Info().Int("device", r.cfg.Device).Str("model", r.cfg.Model).
		Msgf("inference running, press %q to quit", r.cfg.QuitKey)

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info().Int("frames", frames).Msg("inference cancelled")
			return nil
		}
		if err := cam.Read(&frame); err != nil {
			return err
		}
		frames++

		dets, err := det.Detect(frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frames, err)
		}
		tracks := tracker.Update(dets)
		r.draw(&frame, tracks)

		window.IMShow(frame)
		if key := window.WaitKey(1); key&0xFF == quit {
			r.logger.Info().Int("frames", frames).Msg("quit requested")
			return nil
		}
	}
}

func (r *Runner) draw(frame *gocv.Mat, tracks []detector.Track) {
	for _, tr := range tracks {
		box := tr.Detection.Box
		gocv.Rectangle(frame, box, boxColor, 2)
		gocv.PutText(frame, detector.Label(r.names, tr), image.Pt(box.Min.X, box.Min.Y-10),
			gocv.FontHersheySimplex, 0.9, boxColor, 2)
	}
}
