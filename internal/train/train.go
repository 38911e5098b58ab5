// Package train drives the external Ultralytics YOLO command line.
package train

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/logging"
)

// Trainer runs training and export jobs.
type Trainer struct {
	cfg    config.TrainConfig
	logger zerolog.Logger
}

// New creates a Trainer for cfg.
func New(cfg config.TrainConfig) *Trainer {
	return &Trainer{cfg: cfg, logger: logging.Component("train")}
}

// TrainArgs is the argument list for "yolo detect train".
func (t *Trainer) TrainArgs() []string {
	c := t.cfg
	return []string{
		"detect", "train",
		"model=" + c.Model,
		"data=" + c.Data,
		"epochs=" + strconv.Itoa(c.Epochs),
		"imgsz=" + strconv.Itoa(c.ImageSize),
		"batch=" + strconv.Itoa(c.Batch),
		"project=" + c.Project,
		"name=" + c.Name,
		"save_period=" + strconv.Itoa(c.SavePeriod),
		"augment=" + pyBool(c.Augment),
		"exist_ok=True",
	}
}

// ExportArgs is the argument list converting weights to ONNX.
func (t *Trainer) ExportArgs(weights string) []string {
	return []string{
		"export",
		"model=" + weights,
		"format=onnx",
		"imgsz=" + strconv.Itoa(t.cfg.ImageSize),
	}
}

// BestWeights is where training leaves its best checkpoint.
func (t *Trainer) BestWeights() string {
	return filepath.Join(t.cfg.Project, t.cfg.Name, "weights", "best.pt")
}

// Train runs the trainer to completion, logging its output line by line.
// Cancelling ctx kills the process.
func (t *Trainer) Train(ctx context.Context) error {
	t.logger.Info().
		Str("model", t.cfg.Model).
		Str("data", t.cfg.Data).
		Int("epochs", t.cfg.Epochs).
		Msg("starting training")
	if err := t.run(ctx, t.TrainArgs()); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	t.logger.Info().Str("weights", t.BestWeights()).Msg("training finished")
	return nil
}

// Export converts weights to ONNX and returns the exported path, which the
// exporter places next to the input with an .onnx extension.
func (t *Trainer) Export(ctx context.Context, weights string) (string, error) {
	if weights == "" {
		weights = t.BestWeights()
	}
	if err := t.run(ctx, t.ExportArgs(weights)); err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	out := strings.TrimSuffix(weights, filepath.Ext(weights)) + ".onnx"
	t.logger.Info().Str("onnx", out).Msg("export finished")
	return out, nil
}

func (t *Trainer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	t.logger.Debug().Str("binary", t.cfg.Binary).Strs("args", args).Msg("running")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s not found; install ultralytics or set train.binary: %w", t.cfg.Binary, err)
		}
		return fmt.Errorf("failed to start %s: %w", t.cfg.Binary, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go t.pipe(&wg, stdout, "stdout")
	go t.pipe(&wg, stderr, "stderr")
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// maxLineBytes bounds one line of trainer output.
var maxLineBytes = 1024 * 1024

// pipe logs r line by line. If a line is too long to scan, the rest of the
// stream is discarded so the child never blocks on a full pipe.
func (t *Trainer) pipe(wg *sync.WaitGroup, r io.Reader, stream string) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLineBytes)), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		t.logger.Info().Str("stream", stream).Msg(line)
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn().Err(err).Str("stream", stream).Msg("discarding remaining output")
		_, _ = io.Copy(io.Discard, r)
	}
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
