// Package calibrate is the interactive orientation tool. A Window shows a
// software-rendered preview of each mesh and lets the user rotate it with
// the mouse and keyboard before the pipeline captures it.
//
// Ebiten runs its game loop on the main goroutine and only once per
// process, so one Window serves every calibration request of a run: Run
// starts the loop and executes the pipeline on a second goroutine, whose
// Calibrate calls are handed to the loop over a channel.
package calibrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/rs/zerolog"

	"github.com/ironsheep/meshsynth/internal/logging"
	"github.com/ironsheep/meshsynth/internal/mesh"
	"github.com/ironsheep/meshsynth/internal/orient"
	"github.com/ironsheep/meshsynth/internal/render"
)

// ErrClosed is returned by Calibrate once the window has been closed.
var ErrClosed = errors.New("calibration window closed")

const help = "drag or arrows: rotate  PgUp/PgDn: roll  shift: x5  R: reset  Enter/Esc: done"

type request struct {
	ctx   context.Context
	mesh  *mesh.Mesh
	key   string
	start orient.Transform
	reply chan result
}

type result struct {
	t   orient.Transform
	err error
}

// Window implements orient.Calibrator.
type Window struct {
	renderer *render.Renderer
	maxFaces int
	requests chan request
	closed   chan struct{}
	finished chan error
	logger   zerolog.Logger

	// Loop state, owned by the ebiten goroutine.
	active   *request
	preview  *mesh.Mesh
	adjust   *orient.Adjustment
	frame    *ebiten.Image
	dirty    bool
	dragging bool
	lastX    int
	lastY    int
	workErr  error
	workDone bool
}

// New creates a Window drawing with renderer. Meshes with more than
// maxFaces faces are decimated for the preview; 0 disables decimation.
func New(renderer *render.Renderer, maxFaces int) *Window {
	return &Window{
		renderer: renderer,
		maxFaces: maxFaces,
		requests: make(chan request),
		closed:   make(chan struct{}),
		finished: make(chan error, 1),
		logger:   logging.Component("calibrate"),
	}
}

// Run opens the window and calls work on a new goroutine. It must be called
// from the main goroutine and returns when work returns, with work's error.
// If the user closes the window first, pending and later Calibrate calls
// fail with ErrClosed while work runs to completion.
func (w *Window) Run(title string, work func() error) error {
	go func() {
		w.finished <- work()
	}()

	width, height := w.renderer.Size()
	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowClosingHandled(true)

	if err := ebiten.RunGame(w); err != nil && !errors.Is(err, ebiten.Termination) {
		w.finish(orient.Transform{}, ErrClosed)
		close(w.closed)
		<-w.finished
		return fmt.Errorf("calibration window: %w", err)
	}
	if !w.workDone {
		close(w.closed)
		return <-w.finished
	}
	return w.workErr
}

// Calibrate blocks until the user dismisses the preview of m and returns the
// chosen correction. m is not modified.
func (w *Window) Calibrate(ctx context.Context, m *mesh.Mesh, key string, start orient.Transform) (orient.Transform, error) {
	req := request{ctx: ctx, mesh: m, key: key, start: start, reply: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.closed:
		return orient.Transform{}, ErrClosed
	case <-ctx.Done():
		return orient.Transform{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.t, res.err
	case <-ctx.Done():
		return orient.Transform{}, ctx.Err()
	}
}

// Update implements ebiten.Game.
func (w *Window) Update() error {
	select {
	case err := <-w.finished:
		w.workErr, w.workDone = err, true
		return ebiten.Termination
	default:
	}

	if ebiten.IsWindowBeingClosed() {
		w.finish(orient.Transform{}, ErrClosed)
		return ebiten.Termination
	}

	if w.active == nil {
		select {
		case req := <-w.requests:
			w.begin(req)
		default:
			return nil
		}
	}
	if w.active.ctx.Err() != nil {
		w.finish(orient.Transform{}, w.active.ctx.Err())
		return nil
	}

	w.handleInput()
	return nil
}

func (w *Window) begin(req request) {
	preview := req.mesh.Clone()
	if w.maxFaces > 0 && len(preview.Faces) > w.maxFaces {
		preview = preview.Decimate(w.maxFaces)
		w.logger.Debug().Str("mesh", req.key).Int("faces", len(preview.Faces)).Msg("decimated preview")
	}
	w.active = &req
	w.preview = preview
	w.adjust = orient.NewAdjustment(req.start)
	w.dirty = true
	ebiten.SetWindowTitle("calibrate: " + req.key)
}

func (w *Window) finish(t orient.Transform, err error) {
	if w.active == nil {
		return
	}
	w.active.reply <- result{t: t, err: err}
	if err == nil {
		w.logger.Info().Str("mesh", w.active.key).Interface("transform", t).Msg("calibration accepted")
	}
	w.active, w.preview, w.adjust = nil, nil, nil
}

func (w *Window) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		w.finish(w.adjust.Transform(), nil)
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		w.adjust.Reset()
		w.dirty = true
	}

	fast := ebiten.IsKeyPressed(ebiten.KeyShift)
	for _, k := range keyBindings {
		if inpututil.IsKeyJustPressed(k.key) {
			w.adjust.Nudge(k.axis, k.steps, fast)
			w.dirty = true
		}
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		w.dragging = true
		w.lastX, w.lastY = ebiten.CursorPosition()
	}
	if w.dragging {
		x, y := ebiten.CursorPosition()
		if dx, dy := x-w.lastX, y-w.lastY; dx != 0 || dy != 0 {
			w.adjust.Drag(dx, dy)
			w.dirty = true
		}
		w.lastX, w.lastY = x, y
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		w.dragging = false
	}
}

var keyBindings = []struct {
	key   ebiten.Key
	axis  orient.Axis
	steps int
}{
	{ebiten.KeyArrowLeft, orient.AxisY, -1},
	{ebiten.KeyArrowRight, orient.AxisY, 1},
	{ebiten.KeyArrowUp, orient.AxisX, -1},
	{ebiten.KeyArrowDown, orient.AxisX, 1},
	{ebiten.KeyPageUp, orient.AxisZ, 1},
	{ebiten.KeyPageDown, orient.AxisZ, -1},
}

// Draw implements ebiten.Game.
func (w *Window) Draw(screen *ebiten.Image) {
	if w.active == nil {
		ebitenutil.DebugPrint(screen, "waiting for the next mesh...")
		return
	}

	if w.dirty {
		if err := w.redraw(); err != nil {
			w.logger.Error().Err(err).Msg("preview render failed")
			w.finish(orient.Transform{}, err)
			return
		}
		w.dirty = false
	}
	if w.frame != nil {
		screen.DrawImage(w.frame, nil)
	}

	t := w.adjust.Transform()
	ebitenutil.DebugPrint(screen, fmt.Sprintf("%s\nx=%.0f y=%.0f z=%.0f\n%s", w.active.key, t.X, t.Y, t.Z, help))
}

func (w *Window) redraw() error {
	view := w.preview.Clone()
	view.Rotate(w.adjust.Transform().Matrix())
	img, err := w.renderer.Render(view, 1)
	if err != nil {
		return err
	}
	if w.frame != nil {
		w.frame.Deallocate()
	}
	w.frame = ebiten.NewImageFromImage(img)
	return nil
}

// Layout implements ebiten.Game.
func (w *Window) Layout(int, int) (int, int) {
	return w.renderer.Size()
}
