package orient

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/logging"
	"github.com/ironsheep/meshsynth/internal/mesh"
)

// Calibrator lets a person fine-tune a mesh's orientation. It receives the
// uprighted mesh (which it must not modify) and the starting correction,
// blocks until the person dismisses it, and returns the chosen correction.
type Calibrator interface {
	Calibrate(ctx context.Context, m *mesh.Mesh, key string, start Transform) (Transform, error)
}

// Normalizer uprights meshes and applies their calibration.
type Normalizer struct {
	upright    Transform
	mode       string
	store      *Store
	calibrator Calibrator
	shared     *Transform
	logger     zerolog.Logger
}

// NewNormalizer creates a Normalizer. mode is one of config.CalibrateNone,
// CalibrateOnce or CalibratePerMesh. calibrator may be nil for
// CalibrateNone; store may be nil to disable saved transforms.
func NewNormalizer(upright Transform, mode string, store *Store, calibrator Calibrator) (*Normalizer, error) {
	switch mode {
	case config.CalibrateNone:
	case config.CalibrateOnce, config.CalibratePerMesh:
		if calibrator == nil {
			return nil, fmt.Errorf("calibration mode %q needs an interactive calibrator", mode)
		}
	default:
		return nil, fmt.Errorf("%w: unknown calibration mode %q", config.ErrInvalid, mode)
	}
	if store == nil {
		store, _ = OpenStore("")
	}
	return &Normalizer{
		upright:    upright,
		mode:       mode,
		store:      store,
		calibrator: calibrator,
		logger:     logging.Component("orient"),
	}, nil
}

// Normalize rotates m in place: the upright transform first, then the
// correction for key. A correction saved in the store always wins; otherwise
// the calibration mode decides whether to ask the calibrator. The applied
// correction is returned.
func (n *Normalizer) Normalize(ctx context.Context, m *mesh.Mesh, key string) (Transform, error) {
	m.Rotate(n.upright.Matrix())

	if saved, ok := n.store.Get(key); ok {
		n.logger.Debug().Str("mesh", key).Interface("transform", saved).Msg("using saved calibration")
		apply(m, saved)
		return saved, nil
	}

	switch n.mode {
	case config.CalibrateOnce:
		if n.shared != nil {
			apply(m, *n.shared)
			return *n.shared, nil
		}
	case config.CalibratePerMesh:
	default:
		return Transform{}, nil
	}

	n.logger.Info().Str("mesh", key).Msg("waiting for interactive calibration; press Enter or Escape when done")
	t, err := n.calibrator.Calibrate(ctx, m, key, Transform{})
	if err != nil {
		return Transform{}, fmt.Errorf("calibration of %s failed: %w", key, err)
	}
	if err := n.store.Put(key, t); err != nil {
		return Transform{}, err
	}
	if n.mode == config.CalibrateOnce {
		n.shared = &t
	}
	apply(m, t)
	return t, nil
}

func apply(m *mesh.Mesh, t Transform) {
	if !t.IsZero() {
		m.Rotate(t.Matrix())
	}
}
