package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/meshsynth/internal/config"
)

// Manifest describes a dataset for the trainer: split paths and class names
// indexed by ID. The class count is len(Names).
type Manifest struct {
	Train string
	Val   string
	Names []string
}

// NC is the number of classes.
func (m *Manifest) NC() int {
	return len(m.Names)
}

// BuildManifest fills a manifest from the class table and dataset settings.
//
// Parameters:
//   - classes: the class table; its order becomes the names order.
//   - cfg: split paths and the validation mode.
//
// Returns:
//   - *Manifest: ready for Write.
//   - error: Non-nil for an empty class table. Wraps config.ErrInvalid for a
//     missing train_path, an unknown val_mode, or a missing val_path in
//     "separate" mode.
//
// With ValMode "same" the validation split points at the training images,
// and a warning says so. With "separate" ValPath is required.
func BuildManifest(classes *ClassMap, cfg config.DatasetConfig) (*Manifest, error) {
	if classes == nil || classes.Len() == 0 {
		return nil, fmt.Errorf("manifest needs at least one class")
	}
	if cfg.TrainPath == "" {
		return nil, fmt.Errorf("%w: dataset.train_path is empty", config.ErrInvalid)
	}

	m := &Manifest{Train: cfg.TrainPath, Names: classes.Names()}
	switch cfg.ValMode {
	case config.ValSame:
		m.Val = cfg.TrainPath
		log.Warn().
			Str("component", "dataset").
			Str("path", cfg.TrainPath).
			Msg("validation split reuses the training images; metrics will not reflect held-out data")
	case config.ValSeparate:
		if cfg.ValPath == "" {
			return nil, fmt.Errorf("%w: dataset.val_path is required for val_mode separate", config.ErrInvalid)
		}
		m.Val = cfg.ValPath
	default:
		return nil, fmt.Errorf("%w: unknown dataset.val_mode %q", config.ErrInvalid, cfg.ValMode)
	}
	return m, nil
}

// Marshal renders the manifest with keys in the order train, val, nc, names
// and names as an "id: name" mapping.
func (m *Manifest) Marshal() ([]byte, error) {
	names := &yaml.Node{Kind: yaml.MappingNode}
	for id, name := range m.Names {
		names.Content = append(names.Content, intNode(id), strNode(name))
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content,
		strNode("train"), strNode(m.Train),
		strNode("val"), strNode(m.Val),
		strNode("nc"), intNode(m.NC()),
		strNode("names"), names,
	)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Write saves the manifest to path, creating parent directories.
func (m *Manifest) Write(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

type rawManifest struct {
	Train string    `yaml:"train"`
	Val   string    `yaml:"val"`
	NC    *int      `yaml:"nc"`
	Names yaml.Node `yaml:"names"`
}

// LoadManifest reads a manifest. names may be an "id: name" mapping or a
// plain list; mapping IDs must be dense from 0.
//
// # Errors
//
//   - Returns error if the file cannot be read or is not YAML
//   - Returns error if names is neither a mapping nor a list, or if mapping
//     IDs have gaps
//   - Returns error if nc disagrees with the number of names
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	names, err := decodeNames(&raw.Names)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if raw.NC != nil && *raw.NC != len(names) {
		return nil, fmt.Errorf("manifest %s: nc is %d but %d names are listed", path, *raw.NC, len(names))
	}
	return &Manifest{Train: raw.Train, Val: raw.Val, Names: names}, nil
}

func decodeNames(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("invalid names list: %w", err)
		}
		return names, nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := node.Decode(&byID); err != nil {
			return nil, fmt.Errorf("invalid names mapping: %w", err)
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		names := make([]string, len(ids))
		for i, id := range ids {
			if id != i {
				return nil, fmt.Errorf("class ids must be dense from 0, missing %d", i)
			}
			names[i] = byID[id]
		}
		return names, nil
	case 0:
		return nil, fmt.Errorf("names is missing")
	default:
		return nil, fmt.Errorf("names must be a mapping or a list")
	}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(n int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n)}
}
