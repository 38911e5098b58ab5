package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory when no
// path is given.
const DefaultFile = "meshsynth.yaml"

// Load builds a Config from defaults, then path (or DefaultFile if path is
// empty and the file exists), then MESHSYNTH_* environment variables. A .env
// file in the working directory is loaded into the environment first without
// overriding variables that are already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Logging.Level, "MESHSYNTH_LOG_LEVEL")
	setString(&c.Logging.File, "MESHSYNTH_LOG_FILE")
	setString(&c.Capture.Input, "MESHSYNTH_INPUT")
	setString(&c.Capture.OutputDir, "MESHSYNTH_OUTPUT_DIR")
	setString(&c.Orient.Calibration, "MESHSYNTH_CALIBRATION")
	setString(&c.Annotate.Mode, "MESHSYNTH_ANNOTATE_MODE")
	setString(&c.Dataset.ClassesDir, "MESHSYNTH_CLASSES_DIR")
	setString(&c.Train.Binary, "MESHSYNTH_YOLO_BIN")
	setString(&c.Infer.Model, "MESHSYNTH_MODEL")

	if err := setInt(&c.Capture.Frames, "MESHSYNTH_FRAMES"); err != nil {
		return err
	}
	if err := setInt(&c.Infer.Device, "MESHSYNTH_CAMERA"); err != nil {
		return err
	}
	if v := os.Getenv("MESHSYNTH_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: MESHSYNTH_SEED=%q is not an unsigned integer", ErrInvalid, v)
		}
		c.Capture.Seed = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

// SaveTo writes the config as YAML, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
