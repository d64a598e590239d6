// Package config loads meshctl settings from YAML or TOML files, overlays
// MESHCORE_* environment variables and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format names a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is the complete meshctl configuration.
type Config struct {
	Mesh         MeshConfig         `yaml:"mesh" toml:"mesh"`
	Refinement   RefinementConfig   `yaml:"refinement" toml:"refinement"`
	Distribution DistributionConfig `yaml:"distribution" toml:"distribution"`
	Storage      StorageConfig      `yaml:"storage" toml:"storage"`
	Blob         BlobConfig         `yaml:"blob" toml:"blob"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" toml:"telemetry"`
}

// MeshConfig describes the structured root grid.
type MeshConfig struct {
	Dimension int       `yaml:"dimension" toml:"dimension" validate:"min=1,max=3"`
	Cells     []int     `yaml:"cells" toml:"cells" validate:"required,dive,min=1"`
	Lower     []float64 `yaml:"lower" toml:"lower" validate:"required"`
	Upper     []float64 `yaml:"upper" toml:"upper" validate:"required"`
	// Periodic lists the axes whose lower and upper faces are identified.
	Periodic  []int   `yaml:"periodic" toml:"periodic" validate:"dive,min=0,max=2"`
	Tolerance float64 `yaml:"tolerance" toml:"tolerance" validate:"gte=0"`
}

// RefinementConfig selects the cells refined after the grid is built.
type RefinementConfig struct {
	Cells []int `yaml:"cells" toml:"cells" validate:"dive,min=0"`
	// Pattern is a registered pattern key, or "regular" for the isotropic
	// pattern of the grid's cell shape.
	Pattern string `yaml:"pattern" toml:"pattern" validate:"required"`
	Levels  int    `yaml:"levels" toml:"levels" validate:"min=0"`
}

// DistributionConfig controls the in-process ranks.
type DistributionConfig struct {
	Ranks       int `yaml:"ranks" toml:"ranks" validate:"min=1,max=64"`
	NeighborDim int `yaml:"neighbor_dim" toml:"neighbor_dim" validate:"min=0,max=2"`
	MaxRounds   int `yaml:"max_rounds" toml:"max_rounds" validate:"min=1"`
}

// StorageConfig selects the checkpoint store.
type StorageConfig struct {
	Driver      string `yaml:"driver" toml:"driver" validate:"oneof=memory sqlite postgres badger"`
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn" validate:"required_if=Driver postgres"`
	BadgerDir   string `yaml:"badger_dir" toml:"badger_dir" validate:"required_if=Driver badger"`
}

// BlobConfig selects where checkpoints are exported.
type BlobConfig struct {
	Driver string   `yaml:"driver" toml:"driver" validate:"oneof=fs s3 memory"`
	Root   string   `yaml:"root" toml:"root"`
	S3     S3Config `yaml:"s3" toml:"s3"`
}

// S3Config addresses an S3 compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket" toml:"bucket"`
	Region          string `yaml:"region" toml:"region"`
	Endpoint        string `yaml:"endpoint" toml:"endpoint" validate:"omitempty,url"`
	PathStyle       bool   `yaml:"path_style" toml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

// TelemetryConfig selects the log level and metrics backend.
type TelemetryConfig struct {
	LogLevel   string `yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`
	Metrics    string `yaml:"metrics" toml:"metrics" validate:"oneof=none expvar prometheus"`
	ExpvarName string `yaml:"expvar_name" toml:"expvar_name"`
	// Trace writes one JSON line per instrumented operation to stderr.
	Trace bool `yaml:"trace" toml:"trace"`
}

// Default returns a serial 2x2 quadrilateral grid on the unit square with
// sqlite checkpoints and filesystem exports.
func Default() Config {
	return Config{
		Mesh: MeshConfig{
			Dimension: 2,
			Cells:     []int{2, 2},
			Lower:     []float64{0, 0},
			Upper:     []float64{1, 1},
			Tolerance: 1e-10,
		},
		Refinement:   RefinementConfig{Pattern: "regular", Levels: 1},
		Distribution: DistributionConfig{Ranks: 1, NeighborDim: 0, MaxRounds: 64},
		Storage:      StorageConfig{Driver: "sqlite", SQLitePath: "meshdata/checkpoints.db"},
		Blob:         BlobConfig{Driver: "fs", Root: "meshdata/blobs"},
		Telemetry:    TelemetryConfig{LogLevel: "info", Metrics: "none"},
	}
}

// Load reads path, choosing the syntax from its extension. An empty path
// yields the defaults. Environment overrides are applied before validation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		format, err := formatFor(path)
		if err != nil {
			return Config{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, format, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults without consulting the environment.
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()
	if err := decode(data, format, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func formatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}
}

func decode(data []byte, format Format, cfg *Config) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("decode toml: unknown key %q", undecoded[0].String())
		}
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field tags and the cross-field constraints of the mesh
// section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	m := c.Mesh
	if len(m.Cells) != m.Dimension || len(m.Lower) != m.Dimension || len(m.Upper) != m.Dimension {
		return fmt.Errorf("invalid config: mesh cells, lower and upper need %d entries", m.Dimension)
	}
	for d := 0; d < m.Dimension; d++ {
		if m.Lower[d] >= m.Upper[d] {
			return fmt.Errorf("invalid config: mesh axis %d has lower %g >= upper %g", d, m.Lower[d], m.Upper[d])
		}
	}
	for _, axis := range m.Periodic {
		if axis >= m.Dimension {
			return fmt.Errorf("invalid config: periodic axis %d outside dimension %d", axis, m.Dimension)
		}
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return errors.New("invalid config: blob.s3.bucket required for the s3 driver")
	}
	if c.Distribution.NeighborDim >= m.Dimension {
		return fmt.Errorf("invalid config: neighbor_dim %d must be below dimension %d", c.Distribution.NeighborDim, m.Dimension)
	}
	return nil
}
