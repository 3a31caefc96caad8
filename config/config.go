// Package config holds the pipeline settings shared by the ecgseg tools. A
// YAML file may set any of them; unset fields take their defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/carbocation/ecgseg/ecgsignal"
	"github.com/carbocation/ecgseg/inference"
	"github.com/carbocation/ecgseg/logging"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "ECGSEG_"

var validate = validator.New()

type Config struct {
	// Fs overrides the sampling rate of loaded records. Zero keeps the rate
	// found in the record.
	Fs      float64 `yaml:"fs" validate:"gte=0"`
	Channel int     `yaml:"channel" validate:"gte=0"`

	// Lead names the CardioSoft XML lead to read, e.g. II.
	Lead string `yaml:"lead"`

	Peaks PeakConfig `yaml:"peaks"`

	SegmentSize      int     `yaml:"segment_size" default:"300" validate:"gte=2"`
	LabelToleranceMs float64 `yaml:"label_tolerance_ms" default:"150" validate:"gte=0"`

	Concurrency int `yaml:"concurrency" default:"4" validate:"gte=1"`
	Retries     int `yaml:"retries" default:"3" validate:"gte=0"`

	Inference inference.Config `yaml:"inference"`
	Log       logging.Options  `yaml:"log"`
	Server    ServerConfig     `yaml:"server"`
}

type PeakConfig struct {
	Window         int     `yaml:"window" default:"300" validate:"gte=2"`
	BaselineWindow int     `yaml:"baseline_window" default:"250" validate:"gte=1"`
	LowCutHz       float64 `yaml:"low_cut_hz" default:"0.5" validate:"gt=0"`
	HighCutHz      float64 `yaml:"high_cut_hz" default:"40" validate:"gtfield=LowCutHz"`
}

// Options converts the peak settings for ecgsignal.DetectRPeaks.
func (p PeakConfig) Options() ecgsignal.PeakOptions {
	return ecgsignal.PeakOptions{
		Window:         p.Window,
		BaselineWindow: p.BaselineWindow,
		LowCutHz:       p.LowCutHz,
		HighCutHz:      p.HighCutHz,
	}
}

type ServerConfig struct {
	Addr         string `yaml:"addr" default:":8080" validate:"required"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" default:"33554432" validate:"gt=0"`
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	return &c, nil
}

// Load reads and parses a YAML configuration file, fills in defaults and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads the configuration and then applies ECGSEG_* environment
// overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// ApplyEnv overrides fields from ECGSEG_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvPrefix + "ONNX_LIBRARY"); v != "" {
		c.Inference.LibraryPath = v
	}
	if v := os.Getenv(EnvPrefix + "MODEL"); v != "" {
		c.Inference.ModelPath = v
	}
	if v := os.Getenv(EnvPrefix + "BACKEND"); v != "" {
		c.Inference.Kind = v
	}
	if v := os.Getenv(EnvPrefix + "ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if v := os.Getenv(EnvPrefix + "FS"); v != "" {
		fs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sFS: %w", EnvPrefix, err)
		}
		c.Fs = fs
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err)
		}
		c.Concurrency = n
	}

	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without replacing variables that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
