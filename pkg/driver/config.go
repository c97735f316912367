// Package driver loads run configuration and program sources for the flock
// command line tool.
package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/shelbyd/flock-deprecated/pkg/memory"
	"github.com/shelbyd/flock-deprecated/pkg/vm"
)

// ConfigFileName is looked up in the working directory when no config path is given.
const ConfigFileName = "flock.yml"

// Debug dump output formats.
const (
	DebugFormatText = "text"
	DebugFormatYAML = "yaml"
)

// Config models flock.yml.
type Config struct {
	Path string `yaml:"-"`

	Workers     int    `yaml:"workers"`
	Quantum     int    `yaml:"quantum"`
	MemoryWords int    `yaml:"memory_words"`
	LogLevel    string `yaml:"log_level"`
	DebugFormat string `yaml:"debug_format"`
}

// DefaultConfig returns the settings used when flock.yml leaves a field unset.
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.GOMAXPROCS(0),
		Quantum:     vm.DefaultQuantum,
		MemoryWords: memory.DefaultWords,
		LogLevel:    "warn",
		DebugFormat: DebugFormatText,
	}
}

// LoadConfig parses the config file at path and fills unset fields with
// defaults. An empty path looks for flock.yml in the working directory and
// falls back to the defaults when it does not exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = ConfigFileName
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	defer file.Close()

	cfg, err := decodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", abs, err)
	}
	cfg.Path = abs
	return cfg, nil
}

func decodeConfig(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.DebugFormat = strings.ToLower(strings.TrimSpace(cfg.DebugFormat))
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the VM cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Quantum < 1 {
		return fmt.Errorf("quantum must be positive, got %d", c.Quantum)
	}
	if c.MemoryWords < 1 {
		return fmt.Errorf("memory_words must be positive, got %d", c.MemoryWords)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.DebugFormat {
	case DebugFormatText, DebugFormatYAML:
	default:
		return fmt.Errorf("unknown debug_format %q (expected text or yaml)", c.DebugFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// VMOptions translates the config into machine options.
func (c *Config) VMOptions() []vm.Option {
	return []vm.Option{
		vm.WithWorkers(c.Workers),
		vm.WithQuantum(c.Quantum),
		vm.WithMemoryWords(c.MemoryWords),
	}
}
