package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gymbridge/gymbridge/internal/config/errz"
	"github.com/gymbridge/gymbridge/internal/interpolation"
	"github.com/pelletier/go-toml/v2"
)

// NewConfig loads and validates a panel description from a TOML file.
func NewConfig(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: config file does not exist: %s", errz.ErrFailedToLoadConfig, filePath)
	}

	if ext := filepath.Ext(filePath); ext != ".toml" {
		return nil, fmt.Errorf(
			"%w: unsupported config format %q, only .toml is supported",
			errz.ErrFailedToLoadConfig, ext)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errz.ErrFailedToLoadConfig, err)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errz.ErrFailedToLoadConfig, err)
	}

	cfg, err := NewConfigFromBytes(data)
	if err != nil {
		return nil, err
	}
	cfg.sourceDir = filepath.Dir(absPath)

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("%w: %w", errz.ErrFailedToLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewConfigFromBytes parses a panel description from TOML bytes. Paths stay
// as written and the result is not yet validated; NewConfig does both.
func NewConfigFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", errz.ErrFailedToLoadConfig, err)
	}

	if cfg.Version == "" {
		cfg.Version = VersionLatest
	}
	if cfg.Version != VersionLatest {
		return nil, fmt.Errorf("%w: %s", errz.ErrUnsupportedConfigVer, cfg.Version)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in runtime and widget defaults for omitted fields.
func (c *Config) applyDefaults() {
	if c.Runtime.Interpreter == "" {
		c.Runtime.Interpreter = DefaultInterpreter
	}
	if c.Runtime.DiscreteTimeout == 0 {
		c.Runtime.DiscreteTimeout = Duration(DefaultDiscreteTimeout)
	}
	if c.Runtime.StreamGrace == 0 {
		c.Runtime.StreamGrace = Duration(DefaultStreamGrace)
	}
	if c.Runtime.MaxRestartAttempts == 0 {
		c.Runtime.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if c.Runtime.RestartBackoff == 0 {
		c.Runtime.RestartBackoff = Duration(DefaultRestartBackoff)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	for _, s := range c.Layout.Sliders {
		if s.Min == 0 && s.Max == 0 {
			s.Min = DefaultSliderMin
			s.Max = DefaultSliderMax
		}
	}
}

// resolvePaths expands env references in the interpreter and script paths,
// then anchors relative script paths at the config file's directory.
func (c *Config) resolvePaths() error {
	interpreter, err := interpolation.ExpandEnvVars(c.Runtime.Interpreter)
	if err != nil {
		return fmt.Errorf("runtime.interpreter: %w", err)
	}
	c.Runtime.Interpreter = interpreter

	for _, s := range c.Scripts {
		expanded, err := interpolation.ExpandEnvVars(s.Path)
		if err != nil {
			return fmt.Errorf("script %q path: %w", s.Name, err)
		}
		if !filepath.IsAbs(expanded) && c.sourceDir != "" {
			expanded = filepath.Join(c.sourceDir, expanded)
		}
		s.Path = expanded
	}
	return nil
}
