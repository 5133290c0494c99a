// Package project loads sheetc.toml project configuration.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/numeric"
	"github.com/vito/sheetc/pkg/optimize"
)

// FileName is the name of the project configuration file.
const FileName = "sheetc.toml"

// Config represents a sheetc.toml project configuration file.
type Config struct {
	Numeric  NumericConfig  `toml:"numeric"`
	Optimize OptimizeConfig `toml:"optimize"`
}

type NumericConfig struct {
	// Precision is the number of significant digits folded constants are
	// rounded to. 0 disables rounding.
	Precision int `toml:"precision,omitempty"`

	// Volatile lists functions that must never be folded, in addition to
	// NOW, TODAY and RAND.
	Volatile []string `toml:"volatile,omitempty"`
}

type OptimizeConfig struct {
	// DisablePartialFolds makes every fold all-or-nothing.
	DisablePartialFolds bool `toml:"disable_partial_folds,omitempty"`
}

// Load loads a sheetc.toml file from the given path.
func Load(path string) (*Config, error) {
	var config Config
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing %s: unknown key %s", path, undecoded[0])
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &config, nil
}

// Find searches for a sheetc.toml file starting from dir and walking up to
// parent directories, stopping at a .git boundary. Returns the path and
// the parsed config, or ("", nil, nil) if not found.
func Find(dir string) (string, *Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				return "", nil, err
			}
			return path, config, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", nil, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

func (c *Config) Validate() error {
	if c.Numeric.Precision < 0 || c.Numeric.Precision > 17 {
		return fmt.Errorf("numeric.precision must be between 0 and 17, got %d", c.Numeric.Precision)
	}
	for _, name := range c.Numeric.Volatile {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("numeric.volatile: empty function name")
		}
	}
	return nil
}

// EngineOptions converts the numeric section into engine options.
func (c *Config) EngineOptions() numeric.Options {
	opts := numeric.Options{Precision: c.Numeric.Precision}
	for _, name := range c.Numeric.Volatile {
		opts.Volatile = append(opts.Volatile, formula.Func(strings.ToUpper(strings.TrimSpace(name))))
	}
	return opts
}

// OptimizerOptions converts the optimize section into optimizer options.
func (c *Config) OptimizerOptions() []optimize.Option {
	var opts []optimize.Option
	if c.Optimize.DisablePartialFolds {
		opts = append(opts, optimize.WithoutPartialFolds())
	}
	return opts
}
