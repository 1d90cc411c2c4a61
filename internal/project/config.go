// Package project locates and decodes gencheck.toml.
package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"gencheck/internal/solver"
)

// ErrInvalidConfig wraps every validation failure of a config file.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is a decoded gencheck.toml. Path and Root are empty for defaults.
type Config struct {
	Path   string       `toml:"-"`
	Root   string       `toml:"-"`
	Check  CheckConfig  `toml:"check"`
	Output OutputConfig `toml:"output"`
	Cache  CacheConfig  `toml:"cache"`
}

// CheckConfig is the [check] section.
type CheckConfig struct {
	// Models are glob patterns, relative to Root, checked when no files are
	// given on the command line.
	Models         []string `toml:"models"`
	Jobs           int      `toml:"jobs"`
	MaxDiagnostics int      `toml:"max-diagnostics"`
	ObjectBound    string   `toml:"object-bound"`
}

// OutputConfig is the [output] section.
type OutputConfig struct {
	Format string `toml:"format"`
	Color  string `toml:"color"`
}

// CacheConfig is the [cache] section. Dir is relative to Root.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Output formats and colour modes accepted in [output].
var (
	Formats    = []string{"pretty", "short", "json", "sarif"}
	ColorModes = []string{"auto", "on", "off"}
)

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Check:  CheckConfig{ObjectBound: solver.ObjectBoundImplicit.String()},
		Output: OutputConfig{Format: "pretty", Color: "auto"},
		Cache:  CacheConfig{Enabled: true},
	}
}

// LoadConfig decodes path over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: %w: unknown key %s", path, ErrInvalidConfig, undecoded[0])
	}
	cfg.Path = path
	cfg.Root = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover finds gencheck.toml above startDir and loads it. Without a file
// it returns the defaults and ok=false.
func Discover(startDir string) (Config, bool, error) {
	path, ok, err := FindConfig(startDir)
	if err != nil {
		return Config{}, false, err
	}
	if !ok {
		return Default(), false, nil
	}
	cfg, err := LoadConfig(path)
	return cfg, true, err
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.Check.Jobs < 0 {
		return fmt.Errorf("%w: [check].jobs must not be negative", ErrInvalidConfig)
	}
	if c.Check.MaxDiagnostics < 0 {
		return fmt.Errorf("%w: [check].max-diagnostics must not be negative", ErrInvalidConfig)
	}
	if _, err := solver.ParseObjectBound(c.Check.ObjectBound); err != nil {
		return fmt.Errorf("%w: [check].object-bound: %w", ErrInvalidConfig, err)
	}
	if c.Output.Format != "" && !slices.Contains(Formats, c.Output.Format) {
		return fmt.Errorf("%w: [output].format %q (want %s)", ErrInvalidConfig, c.Output.Format, strings.Join(Formats, ", "))
	}
	if c.Output.Color != "" && !slices.Contains(ColorModes, c.Output.Color) {
		return fmt.Errorf("%w: [output].color %q (want %s)", ErrInvalidConfig, c.Output.Color, strings.Join(ColorModes, ", "))
	}
	for _, pattern := range c.Check.Models {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: [check].models pattern %q: %w", ErrInvalidConfig, pattern, err)
		}
	}
	return nil
}

// ObjectBound returns the parsed [check].object-bound policy.
func (c Config) ObjectBound() solver.ObjectBound {
	policy, _ := solver.ParseObjectBound(c.Check.ObjectBound)
	return policy
}

// CacheDir returns the cache directory, resolved against Root, or "" to use
// the user cache location.
func (c Config) CacheDir() string {
	if c.Cache.Dir == "" {
		return ""
	}
	if filepath.IsAbs(c.Cache.Dir) || c.Root == "" {
		return c.Cache.Dir
	}
	return filepath.Join(c.Root, c.Cache.Dir)
}

// ModelFiles expands [check].models against Root, sorted and deduplicated.
func (c Config) ModelFiles() ([]string, error) {
	var out []string
	for _, pattern := range c.Check.Models {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(c.Root, filepath.FromSlash(pattern))
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: [check].models: %w", ErrInvalidConfig, err)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
