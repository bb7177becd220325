// Package config loads the engine's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full engine configuration.
type Config struct {
	Mirror  Mirror  `toml:"mirror"`
	Session Session `toml:"session"`
	Plugins Plugins `toml:"plugins"`
	Watcher Watcher `toml:"watcher"`
}

// Mirror configures edit propagation.
type Mirror struct {
	// Margin makes text typed at a copy boundary join the copy.
	Margin bool `toml:"margin"`

	// Shapes maps a handler type tag to a pattern its copies must keep
	// matching; a copy that stops matching shrinks or collapses.
	Shapes map[string]string `toml:"shapes"`
}

// Session configures per-document lifecycle behavior.
type Session struct {
	// InterceptLinkOpen routes opening a transclusion keyword line into
	// creating the transclusion instead of default link navigation.
	InterceptLinkOpen bool `toml:"intercept_link_open"`
}

// Plugins configures the Lua handler scripts loaded at startup.
type Plugins struct {
	Scripts []string `toml:"scripts"`
}

// Watcher configures the on-disk source change watcher.
type Watcher struct {
	Enabled bool `toml:"enabled"`

	// DebounceMS is the window after the engine's own writes during
	// which disk change events for a file are ignored.
	DebounceMS int `toml:"debounce_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mirror:  Mirror{Margin: true},
		Session: Session{InterceptLinkOpen: true},
		Watcher: Watcher{Enabled: true, DebounceMS: 500},
	}
}

// Load reads a configuration file over the defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// CompileShapes compiles the configured shape patterns.
func (c Config) CompileShapes() (map[string]*regexp.Regexp, error) {
	shapes := make(map[string]*regexp.Regexp, len(c.Mirror.Shapes))
	for tag, pattern := range c.Mirror.Shapes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("shape for %s: %w", tag, err)
		}
		shapes[tag] = re
	}
	return shapes, nil
}
