// Package config holds the server configuration. Values come from three
// layers, each overriding the previous one: built-in defaults, the YAML
// config file and the settings the client sends with
// workspace/didChangeConfiguration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the workspace root.
const FileName = ".soarls.yaml"

var validate = validator.New()

// Config is the effective configuration.
type Config struct {
	// Debounce is how long the scheduler waits for edits to stop before an
	// analysis run starts.
	Debounce time.Duration `yaml:"debounce" validate:"min=0"`
	// FullCommentHover shows the whole comment of a procedure on hover
	// instead of its first line.
	FullCommentHover bool `yaml:"fullCommentHover"`
	// Watch enables the file system watcher for closed documents.
	Watch bool `yaml:"watch"`
	// RHSFunctions are extra right-hand-side function names to accept.
	RHSFunctions []string `yaml:"rhsFunctions" validate:"dive,required"`
	LogLevel     string   `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	// ActiveEntryPoint overrides the manifest's active entry point.
	ActiveEntryPoint string `yaml:"activeEntryPoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{Debounce: time.Second, LogLevel: "info"}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w (%s)", err, path)
	}
	return c, nil
}

// LoadDir reads FileName from dir.
func LoadDir(dir string) (Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Settings are the client-side settings. Absent fields leave the current
// value alone.
type Settings struct {
	// DebounceTime is in milliseconds.
	DebounceTime     *int    `json:"debounceTime" validate:"omitempty,min=0"`
	FullCommentHover *bool   `json:"fullCommentHover"`
	ActiveEntryPoint *string `json:"activeEntryPoint"`
}

// ParseSettings decodes the settings object of didChangeConfiguration.
// Both {"soar": {...}} and the bare settings object are accepted.
func ParseSettings(raw json.RawMessage) (Settings, error) {
	var s Settings
	if len(raw) == 0 || string(raw) == "null" {
		return s, nil
	}
	var wrapped struct {
		Soar *json.RawMessage `json:"soar"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Soar != nil {
		raw = *wrapped.Soar
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("config: settings: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("config: settings: %w", err)
	}
	return s, nil
}

// Apply returns c with the fields present in s replaced.
func (c Config) Apply(s Settings) Config {
	if s.DebounceTime != nil {
		c.Debounce = time.Duration(*s.DebounceTime) * time.Millisecond
	}
	if s.FullCommentHover != nil {
		c.FullCommentHover = *s.FullCommentHover
	}
	if s.ActiveEntryPoint != nil {
		c.ActiveEntryPoint = *s.ActiveEntryPoint
	}
	c.RHSFunctions = slices.Clone(c.RHSFunctions)
	return c
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
