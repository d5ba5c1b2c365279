// Package config loads and merges tug configuration files.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds all configurable tug settings.
type Config struct {
	EditorCommand        string   `json:"editor_command"`         // external diff editor
	WindowControlCommand string   `json:"window_control_command"` // wmctrl-style utility
	WindowTitle          string   `json:"window_title"`           // title passed to the focus request
	IgnorePatterns       []string `json:"ignore_patterns"`
	DefaultFormat        string   `json:"default_format"` // "text" | "json"
	DebounceMs           int      `json:"debounce_ms"`    // watch trigger coalescing window
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		EditorCommand:        "tug-diff-editor",
		WindowControlCommand: "wmctrl",
		WindowTitle:          "tug-diff-editor",
		DefaultFormat:        "text",
		DebounceMs:           500,
		IgnorePatterns:       []string{},
	}
}

// LoadGlobal reads ~/.config/tug/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "tug", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .tugconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".tugconfig", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, c := range []*Config{global, project} {
		if c == nil {
			continue
		}
		if c.EditorCommand != "" {
			result.EditorCommand = c.EditorCommand
		}
		if c.WindowControlCommand != "" {
			result.WindowControlCommand = c.WindowControlCommand
		}
		if c.WindowTitle != "" {
			result.WindowTitle = c.WindowTitle
		}
		if c.DefaultFormat != "" {
			result.DefaultFormat = c.DefaultFormat
		}
		if c.DebounceMs > 0 {
			result.DebounceMs = c.DebounceMs
		}
		if len(c.IgnorePatterns) > 0 {
			result.IgnorePatterns = c.IgnorePatterns
		}
	}
	return result
}

// DataDir returns the tug-specific XDG data directory:
// $XDG_DATA_HOME/tug or ~/.local/share/tug.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "tug"), nil
}

// SessionsDir returns the directory holding session logs.
func SessionsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// ObjectsDir returns the snapshot store root.
func ObjectsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "objects"), nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
