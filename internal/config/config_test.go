package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePrecedence(t *testing.T) {
	global := &Config{
		EditorCommand: "meld-wrapper",
		DefaultFormat: "json",
		DebounceMs:    250,
	}
	project := &Config{
		EditorCommand:  "kdiff3-wrapper",
		IgnorePatterns: []string{"*.tmp"},
	}

	merged := Merge(global, project)
	// Project wins, global fills gaps, defaults fill the rest.
	assert.Equal(t, "kdiff3-wrapper", merged.EditorCommand)
	assert.Equal(t, "json", merged.DefaultFormat)
	assert.Equal(t, 250, merged.DebounceMs)
	assert.Equal(t, []string{"*.tmp"}, merged.IgnorePatterns)
	assert.Equal(t, "wmctrl", merged.WindowControlCommand)
}

func TestMergeNilConfigs(t *testing.T) {
	merged := Merge(nil, nil)
	assert.Equal(t, Defaults(), merged)
}

func TestLoadFileMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadFile(filepath.Join(dir, "absent.json"), false)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = loadFile(filepath.Join(dir, "absent.json"), true)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Defaults(), *cfg)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = loadFile(bad, false)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, bad, parseErr.Path)
}

func TestLoadFileParsesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"editor_command": "custom-editor",
		"debounce_ms": 750,
		"ignore_patterns": ["node_modules", "*.bak"]
	}`), 0o644))

	cfg, err := loadFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, "custom-editor", cfg.EditorCommand)
	assert.Equal(t, 750, cfg.DebounceMs)
	assert.Equal(t, []string{"node_modules", "*.bak"}, cfg.IgnorePatterns)
}

func TestDataDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/share")

	dir, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/share", "tug"), dir)

	sessions, err := SessionsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sessions"), sessions)

	objects, err := ObjectsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "objects"), objects)
}
