package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tugtools/tug/internal/snapshot"
)

// ErrNoActive is returned by LoadActive when no session is open for a
// working directory.
var ErrNoActive = errors.New("no active session for this directory")

// activeRef points a working directory at its open session log. There is no
// process-global current session: every command resolves the session for
// its own working directory through these pointer files.
type activeRef struct {
	SessionID string `json:"session_id"`
	LogPath   string `json:"log_path"`
	WorkDir   string `json:"work_dir"`
}

func activePath(dataDir, workDir string) string {
	return filepath.Join(dataDir, "active", snapshot.HashContent([]byte(workDir))+".json")
}

// MarkActive records workDir's open session. Fails if one is already open.
func MarkActive(dataDir, workDir, sessionID, logPath string) error {
	path := activePath(dataDir, workDir)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("session already in progress for %s", workDir)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating active directory: %w", err)
	}
	data, err := json.Marshal(activeRef{SessionID: sessionID, LogPath: logPath, WorkDir: workDir})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadActive returns the open session log path for workDir.
func LoadActive(dataDir, workDir string) (string, error) {
	data, err := os.ReadFile(activePath(dataDir, workDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoActive
		}
		return "", fmt.Errorf("reading active session pointer: %w", err)
	}
	var ref activeRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", fmt.Errorf("parsing active session pointer: %w", err)
	}
	return ref.LogPath, nil
}

// ClearActive removes workDir's active-session pointer.
func ClearActive(dataDir, workDir string) error {
	if err := os.Remove(activePath(dataDir, workDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing active session pointer: %w", err)
	}
	return nil
}
