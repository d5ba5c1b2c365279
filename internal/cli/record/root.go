// Package record implements the tug-record command tree.
package record

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/recorder"
	"github.com/tugtools/tug/internal/snapshot"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "tug-record",
	Short: "Capture working-tree diffs into append-only session logs",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, project)
		return nil
	},
}

// exitError carries a specific process exit code through RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute runs the root command. Exit code 1 on ordinary errors, 2 when the
// reviewer aborted the diff editor.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// openStore opens the snapshot store in the XDG data directory.
func openStore() (*snapshot.Store, error) {
	dir, err := config.ObjectsDir()
	if err != nil {
		return nil, err
	}
	return snapshot.NewStore(dir)
}

// resumeActive reattaches to the open session for the current directory.
func resumeActive() (*recorder.Recorder, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, "", err
	}
	logPath, err := recorder.LoadActive(dataDir, cwd)
	if err != nil {
		return nil, "", err
	}
	store, err := openStore()
	if err != nil {
		return nil, "", err
	}
	rec, err := recorder.Resume(store, logPath, cfg.IgnorePatterns)
	if err != nil {
		return nil, "", err
	}
	return rec, logPath, nil
}

// printWarnings reports non-fatal capture problems on stderr.
func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}
