package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/recorder"
	"github.com/tugtools/tug/internal/vcs"
)

var (
	startWatch         bool
	startCommitTrigger bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Begin a new capture session for the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dataDir, err := config.DataDir()
		if err != nil {
			return err
		}
		sessionsDir, err := config.SessionsDir()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}

		// Refuse a second session for the same directory before doing any
		// expensive work.
		if _, err := recorder.LoadActive(dataDir, cwd); err == nil {
			return fmt.Errorf("session already in progress for %s", cwd)
		}

		rec, warnings, err := recorder.Begin(store, sessionsDir, cwd, cfg.IgnorePatterns)
		if err != nil {
			return err
		}
		printWarnings(warnings)

		log := rec.Log()
		if err := recorder.MarkActive(dataDir, cwd, log.ID().String(), log.Path()); err != nil {
			rec.Release()
			return err
		}
		fmt.Printf("Session started (%s).\n", log.ID())

		if !startWatch && !startCommitTrigger {
			// Background mode: later commands reattach through the
			// active-session pointer.
			return rec.Release()
		}
		return runTriggers(rec, cwd)
	},
}

// runTriggers keeps the recorder attached and captures on every trigger
// firing until the process is interrupted. The session stays open; a later
// `tug-record close` seals it.
func runTriggers(rec *recorder.Recorder, workDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &vcs.Client{WorkDir: workDir, Runner: vcs.DefaultRunner}

	fire := func(origin string) {
		res, err := captureTrigger(rec, client, origin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s capture failed: %v\n", origin, err)
			return
		}
		printWarnings(res.Warnings)
		if res.Record != nil {
			fmt.Printf("%s  captured record (%s)\n", time.Now().Format("15:04:05"), origin)
		}
	}

	var sources []recorder.TriggerSource
	if startWatch {
		sources = append(sources, &recorder.WatchTrigger{
			WorkDir:        workDir,
			IgnorePatterns: cfg.IgnorePatterns,
			Debounce:       time.Duration(cfg.DebounceMs) * time.Millisecond,
		})
	}
	if startCommitTrigger {
		sources = append(sources, &recorder.CommitTrigger{Client: client})
	}

	errCh := make(chan error, len(sources))
	for _, src := range sources {
		go func(src recorder.TriggerSource) {
			errCh <- src.Run(ctx, fire)
		}(src)
	}

	fmt.Println("Watching for changes; interrupt to detach (session stays open).")
	var firstErr error
	for range sources {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if relErr := rec.Release(); firstErr == nil {
		firstErr = relErr
	}
	return firstErr
}

// captureTrigger records one trigger firing. Commit boundaries capture the
// committed tree itself so the record matches the commit even when the
// working tree has already moved on; anything else captures the working
// tree.
func captureTrigger(rec *recorder.Recorder, client *vcs.Client, origin string) (*recorder.CaptureResult, error) {
	if head, ok := recorder.ParseCommitOrigin(origin); ok {
		files, err := client.TreeContents(head)
		if err != nil {
			return nil, err
		}
		return rec.CaptureFiles(files, origin)
	}
	return rec.Capture(origin)
}

func init() {
	startCmd.Flags().BoolVar(&startWatch, "watch", false, "Capture automatically on filesystem changes")
	startCmd.Flags().BoolVar(&startCommitTrigger, "commit-trigger", false, "Capture automatically when the repository HEAD moves")
	rootCmd.AddCommand(startCmd)
}
