package record

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/editor"
	"github.com/tugtools/tug/internal/sessionlog"
)

var reviewCmd = &cobra.Command{
	Use:   "review [record-number]",
	Short: "Open a captured record in the external diff editor",
	Long: `Review materializes a record's before and after snapshots and opens
them in the configured diff editor. Accepting leaves the session log
untouched; saving edited files appends a corrective record; aborting the
editor exits with code 2.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, logPath, err := resumeActive()
		if err != nil {
			return err
		}
		defer rec.Release()

		sess, err := sessionlog.Read(logPath)
		if err != nil {
			return err
		}
		if len(sess.Entries) == 0 {
			return fmt.Errorf("session has no records to review")
		}

		// Records are numbered from 1 as in the session viewer; default to
		// the most recent.
		idx := len(sess.Entries)
		if len(args) == 1 {
			idx, err = strconv.Atoi(args[0])
			if err != nil || idx < 1 || idx > len(sess.Entries) {
				return fmt.Errorf("record number must be between 1 and %d", len(sess.Entries))
			}
		}
		target := sess.Entries[idx-1].Record

		store, err := openStore()
		if err != nil {
			return err
		}
		bridge := &editor.Bridge{
			Store:       store,
			Launcher:    &editor.ExecLauncher{Command: cfg.EditorCommand},
			Window:      &editor.ExecWindowControl{Command: cfg.WindowControlCommand},
			WindowTitle: cfg.WindowTitle,
		}

		res, err := bridge.Review(cmd.Context(), target)
		printWarnings(res.Warnings)
		if err != nil {
			return err
		}

		switch res.Outcome {
		case editor.Accepted:
			fmt.Println("Record accepted.")
			return nil
		case editor.Rejected:
			return &exitError{code: 2, err: errors.New("review aborted")}
		case editor.Edited:
			capture, err := rec.CaptureFiles(res.Files, "review")
			if err != nil {
				return err
			}
			printWarnings(capture.Warnings)
			if capture.Record == nil {
				fmt.Println("Edits match the current state; nothing appended.")
				return nil
			}
			fmt.Printf("Corrective record appended: %d hunk(s).\n", len(capture.Record.Hunks))
			return nil
		}
		return fmt.Errorf("unexpected review outcome %v", res.Outcome)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
