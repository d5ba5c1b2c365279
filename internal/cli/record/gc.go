package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/sessionlog"
	"github.com/tugtools/tug/internal/snapshot"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove snapshots unreachable from any session log",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.SessionsDir()
		if err != nil {
			return err
		}
		paths, err := sessionlog.Scan(dir)
		if err != nil {
			return err
		}

		// A snapshot is live when any log still references it: the baseline,
		// or either side of a record.
		live := make(map[snapshot.ID]bool)
		for _, path := range paths {
			sess, err := sessionlog.Read(path)
			if err != nil {
				// An unreadable log pins nothing, but collecting while it is
				// broken could destroy snapshots it still needs.
				return fmt.Errorf("refusing to collect: %s: %w", path, err)
			}
			live[sess.Baseline] = true
			for _, entry := range sess.Entries {
				live[entry.Record.From] = true
				live[entry.Record.To] = true
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		res, err := store.GC(live)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d snapshot(s) and %d blob(s); %d snapshot(s) live.\n",
			res.SnapshotsRemoved, res.BlobsRemoved, len(live))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
