package record

import (
	"fmt"

	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the current working tree into the open session",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, _, err := resumeActive()
		if err != nil {
			return err
		}
		defer rec.Release()

		res, err := rec.Capture("manual")
		if err != nil {
			return err
		}
		printWarnings(res.Warnings)
		if res.Record == nil {
			fmt.Println("No changes since the last capture.")
			return nil
		}

		added, removed := 0, 0
		for _, st := range res.Record.Stats() {
			added += st.Added
			removed += st.Removed
		}
		fmt.Printf("Captured record: %d hunk(s), -%d +%d\n", len(res.Record.Hunks), removed, added)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
}
