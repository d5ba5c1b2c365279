package record

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/recorder"
)

var closeMessage string

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Take a final capture and seal the open session",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, _, err := resumeActive()
		if err != nil {
			return err
		}

		res, err := rec.Capture("close")
		if err != nil {
			rec.Release()
			return err
		}
		printWarnings(res.Warnings)

		if err := rec.Close(time.Now(), closeMessage); err != nil {
			rec.Release()
			return err
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dataDir, err := config.DataDir()
		if err != nil {
			return err
		}
		if err := recorder.ClearActive(dataDir, cwd); err != nil {
			return err
		}

		if res.Record != nil {
			fmt.Println("Final changes captured.")
		}
		fmt.Println("Session closed.")
		return nil
	},
}

func init() {
	closeCmd.Flags().StringVarP(&closeMessage, "message", "m", "", "Summary message recorded with the close")
	rootCmd.AddCommand(closeCmd)
}
