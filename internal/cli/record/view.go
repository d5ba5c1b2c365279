package record

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/recorder"
	"github.com/tugtools/tug/internal/sessionlog"
	"github.com/tugtools/tug/internal/tui"
)

var viewCmd = &cobra.Command{
	Use:   "view [log-file]",
	Short: "Browse a session log in an interactive viewer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var logPath string
		if len(args) == 1 {
			logPath = args[0]
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			dataDir, err := config.DataDir()
			if err != nil {
				return err
			}
			logPath, err = recorder.LoadActive(dataDir, cwd)
			if err != nil {
				return err
			}
		}

		sess, err := sessionlog.Read(logPath)
		if err != nil {
			return err
		}
		return tui.Run(sess, filepath.Base(logPath))
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
