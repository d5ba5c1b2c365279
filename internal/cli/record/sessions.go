package record

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/sessionlog"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.SessionsDir()
		if err != nil {
			return err
		}
		paths, err := sessionlog.Scan(dir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		for _, path := range paths {
			sess, err := sessionlog.Read(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, err)
				continue
			}
			state := "closed"
			if sess.Open() {
				state = "open"
			}
			fmt.Printf("%s  %s  %s  %-6s  %d record(s)\n",
				sess.ID, sess.StartTime.Local().Format("2006-01-02 15:04"),
				sess.WorkDir, state, len(sess.Entries))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
