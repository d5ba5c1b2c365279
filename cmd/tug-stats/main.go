// tug-stats aggregates session logs into change reports.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/tugtools/tug/internal/config"
	"github.com/tugtools/tug/internal/sessionlog"
	"github.com/tugtools/tug/internal/stats"
)

var (
	cfg         config.Config
	statsDir    string
	statsFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tug-stats [log-file...]",
	Short: "Summarize change statistics from session logs",
	Long: `tug-stats reads one or more session logs and prints per-session and
aggregate change statistics. With no arguments it reads every log in the
sessions directory; --dir points it somewhere else.`,
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
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			dir := statsDir
			if dir == "" {
				var err error
				dir, err = config.SessionsDir()
				if err != nil {
					return err
				}
			}
			var err error
			paths, err = sessionlog.Scan(dir)
			if err != nil {
				return err
			}
		}
		if len(paths) == 0 {
			fmt.Println("No session logs found.")
			return nil
		}

		var sessions []*sessionlog.Session
		for _, path := range paths {
			sess, err := sessionlog.Read(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			sessions = append(sessions, sess)
		}
		report := stats.Aggregate(nil, sessions...)

		format := statsFormat
		if format == "" {
			format = cfg.DefaultFormat
		}
		var renderer stats.Renderer
		switch format {
		case "json":
			renderer = stats.JSONRenderer{}
		case "", "text":
			renderer = stats.TextRenderer{Width: terminalWidth()}
		default:
			return fmt.Errorf("unknown format %q (want text or json)", format)
		}

		out, err := renderer.Render(report)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

// terminalWidth returns the stdout width, or 80 when not a terminal.
func terminalWidth() int {
	if term.IsTerminal(os.Stdout.Fd()) {
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

func main() {
	rootCmd.Flags().StringVar(&statsDir, "dir", "", "Directory to scan for session logs")
	rootCmd.Flags().StringVar(&statsFormat, "format", "", "Output format: text or json (overrides config)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
