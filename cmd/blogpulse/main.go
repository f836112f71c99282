package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/cmd/blogpulse/commands"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "blogpulse",
	Short: "blogpulse - recurring AI blog content scheduler",
	Long: `blogpulse - recurring AI blog content scheduler.

Register recurring series (a topic plus a cadence), and the Pulse scheduler
generates a post for each due occurrence, retrying transient failures with
backoff and reporting queue health.

Available commands:
  series  - Create, list, pause, resume and cancel recurring series
  pulse   - Run the scheduler daemon or a single tick
  health  - Show queue health over the trailing window
  am      - Manage blogpulse configuration ("I am")
  db      - Migrate and inspect the database
  version - Show build information

Examples:
  blogpulse series create --topic "Kubernetes cost tips" --frequency weekly
  blogpulse series ls --status active
  blogpulse pulse start --port 8787
  blogpulse health`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			commands.SetConfigPath(path)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file only (skips the am.toml cascade and env)")

	rootCmd.AddCommand(commands.SeriesCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.HealthCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		os.Exit(1)
	}
}
