package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/pulse/schedule"
	"github.com/itgyani/blogpulse/sym"
)

// HealthCmd reports queue health
var HealthCmd = &cobra.Command{
	Use:   "health",
	Short: sym.Health + " Show queue health over the trailing window",
	Long: sym.Health + ` Queue health.

Health is the share of failed jobs among those completed in the trailing
window (health.window_hours): good below health.warning_ratio, critical
above health.critical_ratio, warning in between. An empty window is good.

The command exits non-zero when health is critical, so it can gate cron or CI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(func(ctx context.Context, a *app) error {
			return printHealth(ctx, a.health, asJSON)
		})
	},
}

func init() {
	HealthCmd.Flags().Bool("json", false, "Output the snapshot as JSON")
}

// errCritical makes the process exit non-zero without repeating the report
var errCritical = errors.New("queue health is critical")

func printHealth(ctx context.Context, reporter *schedule.HealthReporter, asJSON bool) error {
	snap, err := reporter.Report(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		if err := printJSON(snap); err != nil {
			return err
		}
	} else {
		renderSnapshot(snap)
	}
	if snap.Health == schedule.HealthCritical {
		return errCritical
	}
	return nil
}

func renderSnapshot(snap *schedule.QueueSnapshot) {
	pterm.DefaultSection.Printf("%s Queue health: %s\n", sym.Health, healthText(snap.Health))
	pterm.Printf("  Window since %s: %d completed, %d failed (%.1f%%)\n",
		formatTime(snap.WindowStart), snap.WindowJobs, snap.WindowFailed, snap.FailureRatio*100)
	if snap.NextDueAt != nil {
		pterm.Printf("  Next due: %s (%s)\n", formatTime(*snap.NextDueAt), relative(*snap.NextDueAt, snap.GeneratedAt))
	}
	pterm.Println()

	rows := [][]string{}
	for _, status := range []schedule.SeriesStatus{schedule.SeriesActive, schedule.SeriesPaused, schedule.SeriesCancelled} {
		rows = append(rows, []string{"series", seriesStatusText(status), fmt.Sprint(snap.SeriesByStatus[status])})
	}
	jobStatuses := make([]string, 0, len(snap.JobsByStatus))
	for status := range snap.JobsByStatus {
		jobStatuses = append(jobStatuses, string(status))
	}
	sort.Strings(jobStatuses)
	for _, status := range jobStatuses {
		js := schedule.JobStatus(status)
		rows = append(rows, []string{"jobs", jobStatusText(js), fmt.Sprint(snap.JobsByStatus[js])})
	}
	rows = append(rows, []string{"jobs", "published", fmt.Sprint(snap.Published)})
	_ = renderTable([]string{"Kind", "Status", "Count"}, rows)
}
