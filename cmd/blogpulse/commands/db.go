package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/db"
	"github.com/itgyani/blogpulse/logger"
	"github.com/itgyani/blogpulse/pulse/schedule"
	"github.com/itgyani/blogpulse/sym"
)

// DbCmd manages the database
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the blogpulse database",
	Long: sym.DB + ` db - Manage the blogpulse database

Examples:
  blogpulse db migrate   # Apply pending migrations and list applied versions
  blogpulse db stats     # Series, job, post and model spend counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd, dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	logger.DBInfow("Migrations applied", "path", cfg.Database.Path, "count", len(versions))
	pterm.Success.Printf("%s %s is at migration %s\n", sym.DB, cfg.Database.Path, lastOr(versions, "none"))
	for _, v := range versions {
		pterm.Printf("  %s\n", v)
	}
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		snap, err := a.store.Snapshot(ctx, time.Now().Add(-a.health.Thresholds().Window))
		if err != nil {
			return err
		}
		posts, err := a.posts.Stats(ctx)
		if err != nil {
			return err
		}
		spend, err := a.budget.GetStatus(ctx)
		if err != nil {
			return err
		}

		pterm.DefaultSection.Printf("%s Database statistics\n", sym.DB)
		pterm.Printf("  %-18s %s (%s)\n", "Database", a.cfg.Database.Path, a.cfg.Database.Backend)
		rows := [][]string{
			{"Series", fmt.Sprint(snap.TotalSeries)},
			{"  active", fmt.Sprint(snap.SeriesByStatus[schedule.SeriesActive])},
			{"  paused", fmt.Sprint(snap.SeriesByStatus[schedule.SeriesPaused])},
			{"  cancelled", fmt.Sprint(snap.SeriesByStatus[schedule.SeriesCancelled])},
			{"Jobs succeeded", fmt.Sprint(snap.JobsByStatus[schedule.JobSucceeded])},
			{"Jobs failed", fmt.Sprint(snap.JobsByStatus[schedule.JobFailed])},
			{"Jobs in flight", fmt.Sprint(snap.JobsByStatus[schedule.JobGenerating] + snap.JobsByStatus[schedule.JobPending])},
			{"Drafts", fmt.Sprint(posts.Drafts)},
			{"Published posts", fmt.Sprint(posts.Published)},
			{"Images", fmt.Sprint(posts.Images)},
			{"Model calls (24h)", fmt.Sprint(spend.DailyOps)},
			{"Spend 24h / 30d", fmt.Sprintf("$%.3f / $%.3f", spend.DailySpend, spend.MonthlySpend)},
		}
		return renderTable([]string{"Item", "Count"}, rows)
	})
}

func lastOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return items[len(items)-1]
}
