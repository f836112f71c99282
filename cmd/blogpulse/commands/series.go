package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/pulse/schedule"
	"github.com/itgyani/blogpulse/sym"
)

// SeriesCmd manages recurring series
var SeriesCmd = &cobra.Command{
	Use:   "series",
	Short: sym.Pulse + " Manage recurring content series",
	Long: sym.Pulse + ` series - recurring content series.

A series is a topic plus a cadence. Each time it comes due the scheduler
generates one post for it and computes the next due time.

Frequencies: daily, weekly, biweekly, monthly, or custom:<n> <unit>
where unit is hours, days, weeks or months (e.g. "custom:6 hours").

Examples:
  blogpulse series create --topic "Go generics" --frequency weekly --keywords go,generics
  blogpulse series create --topic "AI news" --frequency "custom:12 hours" --auto-publish
  blogpulse series ls --status paused
  blogpulse series pause <id>
  blogpulse series jobs <id>`,
}

var seriesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new recurring series",
	RunE:  runSeriesCreate,
}

var seriesLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List series",
	RunE:    runSeriesLs,
}

var seriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one series",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeriesShow,
}

var seriesJobsCmd = &cobra.Command{
	Use:   "jobs <id>",
	Short: "List a series' generation jobs, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeriesJobs,
}

var seriesCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a series permanently (an in-flight job still finishes)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeriesTransition(args[0], "cancelled", (*schedule.Scheduler).CancelSeries)
	},
}

var seriesPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeriesTransition(args[0], "paused", (*schedule.Scheduler).PauseSeries)
	},
}

var seriesResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeriesTransition(args[0], "resumed", (*schedule.Scheduler).ResumeSeries)
	},
}

var (
	createFlags struct {
		topic       string
		category    string
		frequency   string
		keywords    []string
		tone        string
		audience    string
		autoPublish bool
		images      bool
		imageCount  int
		start       string
	}
	lsStatus   string
	jsonOutput bool
)

func init() {
	f := seriesCreateCmd.Flags()
	f.StringVar(&createFlags.topic, "topic", "", "Topic to write about (required)")
	f.StringVar(&createFlags.category, "category", "", "Blog category")
	f.StringVar(&createFlags.frequency, "frequency", "weekly", "daily, weekly, biweekly, monthly or custom:<n> <unit>")
	f.StringSliceVar(&createFlags.keywords, "keywords", nil, "Comma-separated SEO keywords")
	f.StringVar(&createFlags.tone, "tone", "", "Writing tone (default professional)")
	f.StringVar(&createFlags.audience, "audience", "", "Target audience (default business)")
	f.BoolVar(&createFlags.autoPublish, "auto-publish", false, "Publish posts as soon as they are generated")
	f.BoolVar(&createFlags.images, "images", false, "Generate images for each post")
	f.IntVar(&createFlags.imageCount, "image-count", 1, "Images per post when --images is set")
	f.StringVar(&createFlags.start, "start", "", "First due time (RFC3339 or YYYY-MM-DD); default is one period from now")
	seriesCreateCmd.MarkFlagRequired("topic")

	seriesLsCmd.Flags().StringVar(&lsStatus, "status", "", "Filter by status: active, paused, cancelled")
	for _, c := range []*cobra.Command{seriesCreateCmd, seriesLsCmd, seriesShowCmd, seriesJobsCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	}

	SeriesCmd.AddCommand(seriesCreateCmd, seriesLsCmd, seriesShowCmd, seriesJobsCmd,
		seriesCancelCmd, seriesPauseCmd, seriesResumeCmd)
}

// withApp loads config, opens the engine and runs fn
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Backend != "sqlite" {
		pterm.Warning.Println("database.backend is memory: nothing outlives this command")
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func runSeriesCreate(cmd *cobra.Command, args []string) error {
	spec, err := buildSpec()
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		series, err := a.scheduler.CreateSeries(ctx, spec)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(series)
		}
		pterm.Success.Printf("Series %s created\n", series.ID)
		printSeries(series)
		return nil
	})
}

// buildSpec turns the create flags into a SeriesSpec
func buildSpec() (schedule.SeriesSpec, error) {
	freq, err := schedule.ParseFrequency(createFlags.frequency)
	if err != nil {
		return schedule.SeriesSpec{}, err
	}
	startAt, err := parseStartAt(createFlags.start)
	if err != nil {
		return schedule.SeriesSpec{}, err
	}
	spec := schedule.SeriesSpec{
		Topic:          createFlags.topic,
		Category:       createFlags.category,
		Frequency:      freq,
		Keywords:       createFlags.keywords,
		Tone:           createFlags.tone,
		Audience:       createFlags.audience,
		AutoPublish:    createFlags.autoPublish,
		GenerateImages: createFlags.images,
		StartAt:        startAt,
	}
	if createFlags.images {
		spec.ImageCount = createFlags.imageCount
	}
	return spec, nil
}

// parseStartAt accepts RFC3339 or a local calendar date
func parseStartAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return &t, nil
	}
	return nil, errors.NewValidationError("--start %q is neither RFC3339 nor YYYY-MM-DD", raw)
}

func runSeriesLs(cmd *cobra.Command, args []string) error {
	var filter *schedule.SeriesStatus
	if lsStatus != "" {
		status, err := schedule.ParseSeriesStatus(lsStatus)
		if err != nil {
			return err
		}
		filter = &status
	}

	return withApp(func(ctx context.Context, a *app) error {
		series, err := a.scheduler.ListSeries(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(series)
		}
		if len(series) == 0 {
			pterm.Info.Println("No series found")
			return nil
		}

		now := time.Now()
		rows := make([][]string, 0, len(series))
		for _, s := range series {
			rows = append(rows, []string{
				s.ID[:min(8, len(s.ID))],
				truncate(s.Topic, 40),
				s.Frequency.String(),
				seriesStatusText(s.Status),
				relative(s.NextDueAt, now),
				fmt.Sprintf("%d/%d", s.GeneratedCount, s.FailedCount),
			})
		}
		return renderTable([]string{"ID", "Topic", "Frequency", "Status", "Next due", "OK/Failed"}, rows)
	})
}

func runSeriesShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		series, err := a.scheduler.GetSeries(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(series)
		}
		printSeries(series)
		return nil
	})
}

func runSeriesJobs(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if _, err := a.scheduler.GetSeries(ctx, args[0]); err != nil {
			return err
		}
		jobs, err := a.scheduler.ListJobs(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(jobs)
		}
		if len(jobs) == 0 {
			pterm.Info.Println("No jobs yet")
			return nil
		}

		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			outcome := j.ResultRef
			if j.Error != "" {
				outcome = pterm.FgRed.Sprint(truncate(j.Error, 60))
			} else if j.PublishError != "" {
				outcome += pterm.FgYellow.Sprint(" (publish failed)")
			} else if j.Published {
				outcome += " (published)"
			}
			rows = append(rows, []string{
				j.ID[:min(8, len(j.ID))],
				formatTime(j.ScheduledFor),
				jobStatusText(j.Status),
				fmt.Sprint(j.Attempts),
				formatTimePtr(j.CompletedAt),
				orDash(outcome),
			})
		}
		return renderTable([]string{"Job", "Scheduled", "Status", "Attempts", "Completed", "Outcome"}, rows)
	})
}

type transition func(s *schedule.Scheduler, ctx context.Context, id string) error

func runSeriesTransition(id, verb string, apply transition) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := apply(a.scheduler, ctx, id); err != nil {
			return err
		}
		pterm.Success.Printf("Series %s %s\n", id, verb)
		return nil
	})
}
