package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/am"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/logger"
	"github.com/itgyani/blogpulse/pulse/schedule"
	"github.com/itgyani/blogpulse/server"
	"github.com/itgyani/blogpulse/sym"
)

// PulseCmd runs the scheduler
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run the Pulse scheduler",
	Long: sym.Pulse + ` Pulse - the recurring generation scheduler.

Every tick Pulse finds the series that are due, opens one job per series and
generates its post in the background. Transient failures are retried with
exponential backoff; the series then advances to its next occurrence whether
the job succeeded or failed.

Example:
  blogpulse pulse start               # scheduler + admin API on server.port
  blogpulse pulse start --serve=false # scheduler only
  blogpulse pulse tick                # dispatch whatever is due once and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the scheduler daemon
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler daemon",
	Long: `Start the scheduler in the foreground.

The daemon ticks every pulse.ticker_interval_seconds, serves the admin API
and job event WebSocket unless --serve=false, reloads [pulse] settings when
am.toml changes, and runs until interrupted (Ctrl+C). On shutdown in-flight
jobs are cancelled and recorded as failed.`,
	RunE: runPulseStart,
}

// PulseTickCmd runs a single tick
var PulseTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Dispatch due series once and wait for their jobs",
	RunE:  runPulseTick,
}

var (
	pulseServe bool
	pulsePort  int
)

func init() {
	PulseStartCmd.Flags().BoolVar(&pulseServe, "serve", true, "Serve the admin API and job event stream")
	PulseStartCmd.Flags().IntVar(&pulsePort, "port", 0, "Admin API port (default server.port)")
	PulseCmd.AddCommand(PulseStartCmd, PulseTickCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var hub *server.Hub
	opts := []schedule.Option{schedule.WithParentContext(cmd.Context())}
	if pulseServe {
		hub = server.NewHub(logger.ComponentLogger("hub"))
		opts = append(opts, schedule.WithBroadcaster(hub))
	}

	a, err := openApp(cfg, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	errChan := make(chan error, 1)
	var srv *server.Server
	if pulseServe {
		srv = server.New(server.Config{
			Scheduler:      a.scheduler,
			Health:         a.health,
			Posts:          a.posts,
			Usage:          a.usage,
			Budget:         a.budget,
			Hub:            hub,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         a.log.Named("server"),
		})
		port := pulsePort
		if port == 0 {
			port = cfg.Server.Port
		}
		addr := fmt.Sprintf(":%d", port)
		go func() {
			errChan <- srv.ListenAndServe(addr)
		}()
		pterm.Info.Printf("Admin API on http://localhost%s/api\n", addr)
	}

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	stopWatcher := watchConfig(a)
	defer stopWatcher()

	pterm.Success.Printf("%s Pulse started (tick every %s, %s backend)\n",
		sym.PulseOpen, cfg.Pulse.TickInterval(), cfg.Database.Backend)
	pterm.Println(sym.Pulse + " Press Ctrl+C for graceful shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case serveErr = <-errChan:
		if serveErr != nil {
			serveErr = errors.Wrap(serveErr, "admin server stopped")
		}
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.log.Warnw("Admin server shutdown incomplete", "error", err)
			}
		}
		a.scheduler.Stop()
	}()

	select {
	case <-done:
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
	}

	if serveErr != nil {
		return serveErr
	}
	pterm.Success.Printf("%s Pulse stopped\n", sym.PulseClose)
	return nil
}

// watchConfig applies [pulse] changes from the highest-precedence config file
// to the running scheduler. It returns the stop function.
func watchConfig(a *app) func() {
	// --config pins a file; the watcher reloads through the cascade
	if configPath != "" {
		return func() {}
	}
	files := am.LoadedFiles()
	if len(files) == 0 {
		return func() {}
	}
	path := files[len(files)-1]

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		a.log.Warnw("Config hot reload disabled", "path", path, "error", err)
		return func() {}
	}
	watcher.OnReload(func(cfg *am.Config) error {
		a.scheduler.UpdateConfig(schedulerConfig(cfg))
		a.health.SetThresholds(healthThresholds(cfg))
		if err := a.budget.UpdateLimits(budgetConfig(cfg)); err != nil {
			return err
		}
		a.log.Infow("Applied reloaded configuration", "path", path,
			"interval", cfg.Pulse.TickInterval(), "max_concurrent", cfg.Pulse.MaxConcurrent)
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()

	return func() {
		am.SetGlobalWatcher(nil)
		if err := watcher.Stop(); err != nil {
			a.log.Debugw("Config watcher stop", "error", err)
		}
	}
}

func runPulseTick(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		report, err := a.scheduler.Tick(ctx)
		if err != nil {
			return err
		}
		logger.PulseInfow("Manual tick", "due", report.Due,
			"dispatched", report.Dispatched, "skipped", report.Skipped)
		if report.Dispatched == 0 {
			pterm.Info.Printf("%s Nothing due (%d due, %d skipped)\n", sym.Pulse, report.Due, report.Skipped)
			return nil
		}

		spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Generating %d post(s)...", report.Dispatched))
		a.scheduler.Wait()
		if spinner != nil {
			spinner.Success(fmt.Sprintf("%d dispatched, %d skipped", report.Dispatched, report.Skipped))
		}
		return printHealth(ctx, a.health, false)
	})
}
