package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audiosched/internal/config"
	"audiosched/internal/dispatch"
	appLog "audiosched/internal/log"
	"audiosched/internal/schedule"
	"audiosched/internal/store"
	"audiosched/internal/trigger"
	"audiosched/internal/web"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Listen string
}

// NewRunCommand creates the run command: the long-lived trigger loop.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trigger loop until interrupted",
		Long: `Load configuration and the calendar table, build the schedule and fire
events at their minute. The schedule is rebuilt at every rollover.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			return runDaemon(ctx, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "status API listen address (overrides config if set)")

	return cmd
}

func runDaemon(ctx context.Context, rootOpts *RootOptions, opts *RunOptions) error {
	appLog.Info("audiosched starting", "config", rootOpts.ConfigPath)

	cfg, ec, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	if path := cfg.LogFile(); path != "" {
		closeLog, err := teeLogFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot open log file", err)
		}
		defer closeLog()
	}
	dumpConfig(cfg, ec)

	st, err := store.Open(ctx, cfg, rootOpts.FS)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open executed-event store", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.Error("store close failed", err)
		}
	}()

	now := rootOpts.Now().In(ec.Location)
	sched, err := buildSchedule(ctx, rootOpts, cfg, ec, now)
	if err != nil {
		// Keep polling with an empty schedule; the loop retries the build.
		appLog.Error("initial schedule build failed", err)
		sched = nil
	}

	disp := dispatch.New(ec.Player, ec.WorkDir, ec.DispatchTimeout, st)
	rebuild := func(ctx context.Context, now time.Time) (*config.EngineConfig, *schedule.Schedule, error) {
		fresh, freshEC, err := loadConfig(rootOpts)
		if err != nil {
			return nil, nil, err
		}
		s, err := buildSchedule(ctx, rootOpts, fresh, freshEC, now)
		if err != nil {
			return nil, nil, err
		}
		disp.Player, disp.WorkDir, disp.Timeout = freshEC.Player, freshEC.WorkDir, freshEC.DispatchTimeout
		dumpConfig(fresh, freshEC)
		return freshEC, s, nil
	}

	loop, err := trigger.New(ec, sched, st, disp, rebuild, trigger.SystemClock{Location: ec.Location})
	if err != nil {
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	if cfg.Listen != "" {
		srv := web.NewServer(cfg, loop, st, nil)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				appLog.Error("HTTP server stopped", err, "listen", cfg.Listen)
			}
		}()
	}

	err = loop.Run(ctx)
	appLog.Info("audiosched exiting")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// teeLogFile sends log lines to stderr and path. Failing to create the log
// directory aborts startup.
func teeLogFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	appLog.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		appLog.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
