package cli

import (
	"context"
	"time"

	"audiosched/internal/calendar"
	"audiosched/internal/config"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
	"audiosched/internal/schedule"
)

// loadConfig reads the config file for commands that keep running on a bad
// value: rejected values fall back to defaults or disable their event and are
// logged.
func loadConfig(opts *RootOptions) (*config.Config, *config.EngineConfig, error) {
	cfg, err := readConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	if rejected := cfg.Repair(); rejected != nil {
		appLog.Error("configuration values rejected; continuing without them", rejected, "config", opts.ConfigPath)
	}
	ec, err := cfg.Engine()
	if err != nil {
		return cfg, nil, WrapExitError(ExitFailure, "invalid configuration", err)
	}
	return cfg, ec, nil
}

// loadConfigStrict fails on any invalid value. Used by validate and set-offset.
func loadConfigStrict(opts *RootOptions) (*config.Config, *config.EngineConfig, error) {
	cfg, err := readConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	ec, err := cfg.Engine()
	if err != nil {
		return cfg, nil, WrapExitError(ExitFailure, "invalid configuration", err)
	}
	return cfg, ec, nil
}

// readConfig loads the file and applies the log level (flag first).
func readConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.FS, opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config "+opts.ConfigPath, err)
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))
	return cfg, nil
}

func loadTable(ctx context.Context, opts *RootOptions, cfg *config.Config) ([]model.CalendarEntry, error) {
	src := calendar.NewSource(opts.FS, cfg.Calendar, cfg.CalendarCacheDir(), nil)
	return src.Load(ctx)
}

func buildSchedule(ctx context.Context, opts *RootOptions, cfg *config.Config, ec *config.EngineConfig, now time.Time) (*schedule.Schedule, error) {
	table, err := loadTable(ctx, opts, cfg)
	if err != nil {
		return nil, err
	}
	return schedule.NewBuilder(ec).Build(table, now)
}

// dumpConfig logs the effective configuration at startup.
func dumpConfig(cfg *config.Config, ec *config.EngineConfig) {
	enabled := make([]string, 0, len(ec.Events))
	disabled := make([]string, 0)
	for _, et := range ec.Events {
		if et.Enabled && !ec.Skipped(et.Name) {
			enabled = append(enabled, et.Name)
		} else {
			disabled = append(disabled, et.Name)
		}
	}
	appLog.Info("effective config",
		"timezone", ec.Location.String(),
		"calendar", cfg.Calendar,
		"player", cfg.Player,
		"work_dir", cfg.WorkDir,
		"state_dir", cfg.StateDir,
		"store", cfg.Store,
		"poll_interval", cfg.PollInterval,
		"dispatch_timeout", cfg.DispatchTimeout,
		"rollover", cfg.Rollover,
		"prune_after_days", cfg.PruneAfterDays,
		"listen", cfg.Listen,
		"enabled", enabled,
		"disabled", disabled,
		"daily", ec.Daily.Name+"@"+ec.Daily.Time,
		"daily_enabled", ec.Daily.Enabled,
	)
	for _, et := range ec.Events {
		if et.Offset == nil {
			continue
		}
		appLog.Debug("offset event",
			"event", et.Name,
			"anchor", et.Offset.Anchor,
			"direction", et.Offset.Direction,
			"minutes", et.Offset.Minutes,
			"rule", et.Offset.Rule,
		)
	}
}

func today(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
