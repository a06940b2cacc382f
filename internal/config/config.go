package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"audiosched/internal/model"
)

// NOTE: This file provides the configuration model and YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Validation lives in validate.go, the engine view in engine.go.

// OffsetConfig derives an event from another calendar column.
type OffsetConfig struct {
	// Anchor is the calendar column the offset counts from (e.g. "dhuhr").
	Anchor string `yaml:"anchor" json:"anchor"`
	// Direction is "before" or "after".
	Direction string `yaml:"direction" json:"direction"`
	Minutes   int    `yaml:"minutes" json:"minutes"`
	// Rule optionally names a domain validator such as "mid-morning".
	Rule string `yaml:"rule,omitempty" json:"rule,omitempty"`
}

// EventConfig configures one event type.
type EventConfig struct {
	// Enabled defaults to true when absent.
	Enabled *bool         `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Offset  *OffsetConfig `yaml:"offset,omitempty" json:"offset,omitempty"`
	// Audio is the comma-delimited manifest handed to the player.
	Audio string `yaml:"audio" json:"audio"`
}

// DailyConfig configures the event fired at a fixed clock time every day.
type DailyConfig struct {
	Name    string `yaml:"name" json:"name"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// Time is "HH:MM"; an empty string disables the event.
	Time string `yaml:"time" json:"time"`
	// Recurrence is an optional RRULE (e.g. "FREQ=WEEKLY;BYDAY=FR").
	Recurrence string `yaml:"recurrence,omitempty" json:"recurrence,omitempty"`
	Audio      string `yaml:"audio" json:"audio"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone the calendar table is expressed in; "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Calendar is the calendar table path (.json/.yaml/.csv) or an http(s) URL.
	Calendar string `yaml:"calendar" json:"calendar"`

	// Player is the external playback executable.
	Player string `yaml:"player" json:"player"`

	// WorkDir is the working directory for player invocations (configuration root).
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// StateDir holds the executed-event store and the calendar download cache.
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// LogDir receives audiosched.log. Empty logs to stderr only.
	LogDir   string `yaml:"log_dir" json:"log_dir"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Store selects the executed-event backend: "json" or "sqlite".
	Store string `yaml:"store" json:"store"`

	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" json:"dispatch_timeout"`

	// Rollover is a cron expression for the daily schedule rebuild.
	Rollover string `yaml:"rollover" json:"rollover"`

	// PruneAfterDays drops executed ids older than this many days at rollover. 0 keeps everything.
	PruneAfterDays int `yaml:"prune_after_days" json:"prune_after_days"`

	// Listen enables the read-only status API when non-empty.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Events map[string]*EventConfig `yaml:"events" json:"events"`
	Daily  DailyConfig             `yaml:"daily" json:"daily"`
}

const (
	defaultTimezone        = "Local"
	defaultCalendar        = "/etc/audiosched/calendar.csv"
	defaultPlayer          = "/etc/audiosched/scripts/play_audio.sh"
	defaultWorkDir         = "/etc/audiosched"
	defaultStateDir        = "/var/lib/audiosched"
	defaultLogDir          = "/var/log/audiosched"
	defaultStore           = "json"
	defaultPollInterval    = time.Second
	defaultDispatchTimeout = 15 * time.Minute
	defaultRollover        = "0 0 * * *"
	defaultPruneAfterDays  = 2
	defaultDailyName       = "quran"
	defaultDailyTime       = "06:30"
)

func offsetEvent(anchor, direction string, minutes int, rule string) *EventConfig {
	return &EventConfig{Offset: &OffsetConfig{Anchor: anchor, Direction: direction, Minutes: minutes, Rule: rule}}
}

// defaultEvents mirrors the settings editor defaults: the five calendar
// prayers plus four offset events, all enabled.
func defaultEvents() map[string]*EventConfig {
	return map[string]*EventConfig{
		"fajr":           {},
		"dhuhr":          {},
		"asr":            {},
		"maghrib":        {},
		"isha":           {},
		"tahajjud":       offsetEvent("fajr", "before", 20, ""),
		"athkar_elsabah": offsetEvent("fajr", "after", 240, ""),
		"duha":           offsetEvent("dhuhr", "before", 60, "mid-morning"),
		"athkar_elmasa":  offsetEvent("maghrib", "after", 20, ""),
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:        defaultTimezone,
		Calendar:        defaultCalendar,
		Player:          defaultPlayer,
		WorkDir:         defaultWorkDir,
		StateDir:        defaultStateDir,
		LogDir:          defaultLogDir,
		LogLevel:        "info",
		Store:           defaultStore,
		PollInterval:    defaultPollInterval,
		DispatchTimeout: defaultDispatchTimeout,
		Rollover:        defaultRollover,
		PruneAfterDays:  defaultPruneAfterDays,
		Events:          defaultEvents(),
		Daily: DailyConfig{
			Name: defaultDailyName,
			Time: defaultDailyTime,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Calendar == "" {
		c.Calendar = defaultCalendar
	}
	if c.Player == "" {
		c.Player = defaultPlayer
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Dir(c.Player)
	}
	if c.StateDir == "" {
		c.StateDir = defaultStateDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store == "" {
		c.Store = defaultStore
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	// A tick must happen at least once per minute.
	if c.PollInterval >= time.Minute {
		c.PollInterval = 30 * time.Second
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = defaultDispatchTimeout
	}
	if c.Rollover == "" {
		c.Rollover = defaultRollover
	}
	if c.PruneAfterDays < 0 {
		c.PruneAfterDays = 0
	}

	// Built-in events that are missing entirely get their defaults back;
	// an explicit entry always wins.
	folded := make(map[string]*EventConfig, len(c.Events))
	for name, ev := range c.Events {
		folded[model.FoldName(name)] = ev
	}
	c.Events = folded
	for name, def := range defaultEvents() {
		if ev, ok := c.Events[name]; !ok || ev == nil {
			c.Events[name] = def
		}
	}
	if c.Daily.Name == "" {
		c.Daily.Name = defaultDailyName
	}
}

// Load loads configuration from the given YAML path on fs.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(fsys, path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path on fs.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(fsys afero.Fs, path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := afero.TempFile(fsys, dir, ".audiosched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer fsys.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fsys.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return fsys.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(fsys afero.Fs, path string) error {
	return Save(fsys, path, c)
}

// Location resolves Timezone, falling back to the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ExecutedStorePath is where the JSON backend keeps executed ids.
func (c *Config) ExecutedStorePath() string {
	if c.Store == "sqlite" {
		return filepath.Join(c.StateDir, "executed-events.db")
	}
	return filepath.Join(c.StateDir, "executed-events.json")
}

// CalendarCacheDir is where downloaded calendar tables are cached.
func (c *Config) CalendarCacheDir() string {
	return filepath.Join(c.StateDir, "calendar-cache")
}

// LogFile returns the daemon log path, or "" when file logging is off.
func (c *Config) LogFile() string {
	if c.LogDir == "" {
		return ""
	}
	return filepath.Join(c.LogDir, "audiosched.log")
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
