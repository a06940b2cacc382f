package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"

	"audiosched/internal/model"
	"audiosched/internal/offset"
)

// Validate checks every value the engine depends on. All problems are
// reported together; each is a *model.ConfigurationError.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Location(); err != nil {
		errs = append(errs, &model.ConfigurationError{Field: "timezone", Value: c.Timezone, Msg: err.Error()})
	}
	switch c.Store {
	case "json", "sqlite":
	default:
		errs = append(errs, &model.ConfigurationError{Field: "store", Value: c.Store, Msg: "expected json or sqlite"})
	}
	if _, err := cron.ParseStandard(c.Rollover); err != nil {
		errs = append(errs, &model.ConfigurationError{Field: "rollover", Value: c.Rollover, Msg: err.Error()})
	}

	for name, ev := range c.Events {
		if ev == nil || ev.Offset == nil || !boolOrTrue(ev.Enabled) {
			continue
		}
		if err := validateOffset(name, ev.Offset); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.validateDaily(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Repair rejects every invalid value Validate would report: engine-wide
// settings fall back to their defaults and an event with a bad offset (or a
// bad daily event) is disabled. It returns what was rejected, or nil. The
// file on disk is not touched.
func (c *Config) Repair() error {
	var errs []error
	off := func() *bool { b := false; return &b }

	if _, err := c.Location(); err != nil {
		errs = append(errs, &model.ConfigurationError{Field: "timezone", Value: c.Timezone, Msg: err.Error() + "; using " + defaultTimezone})
		c.Timezone = defaultTimezone
	}
	switch c.Store {
	case "json", "sqlite":
	default:
		errs = append(errs, &model.ConfigurationError{Field: "store", Value: c.Store, Msg: "expected json or sqlite; using " + defaultStore})
		c.Store = defaultStore
	}
	if _, err := cron.ParseStandard(c.Rollover); err != nil {
		errs = append(errs, &model.ConfigurationError{Field: "rollover", Value: c.Rollover, Msg: err.Error() + "; using " + defaultRollover})
		c.Rollover = defaultRollover
	}

	for name, ev := range c.Events {
		if ev == nil || ev.Offset == nil || !boolOrTrue(ev.Enabled) {
			continue
		}
		if err := validateOffset(name, ev.Offset); err != nil {
			errs = append(errs, err)
			ev.Enabled = off()
		}
	}

	if err := c.validateDaily(); err != nil {
		errs = append(errs, err)
		c.Daily.Enabled = off()
	}

	return errors.Join(errs...)
}

func validateOffset(name string, o *OffsetConfig) error {
	field := "events." + name + ".offset"
	if o.Anchor == "" {
		return &model.ConfigurationError{Field: field + ".anchor", Msg: "anchor is required"}
	}
	if model.FoldName(o.Anchor) == model.FoldName(name) {
		return &model.ConfigurationError{Field: field + ".anchor", Value: o.Anchor, Msg: "event cannot anchor on itself"}
	}
	switch model.Direction(o.Direction) {
	case model.Before, model.After:
	default:
		return &model.ConfigurationError{Field: field + ".direction", Value: o.Direction, Msg: "expected before or after"}
	}
	if o.Minutes < 0 || o.Minutes >= 24*60 {
		return &model.ConfigurationError{Field: field + ".minutes", Value: strconv.Itoa(o.Minutes), Bound: "same_day"}
	}
	if o.Rule != "" {
		if _, ok := offset.Rules[o.Rule]; !ok {
			return &model.ConfigurationError{Field: field + ".rule", Value: o.Rule, Msg: "unknown rule"}
		}
		if o.Rule == offset.RuleMidMorning && o.Minutes < offset.MidMorningMinOffset {
			return &model.ConfigurationError{
				Field: field + ".minutes",
				Value: strconv.Itoa(o.Minutes),
				Bound: "min_offset",
				Msg:   fmt.Sprintf("must be at least %d", offset.MidMorningMinOffset),
			}
		}
	}
	return nil
}

func (c *Config) validateDaily() error {
	d := c.Daily
	if d.Time == "" || !boolOrTrue(d.Enabled) {
		return nil
	}
	if _, err := offset.ParseClock(d.Time); err != nil {
		return &model.ConfigurationError{Field: "daily.time", Value: d.Time, Msg: err.Error()}
	}
	if d.Recurrence != "" {
		if _, err := rrule.StrToRRule(d.Recurrence); err != nil {
			return &model.ConfigurationError{Field: "daily.recurrence", Value: d.Recurrence, Msg: err.Error()}
		}
	}
	if _, clash := c.Events[model.FoldName(d.Name)]; clash {
		return &model.ConfigurationError{Field: "daily.name", Value: d.Name, Msg: "clashes with a calendar event"}
	}
	return nil
}

// SetOffset replaces the offset minutes of an offset-based event after check
// accepts the candidate rule. On rejection the previous value is kept.
func (c *Config) SetOffset(name string, minutes int, check func(model.OffsetRule) error) error {
	ev, ok := c.Events[model.FoldName(name)]
	if !ok || ev == nil || ev.Offset == nil {
		return &model.ConfigurationError{Field: "events." + name, Msg: "not an offset-based event"}
	}

	candidate := *ev.Offset
	candidate.Minutes = minutes
	if err := validateOffset(name, &candidate); err != nil {
		return err
	}
	if check != nil {
		if err := check(*offsetRule(&candidate)); err != nil {
			return err
		}
	}
	ev.Offset.Minutes = minutes
	return nil
}
