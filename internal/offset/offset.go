// Package offset derives offset-based event times from a day's base
// timestamps and enforces the domain rules attached to some event types.
package offset

import (
	"fmt"
	"strconv"
	"strings"

	"audiosched/internal/model"
)

const minutesPerDay = 24 * 60

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || len(hh) == 0 || len(hh) > 2 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Derive applies a signed minute delta to base. The result must stay within
// the same day; leaving [00:00, 24:00) is a ConfigurationError.
func Derive(base string, minutes int, dir model.Direction) (string, error) {
	b, err := ParseClock(base)
	if err != nil {
		return "", &model.ConfigurationError{Field: "base", Value: base, Msg: err.Error()}
	}
	if minutes < 0 {
		return "", &model.ConfigurationError{
			Field: "offset.minutes",
			Value: strconv.Itoa(minutes),
			Bound: "non_negative",
		}
	}

	var out int
	switch dir {
	case model.Before:
		out = b - minutes
	case model.After:
		out = b + minutes
	default:
		return "", &model.ConfigurationError{Field: "offset.direction", Value: string(dir), Msg: "expected before or after"}
	}

	if out < 0 || out >= minutesPerDay {
		return "", &model.ConfigurationError{
			Field: "offset.minutes",
			Value: strconv.Itoa(minutes),
			Bound: "same_day",
			Msg:   fmt.Sprintf("%s %s %s leaves the day", base, dir, FormatClock(minutes%minutesPerDay)),
		}
	}
	return FormatClock(out), nil
}

// Compute resolves rule's anchor in entry, derives the event time and runs
// the rule's domain validator, if any.
func Compute(entry model.CalendarEntry, rule model.OffsetRule) (string, error) {
	base, ok := entry.Time(rule.Anchor)
	if !ok || strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%02d-%02d: anchor %q missing", entry.Month, entry.Day, rule.Anchor)
	}
	derived, err := Derive(base, rule.Minutes, rule.Direction)
	if err != nil {
		return "", err
	}
	if rule.Rule == "" {
		return derived, nil
	}
	check, ok := Rules[rule.Rule]
	if !ok {
		return "", &model.ConfigurationError{Field: "offset.rule", Value: rule.Rule, Msg: "unknown rule"}
	}
	if err := check(entry, rule, derived); err != nil {
		return "", err
	}
	return derived, nil
}

// Validate checks rule against one day of the calendar without keeping the
// result. Callers editing configuration reject the value on error.
func Validate(entry model.CalendarEntry, rule model.OffsetRule) error {
	_, err := Compute(entry, rule)
	return err
}
