package model

import (
	"fmt"
	"strings"
	"time"
)

// CalendarEntry is one day of the calendar table: month/day plus the named
// base timestamps ("HH:MM") for that day. Names are stored case-folded.
type CalendarEntry struct {
	Month int
	Day   int
	Times map[string]string
}

// NewCalendarEntry builds an entry with its timestamp names case-folded.
func NewCalendarEntry(month, day int, times map[string]string) CalendarEntry {
	folded := make(map[string]string, len(times))
	for k, v := range times {
		folded[FoldName(k)] = v
	}
	return CalendarEntry{Month: month, Day: day, Times: folded}
}

// Time returns the raw timestamp recorded under name, if any. Both sides are
// compared case-folded, so entries not built by NewCalendarEntry still match.
func (e CalendarEntry) Time(name string) (string, bool) {
	key := FoldName(name)
	if v, ok := e.Times[key]; ok {
		return v, true
	}
	for k, v := range e.Times {
		if FoldName(k) == key {
			return v, true
		}
	}
	return "", false
}

// Direction says whether an offset is subtracted from or added to its anchor.
type Direction string

const (
	Before Direction = "before"
	After  Direction = "after"
)

// OffsetRule derives an event from a base timestamp of the same day.
type OffsetRule struct {
	Anchor    string
	Direction Direction
	Minutes   int
	// Rule names an extra domain validator (e.g. "mid-morning"); empty means none.
	Rule string
}

// EventType is the engine's read-only view of one configured event type.
type EventType struct {
	Name    string
	Enabled bool
	// Offset is nil for events read verbatim from the calendar table.
	Offset *OffsetRule
	Audio  []string
}

// DailyEvent is an event anchored to a fixed clock time instead of a
// calendar column (e.g. a daily reading).
type DailyEvent struct {
	Name    string
	Enabled bool
	// Time is "HH:MM"; empty disables the event.
	Time string
	// Recurrence is an RRULE body; empty means FREQ=DAILY.
	Recurrence string
	Audio      []string
}

// ScheduledEvent is one concrete occurrence produced by the schedule builder.
type ScheduledEvent struct {
	At    time.Time
	Type  string
	Audio []string
}

// ID returns the canonical dedup key for this occurrence.
func (e ScheduledEvent) ID() EventID {
	return NewEventID(e.At, e.Type)
}

// EventID is "<YYYY-MM-DD>_<HH:MM>_<event_type_lowercase>".
type EventID string

const eventIDLayout = "2006-01-02_15:04"

// NewEventID builds the canonical id for an occurrence of eventType at t
// (minute resolution, in t's location).
func NewEventID(t time.Time, eventType string) EventID {
	return EventID(t.Format(eventIDLayout) + "_" + strings.ToLower(eventType))
}

// Date returns the calendar date encoded in the id as midnight UTC. The id
// carries no zone; compare dates with Format("2006-01-02"), not instants.
func (id EventID) Date() (time.Time, error) {
	s := string(id)
	if len(s) < len("2006-01-02") {
		return time.Time{}, fmt.Errorf("event id %q: too short", s)
	}
	return time.Parse("2006-01-02", s[:10])
}

func (id EventID) String() string { return string(id) }

// SplitManifest parses a comma-delimited audio manifest, dropping blanks.
func SplitManifest(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinManifest renders a manifest as the single CSV argument passed to the player.
func JoinManifest(files []string) string {
	return strings.Join(files, ",")
}
