package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"audiosched/internal/calendar"
	"audiosched/internal/config"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
	"audiosched/internal/offset"
)

const defaultRecurrence = "FREQ=DAILY"

// Builder turns a calendar table into a Schedule using one EngineConfig snapshot.
type Builder struct {
	cfg *config.EngineConfig
}

// NewBuilder returns a Builder bound to cfg. cfg is read, never modified.
func NewBuilder(cfg *config.EngineConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build expands table into the schedule for now's year.
//
// Enabled offset rules are first checked against today's entry; an event type
// whose offset violates a bound today is left out of the whole build and its
// *model.ConfigurationError is logged and kept in Schedule.Rejected. Every
// other event is still built. Per-day problems (malformed timestamps, offsets
// leaving the day) only skip that occurrence.
func (b *Builder) Build(table []model.CalendarEntry, now time.Time) (*Schedule, error) {
	if len(table) == 0 {
		return nil, &model.ScheduleBuildError{Source: "table", Err: errors.New("calendar table is empty")}
	}

	loc := b.cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	year := now.Year()

	rejected := b.checkToday(table, now)
	for _, name := range sortedKeys(rejected) {
		appLog.Error("schedule: offset rejected for today; event type left out", rejected[name], "event", name)
	}

	var events []model.ScheduledEvent
	for _, entry := range table {
		day, ok := entryDate(entry, year, loc)
		if !ok {
			appLog.Warn("schedule: calendar entry is not a date this year, skipped",
				"month", entry.Month, "day", entry.Day, "year", year)
			continue
		}
		events = append(events, b.eventsFor(entry, day, rejected)...)
	}

	daily, err := b.dailyEvents(table, year, loc)
	if err != nil {
		return nil, err
	}
	events = append(events, daily...)

	sortEvents(events)
	appLog.Info("schedule built", "year", year, "events", len(events), "entries", len(table))
	return &Schedule{events: events, location: loc, year: year, rejected: rejected, BuiltAt: now}, nil
}

// checkToday validates every enabled offset rule against today's entry and
// returns the configuration errors by event name.
func (b *Builder) checkToday(table []model.CalendarEntry, now time.Time) map[string]error {
	today, ok := calendar.Find(table, int(now.Month()), now.Day())
	if !ok {
		appLog.Debug("schedule: no calendar entry for today; offset check skipped", "date", now.Format("2006-01-02"))
		return nil
	}
	var rejected map[string]error
	for _, et := range b.cfg.Events {
		if !et.Enabled || et.Offset == nil || b.cfg.Skipped(et.Name) {
			continue
		}
		err := offset.Validate(today, *et.Offset)
		if err == nil {
			continue
		}
		var ce *model.ConfigurationError
		if errors.As(err, &ce) {
			scoped := *ce
			scoped.Field = "events." + et.Name + "." + ce.Field
			if rejected == nil {
				rejected = map[string]error{}
			}
			rejected[et.Name] = &scoped
			continue
		}
		appLog.Warn("schedule: offset check inconclusive for today", "event", et.Name, "err", err.Error())
	}
	return rejected
}

func sortedKeys(m map[string]error) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Builder) eventsFor(entry model.CalendarEntry, day time.Time, rejected map[string]error) []model.ScheduledEvent {
	var out []model.ScheduledEvent
	for _, et := range b.cfg.Events {
		if !et.Enabled || b.cfg.Skipped(et.Name) {
			continue
		}
		if _, ok := rejected[et.Name]; ok {
			continue
		}

		var (
			clock string
			err   error
		)
		if et.Offset != nil {
			clock, err = offset.Compute(entry, *et.Offset)
		} else {
			raw, ok := entry.Time(et.Name)
			if !ok {
				continue
			}
			clock = raw
		}
		if err != nil {
			appLog.Warn("schedule: offset event skipped",
				"event", et.Name, "date", day.Format("2006-01-02"), "err", err.Error())
			continue
		}

		at, err := atClock(day, clock)
		if err != nil {
			appLog.Warn("schedule: malformed timestamp skipped",
				"event", et.Name, "date", day.Format("2006-01-02"), "value", clock)
			continue
		}
		out = append(out, model.ScheduledEvent{At: at, Type: et.Name, Audio: et.Audio})
	}
	return out
}

// dailyEvents adds the fixed clock-time event once per table day matched by
// its recurrence rule.
func (b *Builder) dailyEvents(table []model.CalendarEntry, year int, loc *time.Location) ([]model.ScheduledEvent, error) {
	d := b.cfg.Daily
	if !d.Enabled || d.Time == "" || b.cfg.Skipped(d.Name) {
		return nil, nil
	}
	minutes, err := offset.ParseClock(d.Time)
	if err != nil {
		return nil, &model.ConfigurationError{Field: "daily.time", Value: d.Time, Msg: err.Error()}
	}

	days, err := recurrenceDays(d.Recurrence, year, minutes, loc)
	if err != nil {
		return nil, err
	}

	var out []model.ScheduledEvent
	for _, entry := range table {
		day, ok := entryDate(entry, year, loc)
		if !ok || !days[day.Format("2006-01-02")] {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
		out = append(out, model.ScheduledEvent{At: at, Type: d.Name, Audio: d.Audio})
	}
	return out, nil
}

// recurrenceDays expands rule over year and returns the matching dates.
func recurrenceDays(rule string, year, minutes int, loc *time.Location) (map[string]bool, error) {
	if rule == "" {
		rule = defaultRecurrence
	}
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, &model.ConfigurationError{Field: "daily.recurrence", Value: rule, Msg: err.Error()}
	}
	start := time.Date(year, time.January, 1, minutes/60, minutes%60, 0, 0, loc)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, loc)
	r.DTStart(start)

	days := make(map[string]bool)
	for _, t := range r.Between(start, end, true) {
		days[t.In(loc).Format("2006-01-02")] = true
	}
	return days, nil
}

// entryDate returns midnight of entry's day in year, rejecting dates that do
// not exist that year (29 February outside leap years).
func entryDate(entry model.CalendarEntry, year int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, time.Month(entry.Month), entry.Day, 0, 0, 0, 0, loc)
	if int(t.Month()) != entry.Month || t.Day() != entry.Day {
		return time.Time{}, false
	}
	return t, true
}

func atClock(day time.Time, clock string) (time.Time, error) {
	minutes, err := offset.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location()), nil
}

// Describe renders one event as "HH:MM type [manifest]" for logs and CLI output.
func Describe(ev model.ScheduledEvent) string {
	if len(ev.Audio) == 0 {
		return fmt.Sprintf("%s %s", ev.At.Format("15:04"), ev.Type)
	}
	return fmt.Sprintf("%s %s [%s]", ev.At.Format("15:04"), ev.Type, model.JoinManifest(ev.Audio))
}
