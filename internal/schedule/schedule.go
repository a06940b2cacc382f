// Package schedule expands the calendar table and the engine configuration
// into the ordered list of concrete events the trigger loop watches.
package schedule

import (
	"sort"
	"time"

	"audiosched/internal/model"
)

// Schedule is an immutable, time-ordered set of events for one year.
// A nil *Schedule behaves as an empty one.
type Schedule struct {
	events   []model.ScheduledEvent
	location *time.Location
	year     int
	// rejected holds event types left out because today's offset check failed.
	rejected map[string]error

	BuiltAt time.Time
}

// Rejected returns the configuration errors of event types left out of this
// build, keyed by event name.
func (s *Schedule) Rejected() map[string]error {
	if s == nil || len(s.rejected) == 0 {
		return nil
	}
	out := make(map[string]error, len(s.rejected))
	for k, v := range s.rejected {
		out[k] = v
	}
	return out
}

// Empty returns a schedule without events, used until the first successful build.
func Empty(loc *time.Location) *Schedule {
	if loc == nil {
		loc = time.Local
	}
	return &Schedule{location: loc}
}

// Len returns the number of events.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.events)
}

// Year is the calendar year the schedule was built for.
func (s *Schedule) Year() int {
	if s == nil {
		return 0
	}
	return s.year
}

// Events returns a copy of all events in order.
func (s *Schedule) Events() []model.ScheduledEvent {
	if s == nil {
		return nil
	}
	out := make([]model.ScheduledEvent, len(s.events))
	copy(out, s.events)
	return out
}

// On returns the events whose date equals date's calendar day in the
// schedule's location.
func (s *Schedule) On(date time.Time) []model.ScheduledEvent {
	if s == nil || len(s.events) == 0 {
		return nil
	}
	d := date.In(s.location)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.location)
	end := start.AddDate(0, 0, 1)

	i := sort.Search(len(s.events), func(i int) bool { return !s.events[i].At.Before(start) })
	var out []model.ScheduledEvent
	for ; i < len(s.events) && s.events[i].At.Before(end); i++ {
		out = append(out, s.events[i])
	}
	return out
}

// Due returns today's events whose minute equals now's minute.
func (s *Schedule) Due(now time.Time) []model.ScheduledEvent {
	if s == nil {
		return nil
	}
	minute := now.In(s.location).Truncate(time.Minute)
	var out []model.ScheduledEvent
	for _, ev := range s.On(now) {
		if ev.At.Truncate(time.Minute).Equal(minute) {
			out = append(out, ev)
		}
	}
	return out
}

// Next returns the first event strictly after now, if any.
func (s *Schedule) Next(now time.Time) (model.ScheduledEvent, bool) {
	if s == nil {
		return model.ScheduledEvent{}, false
	}
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].At.After(now) })
	if i == len(s.events) {
		return model.ScheduledEvent{}, false
	}
	return s.events[i], true
}

func sortEvents(events []model.ScheduledEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return events[i].Type < events[j].Type
	})
}
