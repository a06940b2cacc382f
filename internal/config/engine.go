package config

import (
	"fmt"
	"sort"
	"time"

	"audiosched/internal/model"
)

// EngineConfig is the immutable snapshot handed to the schedule builder and
// the trigger loop. It is rebuilt from Config at startup and every rollover.
type EngineConfig struct {
	Location *time.Location
	// Events is sorted by name.
	Events []model.EventType
	Daily  model.DailyEvent
	// Skip lists event names that are never scheduled, whatever the configuration says.
	Skip map[string]struct{}

	Player          string
	WorkDir         string
	DispatchTimeout time.Duration
	PollInterval    time.Duration
	Rollover        string
	PruneAfterDays  int
}

// permanentSkip holds calculation anchors that are never triggerable.
var permanentSkip = []string{model.NameSunrise}

// Engine validates c and derives the engine snapshot.
func (c *Config) Engine() (*EngineConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	ec := &EngineConfig{
		Location:        loc,
		Skip:            map[string]struct{}{},
		Player:          c.Player,
		WorkDir:         c.WorkDir,
		DispatchTimeout: c.DispatchTimeout,
		PollInterval:    c.PollInterval,
		Rollover:        c.Rollover,
		PruneAfterDays:  c.PruneAfterDays,
	}
	for _, name := range permanentSkip {
		ec.Skip[name] = struct{}{}
	}

	for name, ev := range c.Events {
		if ev == nil {
			continue
		}
		et := model.EventType{
			Name:    model.FoldName(name),
			Enabled: boolOrTrue(ev.Enabled),
			Audio:   model.SplitManifest(ev.Audio),
		}
		if ev.Offset != nil {
			et.Offset = offsetRule(ev.Offset)
		}
		ec.Events = append(ec.Events, et)
	}
	sort.Slice(ec.Events, func(i, j int) bool { return ec.Events[i].Name < ec.Events[j].Name })

	ec.Daily = model.DailyEvent{
		Name:       model.FoldName(c.Daily.Name),
		Enabled:    boolOrTrue(c.Daily.Enabled) && c.Daily.Time != "",
		Time:       c.Daily.Time,
		Recurrence: c.Daily.Recurrence,
		Audio:      model.SplitManifest(c.Daily.Audio),
	}
	return ec, nil
}

// Skipped reports whether name is permanently excluded from schedules.
func (ec *EngineConfig) Skipped(name string) bool {
	_, ok := ec.Skip[model.FoldName(name)]
	return ok
}

// Event looks up an event type by (case-insensitive) name.
func (ec *EngineConfig) Event(name string) (model.EventType, bool) {
	n := model.FoldName(name)
	for _, et := range ec.Events {
		if et.Name == n {
			return et, true
		}
	}
	if ec.Daily.Name == n {
		return model.EventType{Name: n, Enabled: ec.Daily.Enabled, Audio: ec.Daily.Audio}, true
	}
	return model.EventType{}, false
}

func offsetRule(o *OffsetConfig) *model.OffsetRule {
	return &model.OffsetRule{
		Anchor:    model.FoldName(o.Anchor),
		Direction: model.Direction(o.Direction),
		Minutes:   o.Minutes,
		Rule:      o.Rule,
	}
}
