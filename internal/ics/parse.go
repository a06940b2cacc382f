package ics

import (
	"bytes"
	"errors"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

// ParseExport reads a feed produced by Export back into scheduled events,
// converted to loc. VEVENTs without a summary or start are skipped.
func ParseExport(body []byte, loc *time.Location) ([]model.ScheduledEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	var out []model.ScheduledEvent
	for _, ve := range cal.Events() {
		p := ve.GetProperty(ical.ComponentPropertySummary)
		if p == nil || p.Value == "" {
			appLog.Warn("ics vevent without summary skipped")
			continue
		}
		start, err := ve.GetStartAt()
		if err != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent start unreadable", err, "summary", p.Value)
			continue
		}

		ev := model.ScheduledEvent{At: start.In(loc), Type: p.Value}
		if d := ve.GetProperty(ical.ComponentPropertyDescription); d != nil {
			ev.Audio = model.SplitManifest(d.Value)
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}
