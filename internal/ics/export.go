// Package ics renders a built schedule as an iCalendar feed so it can be
// reviewed in any calendar client, and reads such feeds back.
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

const (
	productID = "-//audiosched//schedule export//EN"
	uidDomain = "@audiosched"
	// eventLength is nominal; players decide how long an event really lasts.
	eventLength = time.Minute
)

// Export serializes events as a VCALENDAR. Each occurrence becomes a VEVENT
// whose UID is the EventID, summary the event type and description the
// audio manifest.
func Export(events []model.ScheduledEvent, stamp time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		e := cal.AddEvent(ev.ID().String() + uidDomain)
		e.SetDtStampTime(stamp.UTC())
		e.SetStartAt(ev.At.UTC())
		e.SetEndAt(ev.At.Add(eventLength).UTC())
		e.SetSummary(ev.Type)
		e.AddCategory(ev.Type)
		if len(ev.Audio) > 0 {
			e.SetDescription(model.JoinManifest(ev.Audio))
		}
	}

	appLog.Debug("ics export completed", "event_count", len(events))
	return []byte(cal.Serialize())
}
