package offset

import (
	"fmt"
	"strconv"

	"audiosched/internal/model"
)

// RuleMidMorning guards the mid-morning (duha) event.
const RuleMidMorning = "mid-morning"

// Mid-morning bounds, in minutes.
const (
	MidMorningMinOffset    = 30
	MidMorningAfterSunrise = 30
)

// Validator checks a derived time against the day's base timestamps.
type Validator func(entry model.CalendarEntry, rule model.OffsetRule, derived string) error

// Rules maps rule names (as referenced from configuration) to validators.
var Rules = map[string]Validator{
	RuleMidMorning: checkMidMorning,
}

// checkMidMorning: the offset before the midday anchor must be at least 30
// minutes and the result must land strictly more than 30 minutes after sunrise.
func checkMidMorning(entry model.CalendarEntry, rule model.OffsetRule, derived string) error {
	if rule.Direction != model.Before {
		return &model.ConfigurationError{
			Field: "offset.direction",
			Value: string(rule.Direction),
			Bound: "direction",
			Msg:   "mid-morning offsets count back from the midday anchor",
		}
	}
	if rule.Minutes < MidMorningMinOffset {
		return &model.ConfigurationError{
			Field: "offset.minutes",
			Value: strconv.Itoa(rule.Minutes),
			Bound: "min_offset",
			Msg:   fmt.Sprintf("must be at least %d minutes before %s", MidMorningMinOffset, rule.Anchor),
		}
	}

	sunriseRaw, ok := entry.Time(model.NameSunrise)
	if !ok {
		return fmt.Errorf("%02d-%02d: sunrise missing, cannot check mid-morning bound", entry.Month, entry.Day)
	}
	sunrise, err := ParseClock(sunriseRaw)
	if err != nil {
		return fmt.Errorf("%02d-%02d: %w", entry.Month, entry.Day, err)
	}
	at, err := ParseClock(derived)
	if err != nil {
		return err
	}
	if at <= sunrise+MidMorningAfterSunrise {
		return &model.ConfigurationError{
			Field: "offset.minutes",
			Value: strconv.Itoa(rule.Minutes),
			Bound: "after_sunrise",
			Msg: fmt.Sprintf("%s is not more than %d minutes after sunrise %s",
				derived, MidMorningAfterSunrise, sunriseRaw),
		}
	}
	return nil
}
