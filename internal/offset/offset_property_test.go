package offset

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"audiosched/internal/model"
)

func TestDeriveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("before then after returns the base time", prop.ForAll(
		func(base, minutes int) bool {
			back, err := Derive(FormatClock(base), minutes, model.Before)
			if base-minutes < 0 {
				return model.IsConfigurationError(err)
			}
			if err != nil {
				return false
			}
			again, err := Derive(back, minutes, model.After)
			return err == nil && again == FormatClock(base)
		},
		gen.IntRange(0, minutesPerDay-1),
		gen.IntRange(0, 600),
	))

	properties.Property("derived times never wrap into another day", prop.ForAll(
		func(base, minutes int) bool {
			out, err := Derive(FormatClock(base), minutes, model.After)
			if err != nil {
				return base+minutes >= minutesPerDay
			}
			m, perr := ParseClock(out)
			return perr == nil && m == base+minutes
		},
		gen.IntRange(0, minutesPerDay-1),
		gen.IntRange(0, minutesPerDay),
	))

	properties.Property("accepted mid-morning offsets respect both bounds", prop.ForAll(
		func(sunrise, gap, minutes int) bool {
			dhuhr := sunrise + gap
			entry := model.CalendarEntry{Month: 1, Day: 1, Times: map[string]string{
				"sunrise": FormatClock(sunrise),
				"dhuhr":   FormatClock(dhuhr),
			}}
			got, err := Compute(entry, model.OffsetRule{
				Anchor: "dhuhr", Direction: model.Before, Minutes: minutes, Rule: RuleMidMorning,
			})
			if err != nil {
				return true
			}
			at, _ := ParseClock(got)
			return minutes >= MidMorningMinOffset && at > sunrise+MidMorningAfterSunrise
		},
		gen.IntRange(240, 480),
		gen.IntRange(180, 420),
		gen.IntRange(0, 400),
	))

	properties.TestingRun(t)
}
