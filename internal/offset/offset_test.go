package offset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosched/internal/model"
)

func day(times map[string]string) model.CalendarEntry {
	return model.CalendarEntry{Month: 3, Day: 1, Times: times}
}

func duhaRule(minutes int) model.OffsetRule {
	return model.OffsetRule{Anchor: "dhuhr", Direction: model.Before, Minutes: minutes, Rule: RuleMidMorning}
}

func TestParseClock(t *testing.T) {
	cases := map[string]int{"00:00": 0, "05:12": 312, "23:59": 1439, "7:05": 425}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "nan", "24:00", "12:60", "12:5", "ab:cd", "123:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestDerive(t *testing.T) {
	got, err := Derive("12:15", 35, model.Before)
	require.NoError(t, err)
	assert.Equal(t, "11:40", got)

	got, err = Derive("05:10", 240, model.After)
	require.NoError(t, err)
	assert.Equal(t, "09:10", got)
}

func TestDerive_LeavingDayIsConfigurationError(t *testing.T) {
	_, err := Derive("00:10", 20, model.Before)
	var ce *model.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "same_day", ce.Bound)

	_, err = Derive("23:50", 10, model.After)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "same_day", ce.Bound)

	_, err = Derive("12:00", -5, model.Before)
	assert.True(t, model.IsConfigurationError(err))

	_, err = Derive("12:00", 5, model.Direction("sideways"))
	assert.True(t, model.IsConfigurationError(err))
}

func TestMidMorning_RejectsSmallOffset(t *testing.T) {
	entry := day(map[string]string{"sunrise": "06:50", "dhuhr": "12:15"})

	err := Validate(entry, duhaRule(25))
	var ce *model.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "min_offset", ce.Bound)
}

func TestMidMorning_AcceptsValidOffset(t *testing.T) {
	entry := day(map[string]string{"sunrise": "06:50", "dhuhr": "12:15"})

	got, err := Compute(entry, duhaRule(35))
	require.NoError(t, err)
	assert.Equal(t, "11:40", got)
}

func TestMidMorning_TooCloseToSunrise(t *testing.T) {
	entry := day(map[string]string{"Sunrise": "06:50", "Dhuhr": "12:15"})

	// 12:15 - 305 = 07:10, not more than 30 minutes after 06:50
	err := Validate(entry, duhaRule(305))
	var ce *model.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "after_sunrise", ce.Bound)

	// exactly sunrise+30 is still rejected
	err = Validate(entry, duhaRule(295))
	require.True(t, errors.As(err, &ce))

	// one minute later is fine
	assert.NoError(t, Validate(entry, duhaRule(294)))
}

func TestCompute_MissingAnchor(t *testing.T) {
	entry := day(map[string]string{"sunrise": "06:50"})
	_, err := Compute(entry, duhaRule(60))
	assert.Error(t, err)
	assert.False(t, model.IsConfigurationError(err), "missing data is not a configuration problem")
}

func TestCompute_UnknownRule(t *testing.T) {
	entry := day(map[string]string{"dhuhr": "12:15"})
	_, err := Compute(entry, model.OffsetRule{Anchor: "dhuhr", Direction: model.Before, Minutes: 10, Rule: "nope"})
	assert.True(t, model.IsConfigurationError(err))
}
