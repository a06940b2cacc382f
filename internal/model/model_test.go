package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_Format(t *testing.T) {
	at := time.Date(2024, 3, 1, 5, 12, 47, 0, time.Local)
	ev := ScheduledEvent{At: at, Type: "Fajr"}

	assert.Equal(t, EventID("2024-03-01_05:12_fajr"), ev.ID())
	assert.Equal(t, ev.ID(), NewEventID(at.Truncate(time.Minute), "fajr"),
		"seconds must not change the id")
}

func TestEventID_Date(t *testing.T) {
	d, err := EventID("2024-03-01_05:12_fajr").Date()
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 1, d.Day())
	assert.Equal(t, time.UTC, d.Location())

	_, err = EventID("junk").Date()
	assert.Error(t, err)
}

func TestManifest(t *testing.T) {
	assert.Nil(t, SplitManifest(""))
	assert.Nil(t, SplitManifest("  "))
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, SplitManifest("a.mp3, b.mp3,,"))
	assert.Equal(t, "a.mp3,b.mp3", JoinManifest([]string{"a.mp3", "b.mp3"}))
}

func TestCalendarEntry_TimeIsCaseInsensitive(t *testing.T) {
	e := CalendarEntry{Month: 3, Day: 1, Times: map[string]string{"athkar_elsabah": "09:10"}}
	v, ok := e.Time("Athkar_Elsabah")
	require.True(t, ok)
	assert.Equal(t, "09:10", v)

	// Keys written with their table spelling still match.
	raw := CalendarEntry{Month: 3, Day: 1, Times: map[string]string{"Sunrise": "06:50"}}
	v, ok = raw.Time("sunrise")
	require.True(t, ok)
	assert.Equal(t, "06:50", v)

	built := NewCalendarEntry(3, 1, map[string]string{"Dhuhr": "12:15"})
	assert.Equal(t, map[string]string{"dhuhr": "12:15"}, built.Times)
	_, ok = built.Time("asr")
	assert.False(t, ok)
}

func TestErrorHelpers(t *testing.T) {
	cfgErr := fmt.Errorf("wrapped: %w", &ConfigurationError{Field: "events.duha.offset.minutes", Bound: "min_offset", Value: "25"})
	assert.True(t, IsConfigurationError(cfgErr))
	assert.Contains(t, cfgErr.Error(), "min_offset")

	buildErr := &ScheduleBuildError{Source: "calendar.json", Err: errors.New("missing")}
	assert.True(t, IsScheduleBuildError(buildErr))
	assert.False(t, IsConfigurationError(buildErr))

	dispErr := &DispatchError{EventID: "2024-03-01_05:12_fajr", ExitCode: 2, Err: errors.New("exit status 2")}
	assert.True(t, IsDispatchError(dispErr))
	assert.Contains(t, dispErr.Error(), "exit code 2")

	storeErr := &StoreError{Path: "x.json", Op: "load", Err: errors.New("bad json")}
	assert.True(t, IsStoreError(storeErr))
	assert.ErrorContains(t, storeErr, "bad json")
}
