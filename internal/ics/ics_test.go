package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosched/internal/model"
)

func TestExport_RoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Cairo")
	require.NoError(t, err)

	events := []model.ScheduledEvent{
		{At: time.Date(2024, 3, 1, 5, 10, 0, 0, loc), Type: "fajr"},
		{At: time.Date(2024, 3, 1, 6, 30, 0, 0, loc), Type: "quran", Audio: []string{"a.mp3", "b.mp3"}},
	}
	body := Export(events, time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC))

	text := string(body)
	assert.Contains(t, text, "BEGIN:VCALENDAR")
	assert.Contains(t, text, "METHOD:PUBLISH")
	assert.Contains(t, text, "UID:2024-03-01_05:10_fajr@audiosched")
	assert.Equal(t, 2, strings.Count(text, "BEGIN:VEVENT"))

	back, err := ParseExport(body, loc)
	require.NoError(t, err)
	require.Len(t, back, 2)
	for i := range events {
		assert.True(t, events[i].At.Equal(back[i].At))
		assert.Equal(t, events[i].Type, back[i].Type)
		assert.Equal(t, events[i].ID(), back[i].ID())
	}
	assert.Empty(t, back[0].Audio)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, back[1].Audio)
}

func TestParseExport_Errors(t *testing.T) {
	_, err := ParseExport(nil, time.UTC)
	assert.Error(t, err)

	body := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:x\r\nDTSTART:20240301T051000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n")
	events, err := ParseExport(body, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, events, "events without summary are skipped")
}
