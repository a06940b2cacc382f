// Package calendar loads the per-day table of base timestamps the schedule
// is built from. Tables are typed records decoded from JSON, YAML or CSV,
// local or fetched over HTTP; they are never evaluated as code.
package calendar

import (
	"context"
	"net/http"
	"strings"

	"github.com/spf13/afero"

	"audiosched/internal/model"
)

// Source loads the calendar table from a local path or an http(s) URL.
type Source struct {
	Location string
	FS       afero.Fs
	Fetcher  *Fetcher
}

// NewSource builds a Source for location. cacheDir is used for remote tables.
func NewSource(fs afero.Fs, location, cacheDir string, client *http.Client) *Source {
	s := &Source{Location: location, FS: fs}
	if isRemote(location) {
		s.Fetcher = NewFetcher(fs, cacheDir, client)
	}
	return s
}

// Load reads and parses the table. Any failure is a *model.ScheduleBuildError.
func (s *Source) Load(ctx context.Context) ([]model.CalendarEntry, error) {
	format, err := FormatFor(s.Location)
	if err != nil {
		return nil, &model.ScheduleBuildError{Source: s.Location, Err: err}
	}

	var body []byte
	if s.Fetcher != nil {
		res, err := s.Fetcher.Fetch(ctx, s.Location)
		if err != nil {
			return nil, &model.ScheduleBuildError{Source: redactURL(s.Location), Err: err}
		}
		body = res.Body
	} else {
		body, err = afero.ReadFile(s.FS, s.Location)
		if err != nil {
			return nil, &model.ScheduleBuildError{Source: s.Location, Err: err}
		}
	}

	entries, err := Parse(format, body)
	if err != nil {
		return nil, &model.ScheduleBuildError{Source: s.Location, Err: err}
	}
	return entries, nil
}

// Find returns the entry for month/day.
func Find(entries []model.CalendarEntry, month, day int) (model.CalendarEntry, bool) {
	for _, e := range entries {
		if e.Month == month && e.Day == day {
			return e, true
		}
	}
	return model.CalendarEntry{}, false
}

func isRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
