package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosched/internal/config"
	"audiosched/internal/model"
	"audiosched/internal/schedule"
	"audiosched/internal/store"
	"audiosched/internal/trigger"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeStatus struct {
	sched *schedule.Schedule
}

func (f fakeStatus) Snapshot() *schedule.Schedule { return f.sched }
func (f fakeStatus) State() trigger.State          { return trigger.Idle }
func (f fakeStatus) NextRollover() time.Time {
	return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
}
func (f fakeStatus) Failed() []string { return []string{"2024-03-01_04:50_tahajjud"} }

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = auth

	ec := &config.EngineConfig{
		Location: time.UTC,
		Events:   []model.EventType{{Name: "fajr", Enabled: true}, {Name: "isha", Enabled: true}},
		Daily:    model.DailyEvent{Name: "quran", Enabled: true, Time: "06:30", Audio: []string{"a.mp3", "b.mp3"}},
	}
	table := []model.CalendarEntry{
		{Month: 3, Day: 1, Times: map[string]string{"fajr": "05:10", "isha": "19:30"}},
		{Month: 3, Day: 2, Times: map[string]string{"fajr": "05:09", "isha": "19:31"}},
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sched, err := schedule.NewBuilder(ec).Build(table, now)
	require.NoError(t, err)

	st := store.NewFileStore(afero.NewMemMapFs(), "/state/executed-events.json")
	require.NoError(t, st.Record(context.Background(), "2024-03-01_05:10_fajr"))

	return NewServer(cfg, fakeStatus{sched: sched}, st, fixedClock{t: now})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSchedule(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/api/schedule")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-03-01", resp.Date)
	require.Len(t, resp.Events, 3)
	assert.Equal(t, "2024-03-01_05:10_fajr", resp.Events[0].ID)
	assert.True(t, resp.Events[0].Executed)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, resp.Events[1].Audio)
	assert.False(t, resp.Events[2].Executed)

	rec = get(t, h, "/api/schedule?date=2024-03-02")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 3)

	rec = get(t, h, "/api/schedule?date=tomorrow")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, 6, resp.Events)
	assert.Equal(t, 3, resp.Today)
	require.NotNil(t, resp.Next)
	assert.Equal(t, "2024-03-01_19:30_isha", resp.Next.ID)
	assert.Equal(t, []string{"2024-03-01_04:50_tahajjud"}, resp.Failed)
	assert.Empty(t, resp.Rejected)
}

func TestExecutedAndICS(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/api/executed")
	var resp executedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"2024-03-01_05:10_fajr"}, resp.IDs)

	rec = get(t, h, "/api/schedule.ics?days=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code, "health stays public")
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/executed").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/executed", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/executed", nil)
	req.SetBasicAuth("admin", "wrong!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
