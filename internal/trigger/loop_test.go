package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiosched/internal/config"
	"audiosched/internal/model"
	"audiosched/internal/schedule"
	"audiosched/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fakeDispatcher struct {
	store *store.FileStore
	loop  *Loop
	err   error

	played []model.EventID
	states []State
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, ev model.ScheduledEvent) error {
	f.played = append(f.played, ev.ID())
	if f.loop != nil {
		f.states = append(f.states, f.loop.State())
	}
	if f.err != nil {
		return f.err
	}
	return f.store.Record(ctx, ev.ID())
}

func ts(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func engineConfig(events ...string) *config.EngineConfig {
	cfg := &config.EngineConfig{
		Location:       time.UTC,
		Skip:           map[string]struct{}{model.NameSunrise: {}},
		Rollover:       "0 0 * * *",
		PollInterval:   time.Second,
		PruneAfterDays: 1,
	}
	for _, name := range events {
		cfg.Events = append(cfg.Events, model.EventType{Name: name, Enabled: true})
	}
	return cfg
}

var table = []model.CalendarEntry{
	{Month: 3, Day: 1, Times: map[string]string{"fajr": "05:12", "sunrise": "06:50", "isha": "23:59"}},
	{Month: 3, Day: 2, Times: map[string]string{"fajr": "00:00", "sunrise": "06:49", "isha": "19:30"}},
}

func build(t *testing.T, cfg *config.EngineConfig, now time.Time) *schedule.Schedule {
	t.Helper()
	s, err := schedule.NewBuilder(cfg).Build(table, now)
	require.NoError(t, err)
	return s
}

type harness struct {
	loop       *Loop
	store      *store.FileStore
	dispatcher *fakeDispatcher
	rebuilds   int
}

func newHarness(t *testing.T, cfg *config.EngineConfig, start time.Time, preload ...model.EventID) *harness {
	t.Helper()
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	st := store.NewFileStore(fs, "/state/executed-events.json")
	for _, id := range preload {
		require.NoError(t, st.Record(ctx, id))
	}
	_, err := st.Load(ctx)
	require.NoError(t, err)

	h := &harness{store: st, dispatcher: &fakeDispatcher{store: st}}
	rebuild := func(_ context.Context, now time.Time) (*config.EngineConfig, *schedule.Schedule, error) {
		h.rebuilds++
		return cfg, build(t, cfg, now), nil
	}
	h.loop, err = New(cfg, build(t, cfg, start), st, h.dispatcher, rebuild, &fakeClock{t: start})
	require.NoError(t, err)
	h.dispatcher.loop = h.loop
	return h
}

func TestTick_ExactMinuteAndIdempotency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig("fajr"), ts("2024-03-01 05:00:00"))

	h.loop.Tick(ctx, ts("2024-03-01 05:11:59"))
	assert.Empty(t, h.dispatcher.played, "not before the minute")

	for sec := 0; sec < 60; sec++ {
		h.loop.Tick(ctx, ts("2024-03-01 05:12:00").Add(time.Duration(sec)*time.Second))
	}
	assert.Equal(t, []model.EventID{"2024-03-01_05:12_fajr"}, h.dispatcher.played)
	assert.Equal(t, []State{Dispatching}, h.dispatcher.states)
	assert.Equal(t, Idle, h.loop.State())

	h.loop.Tick(ctx, ts("2024-03-01 05:13:00"))
	assert.Len(t, h.dispatcher.played, 1)
	assert.True(t, h.store.Contains("2024-03-01_05:12_fajr"))
}

func TestTick_LateInMinuteStillFires(t *testing.T) {
	h := newHarness(t, engineConfig("fajr"), ts("2024-03-01 05:00:00"))
	h.loop.Tick(context.Background(), ts("2024-03-01 05:12:59"))
	assert.Len(t, h.dispatcher.played, 1)
}

func TestTick_RestartDoesNotRefire(t *testing.T) {
	h := newHarness(t, engineConfig("fajr"), ts("2024-03-01 05:12:10"), "2024-03-01_05:12_fajr")
	h.loop.Tick(context.Background(), ts("2024-03-01 05:12:30"))
	assert.Empty(t, h.dispatcher.played)
}

func TestTick_FailedDispatchIsNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig("fajr"), ts("2024-03-01 05:00:00"))
	h.dispatcher.err = &model.DispatchError{EventID: "2024-03-01_05:12_fajr", ExitCode: 1, Err: errors.New("exit status 1")}

	h.loop.Tick(ctx, ts("2024-03-01 05:12:00"))
	h.loop.Tick(ctx, ts("2024-03-01 05:12:01"))
	h.loop.Tick(ctx, ts("2024-03-01 05:12:30"))

	assert.Len(t, h.dispatcher.played, 1)
	assert.False(t, h.store.Contains("2024-03-01_05:12_fajr"))
	assert.Equal(t, []string{"2024-03-01_05:12_fajr"}, h.loop.Failed())
}

func TestTick_RolloverRebuilds(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig("isha")
	h := newHarness(t, cfg, ts("2024-03-01 23:58:00"), "2024-02-28_19:20_isha")
	assert.Equal(t, ts("2024-03-02 00:00:00"), h.loop.NextRollover())

	h.loop.Tick(ctx, ts("2024-03-01 23:59:10"))
	assert.Equal(t, []model.EventID{"2024-03-01_23:59_isha"}, h.dispatcher.played)
	assert.Equal(t, 0, h.rebuilds)

	// The configuration edited yesterday enables fajr; the new schedule has it at 00:00.
	cfg2 := engineConfig("fajr", "isha")
	h.loop.rebuild = func(_ context.Context, now time.Time) (*config.EngineConfig, *schedule.Schedule, error) {
		h.rebuilds++
		return cfg2, build(t, cfg2, now), nil
	}

	h.loop.Tick(ctx, ts("2024-03-02 00:00:05"))
	assert.Equal(t, 1, h.rebuilds)
	assert.Equal(t, []model.EventID{"2024-03-01_23:59_isha", "2024-03-02_00:00_fajr"}, h.dispatcher.played)
	assert.Equal(t, ts("2024-03-03 00:00:00"), h.loop.NextRollover())
	assert.Len(t, h.loop.Snapshot().On(ts("2024-03-02 12:00:00")), 2)

	assert.False(t, h.store.Contains("2024-02-28_19:20_isha"), "ids older than a day are pruned")
	assert.True(t, h.store.Contains("2024-03-01_23:59_isha"))

	h.loop.Tick(ctx, ts("2024-03-02 00:00:30"))
	assert.Equal(t, 1, h.rebuilds, "one rebuild per rollover")
	assert.Len(t, h.dispatcher.played, 2)
}

func TestTick_LateTickStillRollsOver(t *testing.T) {
	h := newHarness(t, engineConfig("isha"), ts("2024-03-01 23:58:00"))
	h.loop.Tick(context.Background(), ts("2024-03-02 00:03:00"))
	assert.Equal(t, 1, h.rebuilds)
}

func TestTick_FailedRebuildKeepsSchedule(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig("fajr"), ts("2024-03-01 23:58:00"))
	before := h.loop.Snapshot()

	h.loop.rebuild = func(context.Context, time.Time) (*config.EngineConfig, *schedule.Schedule, error) {
		h.rebuilds++
		return nil, nil, &model.ScheduleBuildError{Source: "calendar.csv", Err: errors.New("no such file")}
	}
	h.loop.Tick(ctx, ts("2024-03-02 00:00:00"))
	assert.Same(t, before, h.loop.Snapshot())
	assert.Equal(t, ts("2024-03-02 00:05:00"), h.loop.NextRollover())

	h.loop.Tick(ctx, ts("2024-03-02 00:01:00"))
	assert.Equal(t, 1, h.rebuilds)
	h.loop.Tick(ctx, ts("2024-03-02 00:05:00"))
	assert.Equal(t, 2, h.rebuilds)
}

func TestNew_WithoutScheduleRebuildsOnFirstTick(t *testing.T) {
	cfg := engineConfig("fajr")
	rebuilds := 0
	st := store.NewFileStore(afero.NewMemMapFs(), "/state/executed.json")
	d := &fakeDispatcher{store: st}

	l, err := New(cfg, nil, st, d, func(_ context.Context, now time.Time) (*config.EngineConfig, *schedule.Schedule, error) {
		rebuilds++
		return cfg, build(t, cfg, now), nil
	}, &fakeClock{t: ts("2024-03-01 05:12:05")})
	require.NoError(t, err)
	assert.Equal(t, 0, l.Snapshot().Len())

	l.Tick(context.Background(), ts("2024-03-01 05:12:05"))
	assert.Equal(t, 1, rebuilds)
	assert.Equal(t, []model.EventID{"2024-03-01_05:12_fajr"}, d.played)
	assert.Equal(t, ts("2024-03-02 00:00:00"), l.NextRollover())
}

func TestNew_BadRollover(t *testing.T) {
	cfg := engineConfig()
	cfg.Rollover = "whenever"
	_, err := New(cfg, nil, nil, nil, nil, &fakeClock{})
	assert.True(t, model.IsConfigurationError(err))
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := engineConfig("fajr")
	st := store.NewFileStore(afero.NewMemMapFs(), "/state/executed.json")
	l, err := New(cfg, build(t, cfg, ts("2024-03-01 05:00:00")), st, &fakeDispatcher{store: st}, nil, &fakeClock{t: ts("2024-03-01 05:00:00")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "evaluating", Evaluating.String())
	assert.Equal(t, "dispatching", Dispatching.String())
}
