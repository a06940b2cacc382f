// Package trigger runs the polling loop that fires scheduled events at their
// minute, at most once per EventID, and rebuilds the schedule at rollover.
package trigger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"audiosched/internal/config"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
	"audiosched/internal/schedule"
)

// State is the loop's current phase.
type State int

const (
	Idle State = iota
	Evaluating
	Dispatching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Evaluating:
		return "evaluating"
	case Dispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock in Location (time.Local if nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// Dispatcher plays one event and records it on success.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.ScheduledEvent) error
}

// Executed is the read side of the executed-event store plus pruning.
type Executed interface {
	Contains(id model.EventID) bool
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Rebuilder reloads configuration and the calendar and builds a fresh schedule.
type Rebuilder func(ctx context.Context, now time.Time) (*config.EngineConfig, *schedule.Schedule, error)

// rebuildRetry bounds how long a failed rebuild waits before trying again.
const rebuildRetry = 5 * time.Minute

// Loop is the single scheduling goroutine. Snapshot and State are safe to
// call from other goroutines.
type Loop struct {
	clock      Clock
	store      Executed
	dispatcher Dispatcher
	rebuild    Rebuilder

	mu       sync.RWMutex
	cfg      *config.EngineConfig
	sched    *schedule.Schedule
	state    State
	rollover cron.Schedule
	next     time.Time
	lastTick time.Time

	// failed holds ids whose dispatch failed in this process; they are not retried.
	failed map[model.EventID]struct{}
}

// New builds a loop around an initial schedule. A nil sched (first build
// failed) makes the first tick attempt a rebuild.
func New(cfg *config.EngineConfig, sched *schedule.Schedule, store Executed, d Dispatcher, rebuild Rebuilder, clock Clock) (*Loop, error) {
	rollover, err := cron.ParseStandard(cfg.Rollover)
	if err != nil {
		return nil, &model.ConfigurationError{Field: "rollover", Value: cfg.Rollover, Msg: err.Error()}
	}
	if clock == nil {
		clock = SystemClock{Location: cfg.Location}
	}

	l := &Loop{
		clock:      clock,
		store:      store,
		dispatcher: d,
		rebuild:    rebuild,
		cfg:        cfg,
		sched:      sched,
		rollover:   rollover,
		failed:     map[model.EventID]struct{}{},
	}
	now := l.now()
	if sched == nil {
		l.sched = schedule.Empty(cfg.Location)
		l.next = now
	} else {
		l.next = rollover.Next(now)
	}
	return l, nil
}

// Run ticks every poll interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	appLog.Info("trigger loop started", "poll_interval", l.interval(), "next_rollover", l.NextRollover().Format(time.RFC3339))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			appLog.Info("trigger loop stopped")
			return ctx.Err()
		case <-timer.C:
			l.Tick(ctx, l.now())
			timer.Reset(l.interval())
		}
	}
}

// Tick evaluates the schedule at now: every due, not yet executed (or
// failed) event is dispatched synchronously. At or past the rollover instant
// the schedule is rebuilt once the tick's dispatches completed.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	l.noteGap(now)

	l.mu.RLock()
	sched := l.sched
	next := l.next
	l.mu.RUnlock()

	l.evaluate(ctx, sched, now)

	if !now.Before(next) {
		if rebuilt := l.doRollover(ctx, now); rebuilt != nil {
			// Events at the rollover minute itself may only exist in the new schedule.
			l.evaluate(ctx, rebuilt, now)
		}
	}
	l.setState(Idle)
}

func (l *Loop) evaluate(ctx context.Context, sched *schedule.Schedule, now time.Time) {
	l.setState(Evaluating)
	for _, ev := range sched.Due(now) {
		id := ev.ID()
		if l.store.Contains(id) || l.hasFailed(id) {
			continue
		}

		l.setState(Dispatching)
		appLog.Info("event due", "event_id", id, "event", schedule.Describe(ev))
		if err := l.dispatcher.Dispatch(ctx, ev); err != nil {
			l.mu.Lock()
			l.failed[id] = struct{}{}
			l.mu.Unlock()
			appLog.Error("event missed", err, "event_id", id)
		}
		l.setState(Evaluating)
	}
}

// doRollover rebuilds, prunes and schedules the next rollover. It returns
// the new schedule, or nil when the rebuild failed and the old one stays.
func (l *Loop) doRollover(ctx context.Context, now time.Time) *schedule.Schedule {
	appLog.Info("rollover: rebuilding schedule", "at", now.Format(time.RFC3339))

	cfg, sched, err := l.rebuild(ctx, now)
	if err != nil {
		retry := now.Add(rebuildRetry)
		if n := l.rollover.Next(now); n.Before(retry) {
			retry = n
		}
		l.mu.Lock()
		l.next = retry
		l.mu.Unlock()
		appLog.Error("rollover: rebuild failed; keeping previous schedule", err,
			"events", l.Snapshot().Len(), "retry_at", retry.Format(time.RFC3339))
		return nil
	}

	l.mu.Lock()
	if cfg != nil {
		if rs, perr := cron.ParseStandard(cfg.Rollover); perr == nil {
			l.rollover = rs
		}
		l.cfg = cfg
	}
	l.sched = sched
	l.next = l.rollover.Next(now)
	pruneDays := l.cfg.PruneAfterDays
	next := l.next

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for id := range l.failed {
		if d, err := id.Date(); err != nil || d.Format("2006-01-02") < today.Format("2006-01-02") {
			delete(l.failed, id)
		}
	}
	l.mu.Unlock()

	if pruneDays > 0 {
		n, err := l.store.Prune(ctx, today.AddDate(0, 0, -pruneDays))
		if err != nil {
			appLog.Error("rollover: prune failed", err)
		} else if n > 0 {
			appLog.Info("rollover: pruned executed ids", "removed", n)
		}
	}

	appLog.Info("rollover: schedule replaced", "events", sched.Len(), "today", len(sched.On(now)), "next_rollover", next.Format(time.RFC3339))
	return sched
}

// noteGap warns when ticks were further apart than a minute; minutes in
// between are not caught up.
func (l *Loop) noteGap(now time.Time) {
	l.mu.Lock()
	last := l.lastTick
	l.lastTick = now
	l.mu.Unlock()

	if !last.IsZero() && now.Sub(last) > time.Minute {
		appLog.Warn("trigger loop fell behind; skipped minutes are not replayed",
			"from", last.Format("15:04:05"), "to", now.Format("15:04:05"))
	}
}

// Snapshot returns the schedule currently in use.
func (l *Loop) Snapshot() *schedule.Schedule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sched
}

// State returns the loop's current phase.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// NextRollover returns when the next rebuild is due.
func (l *Loop) NextRollover() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

// Failed lists ids whose dispatch failed in this process, sorted.
func (l *Loop) Failed() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.failed))
	for id := range l.failed {
		out = append(out, string(id))
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (l *Loop) hasFailed(id model.EventID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.failed[id]
	return ok
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) now() time.Time {
	l.mu.RLock()
	loc := l.cfg.Location
	l.mu.RUnlock()
	if loc == nil {
		return l.clock.Now()
	}
	return l.clock.Now().In(loc)
}

func (l *Loop) interval() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cfg.PollInterval <= 0 || l.cfg.PollInterval >= time.Minute {
		return time.Second
	}
	return l.cfg.PollInterval
}
