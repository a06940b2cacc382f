// Package dispatch invokes the external player for a matched event and
// records the EventID once the player exits successfully.
package dispatch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

// Environment variables handed to the player for log correlation.
const (
	EnvEventID   = "AUDIOSCHED_EVENT_ID"
	EnvAttemptID = "AUDIOSCHED_ATTEMPT_ID"
)

// Runner starts a process and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args []string, dir string, env []string) error
}

// ExecRunner runs real processes via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, dir string, env []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Recorder is the part of the executed-event store the dispatcher needs.
type Recorder interface {
	Record(ctx context.Context, id model.EventID) error
}

// Dispatcher runs the player synchronously, one event at a time.
type Dispatcher struct {
	Player  string
	WorkDir string
	Timeout time.Duration
	Runner  Runner
	Store   Recorder
}

// New returns a Dispatcher using ExecRunner.
func New(player, workDir string, timeout time.Duration, store Recorder) *Dispatcher {
	return &Dispatcher{
		Player:  player,
		WorkDir: workDir,
		Timeout: timeout,
		Runner:  ExecRunner{},
		Store:   store,
	}
}

// Args renders the player's positional arguments: [type] or [type, manifest_csv].
func Args(ev model.ScheduledEvent) []string {
	if len(ev.Audio) == 0 {
		return []string{ev.Type}
	}
	return []string{ev.Type, model.JoinManifest(ev.Audio)}
}

// Dispatch plays ev. On exit code zero the EventID is recorded; any other
// outcome is a *model.DispatchError and nothing is recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.ScheduledEvent) error {
	id := ev.ID()
	attempt := uuid.NewString()

	runCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	args := Args(ev)
	env := []string{EnvEventID + "=" + id.String(), EnvAttemptID + "=" + attempt}

	appLog.Info("dispatch start", "event_id", id, "attempt", attempt, "player", d.Player, "args", args)
	started := time.Now()

	err := d.Runner.Run(runCtx, d.Player, args, d.WorkDir, env)
	if err != nil {
		derr := &model.DispatchError{EventID: id, Err: err}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			derr.TimedOut = true
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			derr.ExitCode = exitErr.ExitCode()
		}
		appLog.Error("dispatch failed", derr, "event_id", id, "attempt", attempt,
			"elapsed", time.Since(started).Round(time.Millisecond))
		return derr
	}

	if err := d.Store.Record(ctx, id); err != nil {
		// Played but not persisted; the store still remembers it in memory.
		appLog.Error("dispatch succeeded but recording failed", err, "event_id", id, "attempt", attempt)
		return nil
	}
	appLog.Info("dispatch success", "event_id", id, "attempt", attempt,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}
