package model

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid or out-of-domain configuration value.
// The value must be rejected and the previous valid one retained.
type ConfigurationError struct {
	// Field is the configuration key, e.g. "events.duha.offset.minutes".
	Field string
	// Bound names the violated constraint, e.g. "min_offset".
	Bound string
	Value string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	s := "configuration error"
	if e.Field != "" {
		s += ": " + e.Field
	}
	if e.Value != "" {
		s += fmt.Sprintf(" (value %q)", e.Value)
	}
	if e.Bound != "" {
		s += ": violates " + e.Bound
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// ScheduleBuildError reports a missing or unreadable calendar table.
type ScheduleBuildError struct {
	Source string
	Err    error
}

func (e *ScheduleBuildError) Error() string {
	return fmt.Sprintf("schedule build failed (calendar %s): %v", e.Source, e.Err)
}

func (e *ScheduleBuildError) Unwrap() error { return e.Err }

// DispatchError reports a failed player invocation.
type DispatchError struct {
	EventID  EventID
	ExitCode int
	TimedOut bool
	Err      error
}

func (e *DispatchError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("dispatch %s: timed out: %v", e.EventID, e.Err)
	case e.ExitCode != 0:
		return fmt.Sprintf("dispatch %s: exit code %d: %v", e.EventID, e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("dispatch %s: %v", e.EventID, e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StoreError reports a failure reading or persisting executed-event state.
type StoreError struct {
	Path string
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("executed-event store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsScheduleBuildError(err error) bool {
	var se *ScheduleBuildError
	return errors.As(err, &se)
}

func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
