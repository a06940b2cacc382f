package cli

import (
	"errors"
	"fmt"

	"audiosched/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation failure, rejected value
	ExitCommandError = 2 // Command error (unreadable config, state directory, ...)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Without an ExitError, store errors map to ExitCommandError and everything
// else to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case model.IsStoreError(err):
		return ExitCommandError
	case model.IsConfigurationError(err), model.IsScheduleBuildError(err), model.IsDispatchError(err):
		return ExitFailure
	}
	return ExitFailure
}
