package mcclient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthContextFailed is returned when the alias for the target could not be registered.
	ErrAuthContextFailed = errors.New("failed to set mc alias")
	// ErrCommandFailed is returned when mc exits with a non-zero status.
	ErrCommandFailed = errors.New("mc command failed")
	// ErrMalformedOutput is returned when mc prints something that is not JSON lines.
	ErrMalformedOutput = errors.New("malformed mc output")
)

// CommandError describes a failed mc invocation. Credentials never appear in it.
type CommandError struct {
	Kind     error
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Error prints stderr, or stdout when stderr is empty since mc --json reports errors as a record on stdout.
func (e *CommandError) Error() string {
	output := strings.TrimSpace(e.Stderr)
	if output == "" {
		output = strings.TrimSpace(e.Stdout)
	}
	return fmt.Sprintf("%s: %q exited with code %d: %s", e.Kind, e.Command, e.ExitCode, output)
}

func (e *CommandError) Is(target error) bool {
	return target == e.Kind
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
