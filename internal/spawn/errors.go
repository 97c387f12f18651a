package spawn

import (
	"fmt"
	"time"
)

// TimeoutError reports that a command exceeded its total execution time.
type TimeoutError struct {
	Command  string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution expired after %s: %s", e.Duration, e.Command)
}

// ReadTimeoutError reports that a command produced no output for too long.
type ReadTimeoutError struct {
	Command  string
	Duration time.Duration
}

func (e *ReadTimeoutError) Error() string {
	return fmt.Sprintf("no output received for %s: %s", e.Duration, e.Command)
}

// PTYError reports that the remote refused to allocate a pseudo-terminal.
type PTYError struct {
	Command string
	Err     error
}

func (e *PTYError) Error() string {
	return fmt.Sprintf("could not obtain pty for %s: %v", e.Command, e.Err)
}

func (e *PTYError) Unwrap() error {
	return e.Err
}
