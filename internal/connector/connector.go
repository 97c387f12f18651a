// Package connector defines the connection capability consumed by the spawn core.
package connector

import (
	"context"
	"fmt"
	"time"
)

// Connection is an established remote-execution session that can multiplex channels.
// It is owned by the caller and outlives any number of spawn calls.
type Connection interface {
	// OpenChannel creates a new channel for a single exec invocation.
	OpenChannel(ctx context.Context) (Channel, error)

	// ServiceOnce services one bounded slice of I/O, blocking up to maxWait.
	// Channel events are dispatched on the calling goroutine from within this call.
	ServiceOnce(ctx context.Context, maxWait time.Duration) error

	// Close terminates the connection.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}

// Channel is one command-execution stream within a Connection.
type Channel interface {
	// RequestPTY asks the remote end to allocate a pseudo-terminal.
	RequestPTY(ctx context.Context) error

	// Exec asks the remote end to run command on this channel.
	Exec(ctx context.Context, command string) error

	// Handle registers the function that receives every event of the channel.
	Handle(fn func(Event))

	// Active reports whether the channel is still open. Once false it stays false.
	Active() bool

	// Close releases the channel.
	Close() error
}

// Stream identifies which output stream a chunk arrived on.
type Stream int

const (
	// StreamStdout is the primary data stream.
	StreamStdout Stream = iota
	// StreamStderr is the extended data stream.
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// Event is something a channel reports: either DataEvent or ExitStatusEvent.
type Event interface {
	isEvent()
}

// DataEvent carries a raw chunk received on one of the output streams.
type DataEvent struct {
	Stream Stream
	Data   []byte
}

// ExitStatusEvent carries the numeric exit status attached to the channel close sequence.
type ExitStatusEvent struct {
	Code int
}

func (DataEvent) isEvent()       {}
func (ExitStatusEvent) isEvent() {}

// Config holds common configuration for connectors.
type Config struct {
	// Host is the target hostname or IP address.
	Host string

	// Port is the target port.
	Port int

	// User is the username for authentication.
	User string

	// Timeout bounds connection establishment.
	Timeout time.Duration
}

// Address returns host:port.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
