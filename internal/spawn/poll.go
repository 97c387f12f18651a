package spawn

import (
	"context"
	"errors"
	"time"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

// StopReason says why the poll loop ended.
type StopReason int

const (
	// StopNone means the loop should continue.
	StopNone StopReason = iota
	// StopReadTimeout means the inactivity policy fired.
	StopReadTimeout
	// StopTimeout means the execution policy fired.
	StopTimeout
	// StopChannelClosed means the channel became inactive.
	StopChannelClosed
	// StopTransportError means servicing the connection failed.
	StopTransportError
	// StopCanceled means the caller's context was done.
	StopCanceled
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopReadTimeout:
		return "read timeout"
	case StopTimeout:
		return "timeout"
	case StopChannelClosed:
		return "channel closed"
	case StopTransportError:
		return "transport error"
	case StopCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one poll.
type Decision struct {
	Stop   bool
	Reason StopReason
}

// Continue is the decision to keep servicing the connection.
var Continue = Decision{}

// Stop returns the decision to end the loop.
func Stop(reason StopReason) Decision {
	return Decision{Stop: true, Reason: reason}
}

// pollChannel is the termination policy. Inactivity is checked first and wins ties.
func pollChannel(ch connector.Channel, timeout, readTimeout *Policy) func() Decision {
	return func() Decision {
		switch {
		case readTimeout.Happened():
			return Stop(StopReadTimeout)
		case timeout.Happened():
			return Stop(StopTimeout)
		case !ch.Active():
			return Stop(StopChannelClosed)
		default:
			return Continue
		}
	}
}

// drive services conn in slices of at most interval until poll says stop.
// The returned error is non-nil only for transport failures and cancellation.
func drive(ctx context.Context, conn connector.Connection, interval time.Duration, poll func() Decision) (StopReason, error) {
	for {
		if d := poll(); d.Stop {
			return d.Reason, nil
		}

		if err := conn.ServiceOnce(ctx, interval); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return StopCanceled, err
			}
			return StopTransportError, err
		}

		if err := ctx.Err(); err != nil {
			return StopCanceled, err
		}
	}
}
