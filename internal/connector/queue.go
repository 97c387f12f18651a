package connector

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultQueueSize bounds the number of undispatched events per connection.
	DefaultQueueSize = 64

	chunkSize = 32 * 1024
)

// Queue carries events from transport reader goroutines to the goroutine calling ServiceOnce.
// Transports share one Queue per connection and create an Endpoint per channel.
type Queue struct {
	events chan delivery
}

// delivery is one queued event. A nil event marks the end of the channel.
type delivery struct {
	ep *Endpoint
	ev Event
}

// NewQueue creates a queue buffering up to size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{events: make(chan delivery, size)}
}

// NewEndpoint returns an active endpoint feeding q.
func (q *Queue) NewEndpoint() *Endpoint {
	ep := &Endpoint{queue: q, done: make(chan struct{})}
	ep.active.Store(true)
	return ep
}

// ServiceOnce waits up to maxWait for the first queued event, then dispatches it together
// with everything else already queued.
func (q *Queue) ServiceOnce(ctx context.Context, maxWait time.Duration) error {
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		select {
		case d := <-q.events:
			d.dispatch()
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case d := <-q.events:
			d.dispatch()
		default:
			return nil
		}
	}
}

func (d delivery) dispatch() {
	select {
	case <-d.ep.done:
		// Stopped locally; drop leftovers so they never reach a later spawn.
		return
	default:
	}

	if d.ev == nil {
		d.ep.active.Store(false)
		return
	}
	if d.ep.handler != nil {
		d.ep.handler(d.ev)
	}
}

// Endpoint is the per-channel side of a Queue. Channels embed it to get Handle and Active.
type Endpoint struct {
	queue   *Queue
	handler func(Event)
	active  atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
}

// Handle registers the event handler.
func (ep *Endpoint) Handle(fn func(Event)) {
	ep.handler = fn
}

// Active reports whether the channel is still open.
func (ep *Endpoint) Active() bool {
	return ep.active.Load()
}

// Push queues ev for dispatch. It reports false once the endpoint has been stopped.
func (ep *Endpoint) Push(ev Event) bool {
	select {
	case ep.queue.events <- delivery{ep: ep, ev: ev}:
		return true
	case <-ep.done:
		return false
	}
}

// End queues the close marker. Once dispatched, Active reports false.
func (ep *Endpoint) End() {
	ep.Push(nil)
}

// Pump reads r until it fails and pushes every chunk as a DataEvent on stream.
func (ep *Endpoint) Pump(wg *sync.WaitGroup, stream Stream, r io.Reader) {
	defer wg.Done()

	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !ep.Push(DataEvent{Stream: stream, Data: chunk}) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Stop deactivates the endpoint and discards anything still queued for it.
// It reports true only on the first call.
func (ep *Endpoint) Stop() bool {
	stopped := false
	ep.stopOnce.Do(func() {
		close(ep.done)
		ep.active.Store(false)
		stopped = true
	})
	return stopped
}
