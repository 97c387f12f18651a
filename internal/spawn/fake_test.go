package spawn

import (
	"context"
	"time"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeChannel struct {
	handler func(connector.Event)
	active  bool
	ptyErr  error
	execErr error

	ptyRequested bool
	execCommands []string
	closed       bool
}

func (c *fakeChannel) RequestPTY(ctx context.Context) error {
	c.ptyRequested = true
	return c.ptyErr
}

func (c *fakeChannel) Exec(ctx context.Context, command string) error {
	c.execCommands = append(c.execCommands, command)
	return c.execErr
}

func (c *fakeChannel) Handle(fn func(connector.Event)) { c.handler = fn }

func (c *fakeChannel) Active() bool { return c.active }

func (c *fakeChannel) Close() error {
	c.closed = true
	c.active = false
	return nil
}

// fakeConn delivers one batch of events per ServiceOnce and advances the clock by step.
// A nil event closes the channel.
type fakeConn struct {
	ch    *fakeChannel
	clock *fakeClock
	step  time.Duration
	ticks [][]connector.Event

	// serviceErr is returned once the scripted ticks are exhausted.
	serviceErr error
	openErr    error
	calls      int
}

func newFakeConn(clock *fakeClock, step time.Duration, ticks ...[]connector.Event) *fakeConn {
	return &fakeConn{
		ch:    &fakeChannel{active: true},
		clock: clock,
		step:  step,
		ticks: ticks,
	}
}

func (c *fakeConn) OpenChannel(ctx context.Context) (connector.Channel, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.ch, nil
}

func (c *fakeConn) ServiceOnce(ctx context.Context, maxWait time.Duration) error {
	i := c.calls
	c.calls++
	c.clock.Advance(c.step)

	if i >= len(c.ticks) {
		return c.serviceErr
	}
	for _, ev := range c.ticks[i] {
		if ev == nil {
			c.ch.active = false
			continue
		}
		c.ch.handler(ev)
	}
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) String() string { return "fake://test" }

func stdout(s string) connector.Event {
	return connector.DataEvent{Stream: connector.StreamStdout, Data: []byte(s)}
}

func stderr(s string) connector.Event {
	return connector.DataEvent{Stream: connector.StreamStderr, Data: []byte(s)}
}

func exitStatus(code int) connector.Event {
	return connector.ExitStatusEvent{Code: code}
}

func tick(events ...connector.Event) []connector.Event {
	return events
}
