package spawn

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

// execFailedMessage is delivered to the sink when the remote rejects the exec request.
const execFailedMessage = "FAILED: couldn't execute command (exec)\n"

// execution is the state of one channel between open and resolution.
type execution struct {
	channel     connector.Channel
	readTimeout *Policy
	sink        Sink
	logger      *zap.Logger

	exitStatus *int
}

// openChannel opens and configures a channel and starts command on it.
// A refused pty is fatal; a refused exec is reported through the sink only.
func openChannel(ctx context.Context, conn connector.Connection, command string, pty bool, readTimeout *Policy, sink Sink, logger *zap.Logger) (*execution, error) {
	ch, err := conn.OpenChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel on %s: %w", conn, err)
	}

	ex := &execution{
		channel:     ch,
		readTimeout: readTimeout,
		sink:        sink,
		logger:      logger,
	}
	ch.Handle(ex.handle)

	if pty {
		if err := ch.RequestPTY(ctx); err != nil {
			ch.Close()
			return nil, &PTYError{Command: command, Err: err}
		}
	}

	readTimeout.Reset()

	if err := ch.Exec(ctx, command); err != nil {
		logger.Debug("exec request rejected", zap.Error(err))
		ex.deliver([]byte(execFailedMessage))
	}

	return ex, nil
}

// handle processes one channel event.
func (ex *execution) handle(ev connector.Event) {
	switch ev := ev.(type) {
	case connector.DataEvent:
		ex.deliver(ev.Data)
		ex.readTimeout.Reset()
	case connector.ExitStatusEvent:
		if ex.exitStatus != nil {
			ex.logger.Debug("ignoring repeated exit status", zap.Int("code", ev.Code))
			return
		}
		code := ev.Code
		ex.exitStatus = &code
	}
}

func (ex *execution) deliver(data []byte) {
	if ex.sink != nil {
		ex.sink(data)
	}
}

func (ex *execution) close() {
	if err := ex.channel.Close(); err != nil {
		ex.logger.Debug("failed to close channel", zap.Error(err))
	}
}
