package pipe

import (
	"errors"
	"fmt"

	"github.com/danmuck/extpipe/internal/protocol"
	"github.com/danmuck/extpipe/internal/protocol/session"
)

// listen is the only reader of conn. It routes control lines, runs inbound
// package handshakes and owns the producer side of both queues.
func (c *Client) listen(conn Transport, r *session.LineReader, done chan struct{}) {
	defer close(done)

	exit, err := c.drain(conn, r)
	c.messages.close()
	c.packages.close()

	switch {
	case exit:
		c.teardown(ExitOK, true)
	case c.State() == StateConnected:
		c.log.Error().Err(err).Msg("listener stopped")
		c.teardown(ExitTransport, true)
	default:
		c.log.Debug().Err(err).Msg("listener stopped")
	}
}

func (c *Client) drain(conn Transport, r *session.LineReader) (exit bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Interface("panic", rec).Msg("listener panic")
			exit, err = false, fmt.Errorf("pipe: listener panic: %v", rec)
		}
	}()

	for {
		line, err := r.ReadLine()
		if errors.Is(err, protocol.ErrLineTooLarge) {
			c.log.Warn().Err(err).Msg("control line dropped")
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: read line: %w", protocol.ErrTransport, err)
		}

		switch session.Classify(line) {
		case session.LineExit, session.LineExitQuiet:
			c.log.Info().Str("line", line).Msg("host requested exit")
			return true, nil
		case session.LinePackage:
			if err := c.receivePackage(conn, r, line); err != nil {
				return false, err
			}
		default:
			c.log.Debug().Str("line", line).Msg("control message")
			c.deliver(line)
		}
	}
}
