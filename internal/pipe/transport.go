package pipe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danmuck/extpipe/internal/protocol"
	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/rs/zerolog"
)

// Transport is the duplex byte stream between one extension and the host.
// net.Conn satisfies it.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dialer opens a transport to the named pipe.
type Dialer func(ctx context.Context, name string) (Transport, error)

// dialWithRetry retries dial with exponential backoff until it succeeds,
// ctx ends or cfg.ConnectTimeout elapses.
func dialWithRetry(ctx context.Context, dial Dialer, name string, cfg session.Config, logger zerolog.Logger) (Transport, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	attempt := 0
	op := func() (Transport, error) {
		attempt++
		conn, err := dial(ctx, name)
		if err != nil {
			logger.Debug().Err(err).Int("attempt", attempt).Str("pipe", name).Msg("dial failed")
			return nil, err
		}
		return conn, nil
	}
	b := backoff.WithContext(session.NewBackOff(cfg.Backoff, 0), ctx)
	conn, err := backoff.RetryWithData(op, b)
	if err != nil {
		return nil, fmt.Errorf("%w: pipe=%q attempts=%d: %w", protocol.ErrConnect, name, attempt, err)
	}
	return conn, nil
}
