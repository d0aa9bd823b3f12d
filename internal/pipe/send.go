package pipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/extpipe/internal/observability"
	"github.com/danmuck/extpipe/internal/protocol"
	"github.com/danmuck/extpipe/internal/protocol/frame"
	"github.com/danmuck/extpipe/internal/protocol/session"
)

// SendString writes one control line. It waits for any package exchange in
// flight so the line cannot land between a header and its body.
func (c *Client) SendString(line string) error {
	err := c.sendLine(context.Background(), line)
	if errors.Is(err, protocol.ErrTransport) {
		c.log.Error().Err(err).Msg("send line failed")
		c.teardown(ExitTransport, false)
	}
	return err
}

// SendPackage JSON-encodes payload and sends it as a package of kind.
func (c *Client) SendPackage(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pipe: encode %s payload: %w", kind, err)
	}
	return c.SendRaw(ctx, kind, data)
}

// SendRaw sends already serialized package data. It returns nil only when
// the host acked the header and confirmed the body.
func (c *Client) SendRaw(ctx context.Context, packageID string, data []byte) error {
	if !c.IsConnected() {
		c.setLastMessage("Not connected")
		return ErrNotConnected
	}
	start := time.Now()
	err := c.sendPackage(ctx, packageID, data)
	observability.RecordPackageSent(c.cfg.ClientID, packageID, err == nil, time.Since(start))
	if err != nil {
		c.log.Warn().Err(err).Str("package_id", packageID).Msg("send package failed")
		if errors.Is(err, protocol.ErrTransport) {
			c.teardown(ExitTransport, false)
		}
		return err
	}
	c.log.Debug().Str("package_id", packageID).Int("bytes", len(data)).Msg("package sent")
	return nil
}

func (c *Client) sendLine(ctx context.Context, line string) error {
	if err := c.lock(ctx, c.sendSem); err != nil {
		return err
	}
	defer unlock(c.sendSem)
	return c.writeLine(ctx, line)
}

// sendPackage holds sendSem for the whole exchange but writeMu only per
// write, so the listener can still answer a host package that arrives while
// this send waits for its ack.
func (c *Client) sendPackage(ctx context.Context, packageID string, data []byte) error {
	body, err := frame.Encode(frame.NewEnvelope(packageID, c.cfg.ClientID, data), c.cfg.limits())
	if err != nil {
		c.setLastMessage(err.Error())
		return err
	}
	if err := c.lock(ctx, c.sendSem); err != nil {
		return err
	}
	defer unlock(c.sendSem)

	ack := c.expectReply()
	header := session.FormatPackageHeader(c.cfg.ClientID, packageID, len(body))
	if err := c.write(ctx, "write header", func(w *session.LineWriter) error { return w.WriteLine(header) }); err != nil {
		c.cancelReply(ack)
		c.setLastMessage(lastMessageFor(err))
		return err
	}
	reply, err := c.awaitReply(ctx, ack)
	if err != nil {
		c.setLastMessage(err.Error())
		return err
	}
	if !session.Is(reply, session.KeywordAck) {
		c.setLastMessage(reply)
		return fmt.Errorf("%w: want %q, got %q", protocol.ErrUnexpectedReply, session.KeywordAck, reply)
	}

	confirm := c.expectReply()
	if err := c.write(ctx, "write body", func(w *session.LineWriter) error { return w.WriteRaw(body) }); err != nil {
		c.cancelReply(confirm)
		c.setLastMessage(lastMessageFor(err))
		return err
	}
	reply, err = c.awaitReply(ctx, confirm)
	if err != nil {
		c.setLastMessage(err.Error())
		return err
	}
	if reply != session.ReplyReceived {
		c.setLastMessage(reply)
		return fmt.Errorf("%w: want %q, got %q", protocol.ErrUnexpectedReply, session.ReplyReceived, reply)
	}
	return nil
}

func lastMessageFor(err error) string {
	if errors.Is(err, ErrNotConnected) {
		return "Not connected"
	}
	return err.Error()
}
