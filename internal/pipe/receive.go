package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/extpipe/internal/observability"
	"github.com/danmuck/extpipe/internal/protocol"
	"github.com/danmuck/extpipe/internal/protocol/frame"
	"github.com/danmuck/extpipe/internal/protocol/session"
)

// receivePackage runs the inbound handshake for one header line. Protocol
// violations are logged and answered where the host expects an answer; only
// transport failures are returned.
func (c *Client) receivePackage(conn Transport, r io.Reader, line string) error {
	hdr, err := session.ParsePackageHeader(line)
	if err == nil && hdr.Size > c.cfg.Session.MaxPackageBytes {
		err = fmt.Errorf("%w: %d exceeds %d", protocol.ErrInvalidSize, hdr.Size, c.cfg.Session.MaxPackageBytes)
	}
	switch {
	case errors.Is(err, protocol.ErrInvalidSize):
		c.log.Warn().Err(err).Str("header", line).Msg("package rejected")
		observability.RecordPackageReceived(c.cfg.ClientID, observability.ReceiveInvalidSize)
		return c.reply(session.ReplyInvalidSize)
	case err != nil:
		c.log.Warn().Err(err).Str("header", line).Msg("package header ignored; want package <sender>,<packageId>,<size>")
		observability.RecordPackageReceived(c.cfg.ClientID, observability.ReceiveMalformed)
		return nil
	}
	if err := c.cfg.Senders.ValidateSender(hdr.SenderID); err != nil {
		c.log.Warn().Err(err).Str("sender_id", hdr.SenderID).Msg("package rejected")
		observability.RecordPackageReceived(c.cfg.ClientID, observability.ReceiveUntrusted)
		return nil
	}

	if err := c.reply(session.ReplyAck); err != nil {
		return err
	}
	if err := c.reply(session.ReplySendData); err != nil {
		return err
	}

	body, n, readErr := c.receiveBytes(conn, r, hdr.Size)
	if n != hdr.Size {
		c.log.Warn().
			Err(fmt.Errorf("%w: %w", protocol.ErrIncompleteTransfer, readErr)).
			Str("package_id", hdr.PackageID).
			Int("want", hdr.Size).
			Int("got", n).
			Msg("package incomplete")
		observability.RecordPackageReceived(c.cfg.ClientID, observability.ReceiveIncomplete)
		return c.reply(session.ReplyIncomplete)
	}
	if err := c.reply(session.ReplyReceived); err != nil {
		return err
	}

	env, err := frame.Decode(body, c.cfg.limits())
	if err != nil {
		c.log.Warn().Err(err).Str("package_id", hdr.PackageID).Msg("package undecodable")
		observability.RecordPackageReceived(c.cfg.ClientID, observability.ReceiveUndecodable)
		return nil
	}
	c.packages.push(Package{
		PackageID: env.PackageID,
		SenderID:  env.ClientID,
		Size:      env.PackageSize,
		Data:      env.PackageData,
	})
	observability.RecordPackageReceived(c.cfg.ClientID, observability.ReceiveAccepted)
	c.log.Debug().Str("package_id", env.PackageID).Int("size", hdr.Size).Msg("package received")
	return nil
}

// receiveBytes reads size payload bytes within ReceiveTimeout of the call.
// On timeout or peer close it returns the short count.
func (c *Client) receiveBytes(conn Transport, r io.Reader, size int) ([]byte, int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReceiveTimeout)); err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			c.log.Debug().Err(err).Msg("clear read deadline")
		}
	}()
	return frame.ReadPayload(r, size, c.cfg.limits())
}

func (c *Client) reply(line string) error {
	return c.writeLine(context.Background(), line)
}
