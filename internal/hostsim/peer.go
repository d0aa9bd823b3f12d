// Package hostsim plays the host side of the extension pipe. Tests drive it
// directly; cmd/hostsim serves it on a real pipe.
package hostsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/extpipe/internal/protocol/frame"
	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 2 * time.Second

var ErrUnexpectedLine = errors.New("hostsim: unexpected line")

// Peer is one accepted extension connection.
type Peer struct {
	conn    net.Conn
	r       *session.LineReader
	w       *session.LineWriter
	log     zerolog.Logger
	timeout time.Duration

	// ClientID is set by Handshake.
	ClientID string
}

func NewPeer(conn net.Conn, logger zerolog.Logger) *Peer {
	return &Peer{
		conn:    conn,
		r:       session.NewLineReader(conn, 0),
		w:       session.NewLineWriter(conn),
		log:     logger,
		timeout: DefaultTimeout,
	}
}

// SetTimeout bounds each read and write. Zero disables deadlines.
func (p *Peer) SetTimeout(d time.Duration) {
	p.timeout = d
}

func (p *Peer) deadline() time.Time {
	if p.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(p.timeout)
}

func (p *Peer) ReadLine() (string, error) {
	_ = p.conn.SetReadDeadline(p.deadline())
	line, err := p.r.ReadLine()
	if err != nil {
		return "", err
	}
	p.log.Debug().Str("line", line).Msg("peer <-")
	return line, nil
}

// Expect reads one line and requires it to equal want.
func (p *Peer) Expect(want string) error {
	line, err := p.ReadLine()
	if err != nil {
		return err
	}
	if line != want {
		return fmt.Errorf("%w: want %q, got %q", ErrUnexpectedLine, want, line)
	}
	return nil
}

func (p *Peer) WriteLine(line string) error {
	_ = p.conn.SetWriteDeadline(p.deadline())
	p.log.Debug().Str("line", line).Msg("peer ->")
	return p.w.WriteLine(line)
}

func (p *Peer) WriteRaw(b []byte) error {
	_ = p.conn.SetWriteDeadline(p.deadline())
	return p.w.WriteRaw(b)
}

func (p *Peer) ReadRaw(n int) ([]byte, error) {
	_ = p.conn.SetReadDeadline(p.deadline())
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Handshake reads the client id line and answers Server:READY.
func (p *Peer) Handshake() (string, error) {
	id, err := p.ReadLine()
	if err != nil {
		return "", fmt.Errorf("hostsim: read client id: %w", err)
	}
	p.ClientID = id
	if err := p.WriteLine(session.KeywordReady); err != nil {
		return "", err
	}
	return id, nil
}

// PushPackage sends data as a host package and runs the full handshake.
func (p *Peer) PushPackage(packageID string, data []byte) error {
	body, err := frame.Encode(frame.NewEnvelope(packageID, session.TrustedSender, data), frame.DefaultLimits())
	if err != nil {
		return err
	}
	return p.PushRaw(session.TrustedSender, packageID, body)
}

// PushRaw runs the host->client handshake with a preformed body.
func (p *Peer) PushRaw(senderID, packageID string, body []byte) error {
	if err := p.WriteLine(fmt.Sprintf("package %s,%s,%d", senderID, packageID, len(body))); err != nil {
		return err
	}
	if err := p.Expect(session.ReplyAck); err != nil {
		return err
	}
	if err := p.Expect(session.ReplySendData); err != nil {
		return err
	}
	if err := p.WriteRaw(body); err != nil {
		return err
	}
	return p.Expect(session.ReplyReceived)
}

// AcceptPackage answers one client package handshake and returns the
// decoded envelope.
func (p *Peer) AcceptPackage() (frame.Envelope, error) {
	hdr, err := p.ReadPackageHeader()
	if err != nil {
		return frame.Envelope{}, err
	}
	return p.AcceptBody(hdr)
}

// AcceptBody finishes a client handshake whose header was already read.
func (p *Peer) AcceptBody(hdr session.PackageHeader) (frame.Envelope, error) {
	if err := p.WriteLine(session.KeywordAck); err != nil {
		return frame.Envelope{}, err
	}
	body, err := p.ReadRaw(hdr.Size)
	if err != nil {
		return frame.Envelope{}, err
	}
	if err := p.WriteLine(session.ReplyReceived); err != nil {
		return frame.Envelope{}, err
	}
	return frame.Decode(body, frame.DefaultLimits())
}

// ReadPackageHeader reads one client `Package <client>,<id>,<size>` line.
func (p *Peer) ReadPackageHeader() (session.PackageHeader, error) {
	line, err := p.ReadLine()
	if err != nil {
		return session.PackageHeader{}, err
	}
	return session.ParsePackageHeader(line)
}

// ReadStop reads the teardown line and returns its exit code.
func (p *Peer) ReadStop() (int, error) {
	line, err := p.ReadLine()
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "STOP:" {
		return 0, fmt.Errorf("%w: want stop line, got %q", ErrUnexpectedLine, line)
	}
	return strconv.Atoi(fields[2])
}

func (p *Peer) Exit() error {
	return p.WriteLine(session.KeywordExit)
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

// HandlerFunc drives one accepted peer.
type HandlerFunc func(ctx context.Context, p *Peer) error

// Serve accepts peers on ln until ctx ends and runs handle for each.
func Serve(ctx context.Context, ln net.Listener, logger zerolog.Logger, handle HandlerFunc) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			peer := NewPeer(conn, logger.With().Str("remote", conn.RemoteAddr().String()).Logger())
			peer.SetTimeout(0)
			defer peer.Close()
			if err := handle(ctx, peer); err != nil && !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("peer session ended")
			}
		}()
	}
}
