package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/extpipe/internal/auth"
	"github.com/danmuck/extpipe/internal/observability"
	"github.com/danmuck/extpipe/internal/protocol"
	"github.com/danmuck/extpipe/internal/protocol/session"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected = errors.New("pipe: not connected")
	ErrClientClosed = errors.New("pipe: client closed")
)

// Client is one extension's session with the host.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	dial Dialer

	state    atomic.Int32
	exitCode atomic.Int64

	// sendSem admits one caller-side send at a time, held across a whole
	// package exchange. The listener never takes it.
	sendSem chan struct{}
	// writeMu guards the writer for the length of one line or body write.
	writeMu  chan struct{}
	closing  chan struct{}
	finished chan struct{}
	// ready is closed once the host has signalled ready.
	ready chan struct{}

	mu       sync.Mutex
	conn     Transport
	reader   *session.LineReader
	writer   *session.LineWriter
	loopDone chan struct{}
	onClose  []func(exitCode int)

	replyMu sync.Mutex
	pending chan string

	lastMu  sync.Mutex
	lastMsg string

	messages *queue[string]
	packages *queue[Package]
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Session = cfg.Session.WithDefaults()
	dial := cfg.Dial
	if dial == nil {
		dial = DialPipe
	}
	if cfg.Senders == nil {
		cfg.Senders = auth.StaticSender{ID: cfg.Session.TrustedSender}
	}
	return &Client{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("client_id", cfg.ClientID).Logger(),
		dial:     dial,
		sendSem:  make(chan struct{}, 1),
		writeMu:  make(chan struct{}, 1),
		closing:  make(chan struct{}),
		finished: make(chan struct{}),
		ready:    make(chan struct{}),
		messages: newQueue[string](queueCapacity),
		packages: newQueue[Package](queueCapacity),
	}, nil
}

func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports a ready session with live transport handles.
func (c *Client) IsConnected() bool {
	if c.State() != StateConnected {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.reader != nil && c.writer != nil
}

// ExitCode is the code recorded by teardown. It is zero until then.
func (c *Client) ExitCode() int {
	return int(c.exitCode.Load())
}

// LastMessage is the last failure reason observed by a package send.
func (c *Client) LastMessage() string {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastMsg
}

func (c *Client) setLastMessage(msg string) {
	c.lastMu.Lock()
	c.lastMsg = msg
	c.lastMu.Unlock()
}

// OnClose registers fn to run once teardown has closed the transport.
// Observers run on the tearing-down goroutine, which may be the listener;
// they must not wait on Done.
func (c *Client) OnClose(fn func(exitCode int)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Done is closed once teardown has fully completed.
func (c *Client) Done() <-chan struct{} {
	return c.finished
}

// Initialize connects, announces the client id and waits for the host's
// ready line. It is a no-op once connected. A call made while another is
// still connecting waits for that call's outcome.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.State() {
	case StateConnecting:
		c.mu.Unlock()
		return c.waitReady(ctx)
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.state.Store(int32(StateConnecting))
	c.mu.Unlock()

	c.log.Info().Str("pipe", c.cfg.PipeName).Msg("connecting to host")
	conn, err := dialWithRetry(ctx, c.dial, c.cfg.PipeName, c.cfg.Session, c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("connect failed")
		c.teardown(ExitNotReady, false)
		return err
	}

	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.reader = session.NewLineReader(conn, c.cfg.Session.MaxLineBytes)
	c.writer = session.NewLineWriter(conn)
	c.mu.Unlock()

	if err := sleepCtx(ctx, c.cfg.Session.SettleDelay); err != nil {
		c.teardown(ExitNotReady, false)
		return err
	}

	ready := c.expectReply()
	if err := c.writeLine(ctx, c.cfg.ClientID); err != nil {
		c.cancelReply(ready)
		c.log.Error().Err(err).Msg("send client id failed")
		c.teardown(ExitNotReady, false)
		return fmt.Errorf("%w: %w", protocol.ErrNotReady, err)
	}
	if err := c.startListener(); err != nil {
		c.cancelReply(ready)
		c.teardown(ExitNotReady, false)
		return err
	}

	line, err := c.awaitReply(ctx, ready)
	if err != nil {
		c.log.Error().Err(err).Msg("host did not signal ready")
		c.teardown(ExitNotReady, false)
		return fmt.Errorf("%w: %w", protocol.ErrNotReady, err)
	}
	if !session.Is(line, session.KeywordReady) {
		c.log.Error().Str("line", line).Msg("host not ready")
		c.teardown(ExitNotReady, false)
		return fmt.Errorf("%w: got %q", protocol.ErrNotReady, line)
	}
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		return ErrClientClosed
	}
	close(c.ready)
	c.log.Info().Msg("host ready")
	return nil
}

func (c *Client) waitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	default:
	}
	select {
	case <-c.ready:
		return nil
	case <-c.closing:
		select {
		case <-c.ready:
			return nil
		default:
		}
		return fmt.Errorf("%w: %w", protocol.ErrNotReady, ErrClientClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears the session down and records code. Later calls are no-ops.
func (c *Client) Stop(code int) {
	c.teardown(code, false)
}

// Close stops the session with ExitOK.
func (c *Client) Close() error {
	c.Stop(ExitOK)
	return nil
}

// Messages exposes the control message queue for select loops. The channel
// is closed once the listener has stopped and the queue is drained.
func (c *Client) Messages() <-chan string {
	return c.messages.out()
}

// Packages exposes the inbound package queue.
func (c *Client) Packages() <-chan Package {
	return c.packages.out()
}

// ReceiveMessage blocks for the next control message.
func (c *Client) ReceiveMessage(ctx context.Context) (string, error) {
	return c.messages.pop(ctx)
}

func (c *Client) TryMessage() (string, bool) {
	return c.messages.tryPop()
}

// ReceivePackage blocks for the next inbound package.
func (c *Client) ReceivePackage(ctx context.Context) (Package, error) {
	return c.packages.pop(ctx)
}

func (c *Client) TryPackage() (Package, bool) {
	return c.packages.tryPop()
}

func (c *Client) startListener() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.State() == StateClosed {
		return ErrClientClosed
	}
	done := make(chan struct{})
	c.loopDone = done
	go c.listen(c.conn, c.reader, done)
	return nil
}

// teardown runs once per client. fromLoop marks calls made by the listener,
// which must not wait for itself.
func (c *Client) teardown(code int, fromLoop bool) {
	c.mu.Lock()
	prev := State(c.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		c.mu.Unlock()
		return
	}
	close(c.closing)
	conn, writer, done := c.conn, c.writer, c.loopDone
	c.conn, c.reader, c.writer = nil, nil, nil
	observers := append([]func(int){}, c.onClose...)
	c.mu.Unlock()
	defer close(c.finished)

	if prev == StateDisconnected {
		c.messages.close()
		c.packages.close()
		return
	}

	c.exitCode.Store(int64(code))
	if writer != nil {
		c.writeStop(conn, writer, code)
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close transport")
		}
	}
	if done == nil {
		c.messages.close()
		c.packages.close()
	}
	for _, fn := range observers {
		fn(code)
	}
	if done != nil && !fromLoop {
		<-done
	}
	observability.RecordSessionClosed(c.cfg.ClientID, code)
	c.log.Info().Int("exit_code", code).Msg("disconnected")
}

// writeStop sends the farewell line without waiting behind a stuck write
// or a peer that stopped reading.
func (c *Client) writeStop(conn Transport, w *session.LineWriter, code int) {
	timeout := c.cfg.Session.StopWriteTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.writeMu <- struct{}{}:
	case <-timer.C:
		c.log.Warn().Msg("stop line skipped: write in flight")
		return
	}
	defer unlock(c.writeMu)

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := w.WriteLine(session.FormatStop(c.cfg.ClientID, code)); err != nil {
		c.log.Debug().Err(err).Msg("stop line not delivered")
	}
}

// lock takes sem unless the client is closing or ctx ends first.
func (c *Client) lock(ctx context.Context, sem chan struct{}) error {
	select {
	case <-c.closing:
		return ErrClientClosed
	default:
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-c.closing:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unlock(sem chan struct{}) {
	<-sem
}

func (c *Client) currentWriter() *session.LineWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer
}

func (c *Client) listenerDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopDone
}

// write runs fn against the current writer under writeMu. Listener replies
// come through here and so never wait on a caller's package exchange.
func (c *Client) write(ctx context.Context, what string, fn func(*session.LineWriter) error) error {
	if err := c.lock(ctx, c.writeMu); err != nil {
		return err
	}
	defer unlock(c.writeMu)
	w := c.currentWriter()
	if w == nil {
		return ErrNotConnected
	}
	if err := fn(w); err != nil {
		return fmt.Errorf("%w: %s: %w", protocol.ErrTransport, what, err)
	}
	return nil
}

func (c *Client) writeLine(ctx context.Context, line string) error {
	return c.write(ctx, "write line", func(w *session.LineWriter) error {
		return w.WriteLine(line)
	})
}

// expectReply routes the next non-package control line to the returned
// channel instead of the message queue. Callers hold sendSem.
func (c *Client) expectReply() chan string {
	ch := make(chan string, 1)
	c.replyMu.Lock()
	c.pending = ch
	c.replyMu.Unlock()
	return ch
}

func (c *Client) cancelReply(ch chan string) {
	c.replyMu.Lock()
	if c.pending == ch {
		c.pending = nil
	}
	c.replyMu.Unlock()
}

// deliver hands line to a waiting reply or queues it.
func (c *Client) deliver(line string) {
	c.replyMu.Lock()
	ch := c.pending
	c.pending = nil
	c.replyMu.Unlock()
	if ch != nil {
		ch <- line
		return
	}
	c.messages.push(line)
	observability.RecordMessage(c.cfg.ClientID)
}

func (c *Client) awaitReply(ctx context.Context, ch chan string) (string, error) {
	if d := c.cfg.Session.ReplyTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	select {
	case line := <-ch:
		return line, nil
	case <-c.closing:
		c.cancelReply(ch)
		return "", ErrClientClosed
	case <-c.listenerDone():
		c.cancelReply(ch)
		select {
		case line := <-ch:
			return line, nil
		default:
		}
		return "", fmt.Errorf("%w: listener stopped", protocol.ErrTransport)
	case <-ctx.Done():
		c.cancelReply(ch)
		return "", ctx.Err()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
