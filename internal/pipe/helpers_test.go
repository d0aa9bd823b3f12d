package pipe

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/extpipe/internal/hostsim"
	"github.com/danmuck/extpipe/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

const waitTimeout = 2 * time.Second

func testConfig(log zerolog.Logger, dial Dialer) Config {
	cfg := DefaultConfig()
	cfg.PipeName = "extpipe-test"
	cfg.ClientID = "ext.test"
	cfg.Logger = log
	cfg.Dial = dial
	cfg.Session.SettleDelay = 0
	cfg.Session.ConnectTimeout = time.Second
	cfg.Session.ReceiveTimeout = 200 * time.Millisecond
	cfg.Session.StopWriteTimeout = 200 * time.Millisecond
	cfg.Session.Backoff.InitialDelay = 10 * time.Millisecond
	cfg.Session.Backoff.MaxDelay = 20 * time.Millisecond
	cfg.Session.Backoff.Jitter = false
	return cfg
}

// memDialer hands the client one end of an in-memory pipe and publishes the
// host end as a peer.
func memDialer(t *testing.T, log zerolog.Logger) (Dialer, <-chan *hostsim.Peer, *atomic.Int32) {
	t.Helper()
	peers := make(chan *hostsim.Peer, 4)
	var dials atomic.Int32
	dial := func(ctx context.Context, name string) (Transport, error) {
		dials.Add(1)
		host, ext := net.Pipe()
		t.Cleanup(func() { _ = host.Close() })
		peers <- hostsim.NewPeer(host, log)
		return ext, nil
	}
	return dial, peers, &dials
}

func newClient(t *testing.T, mutate func(*Config)) (*Client, <-chan *hostsim.Peer) {
	t.Helper()
	log := testlog.Start(t)
	dial, peers, _ := memDialer(t, log)
	cfg := testConfig(log, dial)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		waitDone(t, c)
	})
	return c, peers
}

// connect returns a client that completed the ready handshake.
func connect(t *testing.T, mutate func(*Config)) (*Client, *hostsim.Peer) {
	t.Helper()
	c, peers := newClient(t, mutate)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Initialize(context.Background()) }()

	peer := recvPeer(t, peers)
	if id, err := peer.Handshake(); err != nil || id != c.ClientID() {
		t.Fatalf("handshake id=%q err=%v", id, err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return c, peer
}

func recvPeer(t *testing.T, peers <-chan *hostsim.Peer) *hostsim.Peer {
	t.Helper()
	select {
	case p := <-peers:
		return p
	case <-time.After(waitTimeout):
		t.Fatalf("client never dialed")
		return nil
	}
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("client teardown did not finish")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recvMessage(t *testing.T, c *Client) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	msg, err := c.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive message: %v", err)
	}
	return msg
}
