package pipe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/extpipe/internal/auth"
	"github.com/danmuck/extpipe/internal/hostsim"
	"github.com/danmuck/extpipe/internal/protocol/session"
)

// assertNoReply proves the client wrote nothing since the last line the
// peer read: the next line must be the probe.
func assertNoReply(t *testing.T, c *Client, peer *hostsim.Peer) {
	t.Helper()
	if err := peer.WriteLine("marker"); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if got := recvMessage(t, c); got != "marker" {
		t.Fatalf("unexpected message %q", got)
	}
	go func() { _ = c.SendString("probe") }()
	if err := peer.Expect("probe"); err != nil {
		t.Fatalf("client replied: %v", err)
	}
}

func TestReceivePackageScenario(t *testing.T) {
	c, peer := connect(t, nil)
	body := []byte(`{"PackageId":"4"}`)
	if err := peer.PushRaw(session.TrustedSender, "42", body); err != nil {
		t.Fatalf("push: %v", err)
	}

	var pkg Package
	eventually(t, "package", func() bool {
		var ok bool
		pkg, ok = c.TryPackage()
		return ok
	})
	if pkg.PackageID != "4" || pkg.Size != 0 {
		t.Fatalf("unexpected package: %+v", pkg)
	}
	time.Sleep(20 * time.Millisecond)
	if extra, ok := c.TryPackage(); ok {
		t.Fatalf("package delivered twice: %+v", extra)
	}
}

func TestReceivePackageDecode(t *testing.T) {
	c, peer := connect(t, nil)
	if err := peer.PushPackage("command", []byte(`{"CommandId":"ext.hello","CommandArgs":["world"]}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	pkg, err := c.ReceivePackage(ctx)
	if err != nil {
		t.Fatalf("receive package: %v", err)
	}
	if pkg.PackageID != "command" || pkg.SenderID != session.TrustedSender {
		t.Fatalf("unexpected package: %+v", pkg)
	}
	var cmd struct {
		CommandId   string
		CommandArgs []string
	}
	if err := pkg.Decode(&cmd); err != nil || cmd.CommandId != "ext.hello" || cmd.CommandArgs[0] != "world" {
		t.Fatalf("decode=%+v err=%v", cmd, err)
	}
}

func TestReceiveRejectsInvalidSize(t *testing.T) {
	c, peer := connect(t, func(cfg *Config) { cfg.Session.MaxPackageBytes = 1024 })
	for _, size := range []string{"0", "-3", "ten", "2048"} {
		if err := peer.WriteLine(fmt.Sprintf("package %s,1,%s", session.TrustedSender, size)); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if err := peer.Expect(session.ReplyInvalidSize); err != nil {
			t.Fatalf("size %s: %v", size, err)
		}
	}
	assertNoReply(t, c, peer)
	if pkg, ok := c.TryPackage(); ok {
		t.Fatalf("invalid package enqueued: %+v", pkg)
	}
}

func TestReceiveIgnoresUntrustedSender(t *testing.T) {
	c, peer := connect(t, nil)
	if err := peer.WriteLine("package ext.other,1,5"); err != nil {
		t.Fatalf("write header: %v", err)
	}
	assertNoReply(t, c, peer)
	if pkg, ok := c.TryPackage(); ok {
		t.Fatalf("untrusted package enqueued: %+v", pkg)
	}
}

func TestReceiveIgnoresMalformedHeader(t *testing.T) {
	c, peer := connect(t, nil)
	for _, line := range []string{"package", "package AS:SERVER,1", "Package AS:SERVER,1,2,3"} {
		if err := peer.WriteLine(line); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	assertNoReply(t, c, peer)
	if !c.IsConnected() {
		t.Fatalf("session dropped on malformed header")
	}
}

func TestReceiveIncompletePayload(t *testing.T) {
	c, peer := connect(t, func(cfg *Config) { cfg.Session.ReceiveTimeout = 50 * time.Millisecond })
	if err := peer.WriteLine("package AS:SERVER,7,64"); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, want := range []string{session.ReplyAck, session.ReplySendData} {
		if err := peer.Expect(want); err != nil {
			t.Fatalf("expect %q: %v", want, err)
		}
	}
	if err := peer.WriteRaw([]byte(`{"Package`)); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	if err := peer.Expect(session.ReplyIncomplete); err != nil {
		t.Fatalf("expect incomplete: %v", err)
	}
	if pkg, ok := c.TryPackage(); ok {
		t.Fatalf("partial package enqueued: %+v", pkg)
	}
	if !c.IsConnected() {
		t.Fatalf("session dropped on incomplete payload")
	}
	if err := peer.WriteLine("still here"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := recvMessage(t, c); got != "still here" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestReceiveUndecodablePayloadIsConfirmedButDropped(t *testing.T) {
	c, peer := connect(t, nil)
	if err := peer.PushRaw(session.TrustedSender, "bad", []byte("not json")); err != nil {
		t.Fatalf("push: %v", err)
	}
	assertNoReply(t, c, peer)
	if pkg, ok := c.TryPackage(); ok {
		t.Fatalf("undecodable package enqueued: %+v", pkg)
	}
}

func TestMessagesDrainThenReportClosed(t *testing.T) {
	c, peer := connect(t, nil)
	for _, line := range []string{"one", "two", "exit"} {
		if err := peer.WriteLine(line); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	if _, err := peer.ReadStop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitDone(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for _, want := range []string{"one", "two"} {
		got, err := c.ReceiveMessage(ctx)
		if err != nil || got != want {
			t.Fatalf("got=%q err=%v want %q", got, err, want)
		}
	}
	if _, err := c.ReceiveMessage(ctx); err != ErrClientClosed {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestReceiveMessageHonorsContext(t *testing.T) {
	c, _ := connect(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.ReceiveMessage(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline, got %v", err)
	}
	if _, ok := c.TryMessage(); ok {
		t.Fatalf("unexpected message")
	}
}

func TestReceiveHonorsSenderPolicy(t *testing.T) {
	c, peer := connect(t, func(cfg *Config) {
		cfg.Senders = auth.AnySender{
			auth.StaticSender{ID: session.TrustedSender},
			auth.StaticSender{ID: "AS:DEBUGGER"},
		}
	})
	if err := peer.PushRaw("AS:DEBUGGER", "dbg", []byte(`{"PackageId":"dbg"}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	pkg, err := c.ReceivePackage(ctx)
	if err != nil || pkg.PackageID != "dbg" {
		t.Fatalf("pkg=%+v err=%v", pkg, err)
	}
}
