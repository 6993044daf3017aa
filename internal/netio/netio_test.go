package netio

import (
	"net"
	"testing"
	"time"

	"github.com/miroslavkrysl/bssrv/internal/proto"
)

func TestListenerAcceptAndPeerRoundTrip(t *testing.T) {
	l, err := Listen(net.IPv4(127, 0, 0, 1), 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	poller, err := NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer poller.Close()

	if err := poller.RegisterListener(l.Fd()); err != nil {
		t.Fatalf("RegisterListener: %v", err)
	}

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	events := waitForEvent(t, poller, 2*time.Second)
	if len(events) != 1 || events[0].Kind != Accept || events[0].Token != l.Fd() {
		t.Fatalf("events = %+v, want one Accept(%d)", events, l.Fd())
	}

	peer, err := l.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if peer == nil {
		t.Fatal("Accept returned no peer after Accept readiness")
	}
	defer peer.Close()

	if err := poller.RegisterPeer(peer.Fd()); err != nil {
		t.Fatalf("RegisterPeer: %v", err)
	}

	if _, err := conn.Write([]byte("alive\n")); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}

	events = waitForEvent(t, poller, 2*time.Second)
	if len(events) != 1 || events[0].Kind != Read || events[0].Token != peer.Fd() {
		t.Fatalf("events = %+v, want one Read(%d)", events, peer.Fd())
	}

	messages, perr := peer.DoRead()
	if perr != nil {
		t.Fatalf("DoRead: %v", perr)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if _, ok := messages[0].(proto.Alive); !ok {
		t.Fatalf("message = %#v, want Alive", messages[0])
	}

	peer.AddMessage(proto.AliveOk{})
	if !peer.HasPendingWrites() {
		t.Fatal("expected pending outbound bytes after AddMessage")
	}
	if perr := peer.DoWrite(); perr != nil {
		t.Fatalf("DoWrite: %v", perr)
	}
	if peer.HasPendingWrites() {
		t.Fatal("expected the outbound buffer to drain on a small write")
	}

	reply := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(reply)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if string(reply[:n]) != "alive_ok\n" {
		t.Fatalf("reply = %q, want %q", reply[:n], "alive_ok\n")
	}
}

func TestPeerDoReadReturnsClosedOnEOF(t *testing.T) {
	l, err := Listen(net.IPv4(127, 0, 0, 1), 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	poller, err := NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer poller.Close()
	if err := poller.RegisterListener(l.Fd()); err != nil {
		t.Fatalf("RegisterListener: %v", err)
	}

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	waitForEvent(t, poller, 2*time.Second)
	peer, err := l.Accept()
	if err != nil || peer == nil {
		t.Fatalf("Accept: peer=%v err=%v", peer, err)
	}
	defer peer.Close()

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, perr := peer.DoRead(); perr != nil {
			if perr.Kind != Closed {
				t.Fatalf("error kind = %v, want Closed", perr.Kind)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for EOF to surface as Closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForEvent(t *testing.T, poller *Poller, timeout time.Duration) []PollEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		events, err := poller.Poll(nil, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if len(events) > 0 {
			return events
		}
	}
	t.Fatal("timed out waiting for a readiness event")
	return nil
}
