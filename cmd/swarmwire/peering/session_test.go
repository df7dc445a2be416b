package peering

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"swarmwire/cmd/swarmwire/config"
	"swarmwire/cmd/swarmwire/wire"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DialTimeout = 500 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	return cfg
}

func testHash() wire.InfoHash {
	var h wire.InfoHash
	copy(h[:], "aaaaaaaaaaaaaaaaaaaa")
	return h
}

func remoteID() wire.PeerID {
	var id wire.PeerID
	copy(id[:], "-RM0001-remoteremote")
	return id
}

// startFakePeer listens on loopback and runs handler on the first accepted
// connection. Returns the address to dial.
func startFakePeer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	return ln.Addr().String()
}

// answerHandshake consumes the client handshake and replies with one carrying
// the given hash.
func answerHandshake(t *testing.T, conn net.Conn, hash wire.InfoHash) {
	t.Helper()
	buf := make([]byte, wire.HandshakeSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Errorf("fake peer reading handshake: %v", err)
		return
	}
	conn.Write(wire.NewHandshake(hash, remoteID()).Encode())
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSessionHandshakeAndMessages(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		answerHandshake(t, conn, testHash())
		conn.Write((*wire.Message)(nil).Encode()) // keep-alive: no event
		conn.Write(wire.NewHave(3).Encode())
		conn.Write(wire.NewUnchoke().Encode())
	})

	events := make(chan Event, 16)
	Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	ev := waitEvent(t, events)
	if ev.Kind != Connected {
		t.Fatalf("first event = %v, want connected", ev.Kind)
	}
	if ev.PeerID != remoteID() {
		t.Errorf("remote id = %x", ev.PeerID)
	}

	ev = waitEvent(t, events)
	if ev.Kind != MessageReceived || ev.Msg.ID != wire.MsgHave {
		t.Fatalf("second event = %+v, want have message (keep-alive must not surface)", ev)
	}
	ev = waitEvent(t, events)
	if ev.Kind != MessageReceived || ev.Msg.ID != wire.MsgUnchoke {
		t.Fatalf("third event = %+v, want unchoke", ev)
	}

	ev = waitEvent(t, events)
	if ev.Kind != Closed {
		t.Fatalf("final event = %v, want closed", ev.Kind)
	}
}

func TestSessionRejectsWrongInfoHash(t *testing.T) {
	var other wire.InfoHash
	copy(other[:], "bbbbbbbbbbbbbbbbbbbb")

	addr := startFakePeer(t, func(conn net.Conn) {
		answerHandshake(t, conn, other)
	})

	events := make(chan Event, 16)
	Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	ev := waitEvent(t, events)
	if ev.Kind != Closed {
		t.Fatalf("event = %v, want closed (never active)", ev.Kind)
	}
	if !errors.Is(ev.Err, ErrHandshakeRejected) {
		t.Errorf("err = %v, want ErrHandshakeRejected", ev.Err)
	}
}

func TestSessionRejectsWrongProtocolName(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		buf := make([]byte, wire.HandshakeSize)
		io.ReadFull(conn, buf)
		bad := wire.NewHandshake(testHash(), remoteID()).Encode()
		bad[1] = 'x'
		conn.Write(bad)
	})

	events := make(chan Event, 16)
	Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	ev := waitEvent(t, events)
	if ev.Kind != Closed || !errors.Is(ev.Err, ErrHandshakeRejected) {
		t.Errorf("event = %+v, want closed with ErrHandshakeRejected", ev)
	}
}

func TestSessionConnectFailed(t *testing.T) {
	// grab a port nothing listens on
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	events := make(chan Event, 16)
	Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	ev := waitEvent(t, events)
	if ev.Kind != Closed || !errors.Is(ev.Err, ErrConnectFailed) {
		t.Errorf("event = %+v, want closed with ErrConnectFailed", ev)
	}
}

func TestSessionWritesCommands(t *testing.T) {
	got := make(chan []byte, 1)
	addr := startFakePeer(t, func(conn net.Conn) {
		answerHandshake(t, conn, testHash())
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.Errorf("fake peer reading command: %v", err)
			return
		}
		got <- buf
		io.Copy(io.Discard, conn) // stay open until the client closes
	})

	events := make(chan Event, 16)
	s := Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	if ev := waitEvent(t, events); ev.Kind != Connected {
		t.Fatalf("event = %v, want connected", ev.Kind)
	}
	if !s.Send(wire.NewInterested()) {
		t.Fatal("Send should accept the command")
	}

	select {
	case frame := <-got:
		want := wire.NewInterested().Encode()
		if string(frame) != string(want) {
			t.Errorf("frame = %v, want %v", frame, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("fake peer never received the command")
	}

	s.Close()
	if ev := waitEvent(t, events); ev.Kind != Closed || ev.Err != nil {
		t.Errorf("event = %+v, want clean close", ev)
	}
}

func TestSessionSkipsUnknownTags(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		answerHandshake(t, conn, testHash())
		unknown := &wire.Message{ID: 42, Payload: []byte{1, 2, 3}}
		conn.Write(unknown.Encode())
		conn.Write(wire.NewHave(1).Encode())
	})

	events := make(chan Event, 16)
	Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	if ev := waitEvent(t, events); ev.Kind != Connected {
		t.Fatalf("event = %v, want connected", ev.Kind)
	}
	// unknown tag consumed, stream stays aligned: next event is the have
	ev := waitEvent(t, events)
	if ev.Kind != MessageReceived || ev.Msg.ID != wire.MsgHave {
		t.Fatalf("event = %+v, want have after skipped unknown tag", ev)
	}
}

func TestSessionOversizedFrameClosesConnection(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		answerHandshake(t, conn, testHash())
		conn.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // absurd declared length
		// hold the connection open so the close comes from our side
		time.Sleep(2 * time.Second)
	})

	events := make(chan Event, 16)
	Start(context.Background(), addr, testHash(), NewPeerID("-SW0001-"), testConfig(), events)

	if ev := waitEvent(t, events); ev.Kind != Connected {
		t.Fatalf("event = %v, want connected", ev.Kind)
	}
	ev := waitEvent(t, events)
	if ev.Kind != Closed || !errors.Is(ev.Err, wire.ErrOversizedFrame) {
		t.Errorf("event = %+v, want closed with ErrOversizedFrame", ev)
	}
}
