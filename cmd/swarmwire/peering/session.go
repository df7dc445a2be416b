// Package peering owns the TCP lifecycle of a single remote peer: dial,
// handshake validation, inbound frame decoding and the outbound command
// queue. A session never touches another session's state; everything it
// learns goes to the coordinator over its event channel.
package peering

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"swarmwire/cmd/swarmwire/config"
	"swarmwire/cmd/swarmwire/wire"
)

// Session is one peer connection. Lifecycle: Connecting -> Handshaking ->
// Active -> Closed; every terminal path emits exactly one Closed event.
// Send and Close must be called from a single goroutine (the coordinator).
type Session struct {
	Addr string

	infoHash wire.InfoHash
	localID  wire.PeerID
	cfg      config.Config
	log      *zap.Logger

	events   chan<- Event
	commands chan *wire.Message
}

// Start dials the peer and runs the session in its own goroutines. All
// outcomes, including dial failure, are reported as events; Start itself
// never blocks on the network.
func Start(ctx context.Context, addr string, infoHash wire.InfoHash, localID wire.PeerID, cfg config.Config, events chan<- Event) *Session {
	s := &Session{
		Addr:     addr,
		infoHash: infoHash,
		localID:  localID,
		cfg:      cfg,
		log:      zap.L().With(zap.String("peer", addr)),
		events:   events,
		commands: make(chan *wire.Message, cfg.ChannelDepth),
	}
	go s.run(ctx)
	return s
}

// Send enqueues an outbound message. Commands are written in send order.
// Returns false when the queue is full (a stuck peer); dropping a command
// beats wedging the coordinator.
func (s *Session) Send(msg *wire.Message) bool {
	select {
	case s.commands <- msg:
		return true
	default:
		s.log.Warn("Dropping command, queue full", zap.String("message", msg.Name()))
		return false
	}
}

// Close asks the session to finish its in-flight operation and exit. The
// Closed event acknowledges completion.
func (s *Session) Close() {
	close(s.commands)
}

func (s *Session) run(ctx context.Context) {
	// Connecting
	conn, err := net.DialTimeout("tcp", s.Addr, s.cfg.DialTimeout)
	if err != nil {
		s.events <- Event{Addr: s.Addr, Kind: Closed, Err: fmt.Errorf("%v: %w", err, ErrConnectFailed)}
		return
	}

	// Handshaking
	remote, err := s.handshake(conn)
	if err != nil {
		conn.Close()
		s.events <- Event{Addr: s.Addr, Kind: Closed, Err: err}
		return
	}
	s.events <- Event{Addr: s.Addr, Kind: Connected, PeerID: remote}

	// Active. The writer owns outbound frames; closing the command channel
	// or cancelling the context closes the socket, which unblocks the
	// reader and ends the session.
	closing := make(chan struct{})
	go s.writeLoop(ctx, conn, closing)

	err = s.readLoop(conn)
	select {
	case <-closing:
		err = nil // ordered shutdown, the socket error is ours
	default:
	}
	conn.Close()
	s.events <- Event{Addr: s.Addr, Kind: Closed, Err: err}
}

// handshake sends the local handshake, reads the peer's 68 bytes and
// validates protocol name and info hash.
func (s *Session) handshake(conn net.Conn) (wire.PeerID, error) {
	hs := wire.NewHandshake(s.infoHash, s.localID)
	if s.cfg.HandshakeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
		defer conn.SetDeadline(time.Time{})
	}

	if _, err := conn.Write(hs.Encode()); err != nil {
		return wire.PeerID{}, fmt.Errorf("writing handshake: %w", err)
	}

	buf := make([]byte, wire.HandshakeSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.PeerID{}, fmt.Errorf("reading handshake: %w", err)
	}

	remote, err := wire.DecodeHandshake(buf)
	if err != nil {
		return wire.PeerID{}, fmt.Errorf("%v: %w", err, ErrHandshakeRejected)
	}
	if remote.InfoHash != s.infoHash {
		return wire.PeerID{}, fmt.Errorf("info hash %x: %w", remote.InfoHash, ErrHandshakeRejected)
	}
	s.log.Debug("Handshake complete", zap.String("remote_id", fmt.Sprintf("%x", remote.PeerID)))
	return remote.PeerID, nil
}

// readLoop feeds socket reads, at whatever boundaries they arrive, into the
// assembler and emits one event per decoded frame. Returns the error that
// ended the stream (io.EOF for an orderly remote close).
func (s *Session) readLoop(conn net.Conn) error {
	asm := wire.NewAssembler(s.cfg.MaxFrameSize)
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			asm.Feed(buf[:n])
			for {
				msg, ok, ferr := asm.Next()
				if ferr != nil {
					return ferr
				}
				if !ok {
					break
				}
				if msg == nil {
					continue // keep-alive holds the connection open, nothing to report
				}
				if !msg.Known() {
					s.log.Debug("Skipping unknown message", zap.Uint8("tag", msg.ID))
					continue
				}
				s.events <- Event{Addr: s.Addr, Kind: MessageReceived, Msg: msg}
			}
		}
		if err != nil {
			return err
		}
	}
}

// writeLoop drains the command queue onto the socket. An ordered shutdown
// (queue closed or context cancelled) signals `closing` before closing the
// socket, so the reader knows the resulting read error is local. A write
// failure closes the socket without the signal and the reader reports it.
func (s *Session) writeLoop(ctx context.Context, conn net.Conn, closing chan struct{}) {
	for {
		select {
		case msg, ok := <-s.commands:
			if !ok {
				close(closing)
				conn.Close()
				return
			}
			if _, err := conn.Write(msg.Encode()); err != nil {
				s.log.Debug("Write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ctx.Done():
			close(closing)
			conn.Close()
			return
		}
	}
}
