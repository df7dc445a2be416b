package peering

import (
	"errors"

	"swarmwire/cmd/swarmwire/wire"
)

var (
	// ErrConnectFailed means the TCP dial did not complete in time.
	ErrConnectFailed = errors.New("peer connect failed")

	// ErrHandshakeRejected means the peer answered the handshake with the
	// wrong protocol name or a different info hash.
	ErrHandshakeRejected = errors.New("peer handshake rejected")
)

// Kind discriminates session events.
type Kind int

const (
	// Connected: handshake validated, session entered its active state.
	Connected Kind = iota
	// MessageReceived: one decoded inbound frame. Keep-alives and frames
	// with unknown tags are consumed silently and never reach this event.
	MessageReceived
	// Closed: terminal. Err carries the cause, nil for an ordered shutdown.
	Closed
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "connected"
	case MessageReceived:
		return "message"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is what a session reports to its coordinator. Events from one
// session arrive in decode order; nothing is ordered across sessions.
type Event struct {
	Addr   string
	Kind   Kind
	PeerID wire.PeerID   // set on Connected
	Msg    *wire.Message // set on MessageReceived
	Err    error         // set on Closed when the session failed
}
