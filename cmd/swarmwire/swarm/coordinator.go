// Package swarm coordinates the set of active peer sessions. The coordinator
// goroutine is the only writer of the per-peer state map; sessions reach it
// exclusively through the shared event channel, and external callers through
// request channels served by the same loop. No locks, no shared references.
package swarm

import (
	"context"

	"go.uber.org/zap"

	"swarmwire/cmd/swarmwire/config"
	"swarmwire/cmd/swarmwire/peering"
	"swarmwire/cmd/swarmwire/wire"
)

// PeerState is the coordinator's view of one peer. Initial values per the
// peer-wire protocol: both sides choking, neither interested, nothing
// available.
type PeerState struct {
	Addr           string
	PeerID         wire.PeerID
	AmChoking      bool
	PeerChoking    bool
	AmInterested   bool
	PeerInterested bool
	Availability   *wire.Bitfield
}

// Transfer is a data-plane message surfaced to the piece-selection/storage
// collaborator: request, piece, cancel and port are not acted on here.
type Transfer struct {
	Addr string
	Msg  *wire.Message
}

type peerEntry struct {
	session *peering.Session
	state   *PeerState
	closed  bool // command channel closed, awaiting the session's ack
}

type commandReq struct {
	addr string
	msg  *wire.Message
}

type availReq struct {
	addr  string
	reply chan *wire.Bitfield
}

// Coordinator owns all peer sessions for one content hash.
type Coordinator struct {
	infoHash wire.InfoHash
	localID  wire.PeerID
	cfg      config.Config
	log      *zap.Logger

	// want marks the pieces the local side still needs; it drives the
	// interest policy.
	want *wire.Bitfield

	events   chan peering.Event
	addPeers chan []wire.PeerAddress
	commands chan commandReq
	avails   chan availReq

	// Transfers delivers surfaced data-plane traffic to the collaborator.
	Transfers chan Transfer

	entries map[string]*peerEntry
}

func New(infoHash wire.InfoHash, localID wire.PeerID, want *wire.Bitfield, cfg config.Config) *Coordinator {
	return &Coordinator{
		infoHash:  infoHash,
		localID:   localID,
		cfg:       cfg,
		log:       zap.L().Named("swarm"),
		want:      want,
		events:    make(chan peering.Event, cfg.ChannelDepth),
		addPeers:  make(chan []wire.PeerAddress, 1),
		commands:  make(chan commandReq, cfg.ChannelDepth),
		avails:    make(chan availReq),
		Transfers: make(chan Transfer, cfg.ChannelDepth),
		entries:   make(map[string]*peerEntry),
	}
}

// AddPeers hands a freshly announced peer list to the running coordinator.
// Known addresses are skipped.
func (c *Coordinator) AddPeers(ctx context.Context, peers []wire.PeerAddress) {
	select {
	case c.addPeers <- peers:
	case <-ctx.Done():
	}
}

// Command forwards an outbound message (have, request, piece, ...) to one
// peer's session. Unknown addresses are dropped silently: the peer may have
// closed between the caller's snapshot and now.
func (c *Coordinator) Command(ctx context.Context, addr string, msg *wire.Message) {
	select {
	case c.commands <- commandReq{addr: addr, msg: msg}:
	case <-ctx.Done():
	}
}

// Availability returns a copy of a peer's piece availability, or nil when
// the peer is unknown.
func (c *Coordinator) Availability(ctx context.Context, addr string) *wire.Bitfield {
	req := availReq{addr: addr, reply: make(chan *wire.Bitfield, 1)}
	select {
	case c.avails <- req:
	case <-ctx.Done():
		return nil
	}
	select {
	case bits := <-req.reply:
		return bits
	case <-ctx.Done():
		return nil
	}
}

// Run spawns one session per initial peer and serves events until the
// context is cancelled, then shuts every session down and waits for each
// closure acknowledgement before returning.
func (c *Coordinator) Run(ctx context.Context, peers []wire.PeerAddress) error {
	c.spawn(ctx, peers)

	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)

		case peers := <-c.addPeers:
			c.spawn(ctx, peers)

		case req := <-c.commands:
			if entry, ok := c.entries[req.addr]; ok && !entry.closed {
				entry.session.Send(req.msg)
			}

		case req := <-c.avails:
			if entry, ok := c.entries[req.addr]; ok {
				snapshot := wire.NewBitfield(entry.state.Availability.Len())
				snapshot.Replace(entry.state.Availability.Bytes())
				req.reply <- snapshot
			} else {
				req.reply <- nil
			}

		case <-ctx.Done():
			return c.shutdown()
		}
	}
}

func (c *Coordinator) spawn(ctx context.Context, peers []wire.PeerAddress) {
	for _, p := range peers {
		addr := p.String()
		if _, ok := c.entries[addr]; ok {
			continue
		}
		c.entries[addr] = &peerEntry{
			session: peering.Start(ctx, addr, c.infoHash, c.localID, c.cfg, c.events),
			state: &PeerState{
				Addr:         addr,
				AmChoking:    true,
				PeerChoking:  true,
				Availability: wire.NewBitfield(c.cfg.PieceCount),
			},
		}
	}
	c.log.Info("Tracking peers", zap.Int("sessions", len(c.entries)))
}

func (c *Coordinator) handleEvent(ev peering.Event) {
	entry, ok := c.entries[ev.Addr]
	if !ok {
		// session state can arrive before the entry when a peer is mid
		// handshake during a map rebuild; create it rather than drop data
		entry = &peerEntry{
			state: &PeerState{
				Addr:         ev.Addr,
				AmChoking:    true,
				PeerChoking:  true,
				Availability: wire.NewBitfield(c.cfg.PieceCount),
			},
		}
		c.entries[ev.Addr] = entry
	}

	switch ev.Kind {
	case peering.Connected:
		entry.state.PeerID = ev.PeerID
		c.log.Debug("Peer active", zap.String("peer", ev.Addr))

	case peering.MessageReceived:
		c.applyMessage(entry, ev.Msg)

	case peering.Closed:
		if ev.Err != nil {
			c.log.Debug("Peer closed", zap.String("peer", ev.Addr), zap.Error(ev.Err))
		}
		if !entry.closed && entry.session != nil {
			entry.session.Close()
		}
		delete(c.entries, ev.Addr)
	}
}

func (c *Coordinator) applyMessage(entry *peerEntry, msg *wire.Message) {
	state := entry.state
	switch msg.ID {
	case wire.MsgChoke:
		state.PeerChoking = true
	case wire.MsgUnchoke:
		state.PeerChoking = false
	case wire.MsgInterested:
		state.PeerInterested = true
	case wire.MsgNotInterested:
		state.PeerInterested = false

	case wire.MsgHave:
		index, err := wire.ParseHave(msg.Payload)
		if err != nil {
			c.log.Debug("Bad have payload", zap.String("peer", state.Addr), zap.Error(err))
			return
		}
		state.Availability.Set(int(index))
		c.updateInterest(entry)

	case wire.MsgBitfield:
		state.Availability.Replace(msg.Payload)
		c.updateInterest(entry)

	case wire.MsgRequest, wire.MsgPiece, wire.MsgCancel, wire.MsgPort:
		select {
		case c.Transfers <- Transfer{Addr: state.Addr, Msg: msg}:
		default:
			c.log.Warn("Transfer sink full, dropping message",
				zap.String("peer", state.Addr), zap.String("message", msg.Name()))
		}
	}
}

// updateInterest declares interest the first time a peer turns out to hold a
// piece we want. Runs once per availability change, driven by event arrival.
func (c *Coordinator) updateInterest(entry *peerEntry) {
	if entry.state.AmInterested || entry.closed || entry.session == nil {
		return
	}
	for i := 0; i < c.want.Len(); i++ {
		if c.want.Has(i) && entry.state.Availability.Has(i) {
			if entry.session.Send(wire.NewInterested()) {
				entry.state.AmInterested = true
			}
			return
		}
	}
}

// shutdown closes every session's command channel and drains events until
// each one has acknowledged with Closed.
func (c *Coordinator) shutdown() error {
	for _, entry := range c.entries {
		if !entry.closed && entry.session != nil {
			entry.session.Close()
			entry.closed = true
		}
	}
	for len(c.entries) > 0 {
		ev := <-c.events
		if ev.Kind == peering.Closed {
			delete(c.entries, ev.Addr)
		}
	}
	c.log.Info("All sessions closed")
	return nil
}
