// Package tracker drives the connect/announce exchange with one tracker
// endpoint and produces peer address lists. UDP follows BEP 15; the HTTP
// transport sits behind the same Session surface.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"swarmwire/cmd/swarmwire/config"
	"swarmwire/cmd/swarmwire/wire"
)

// ErrTrackerUnreachable means every connect/announce attempt timed out.
var ErrTrackerUnreachable = errors.New("tracker unreachable")

// State is the session's position in the connect/announce exchange.
type State int

const (
	Idle State = iota
	AwaitingConnect
	Connected
	AwaitingAnnounce
	Announced
)

// Stats is the transfer state reported with each announce.
type Stats struct {
	Downloaded uint64
	Left       uint64
	Uploaded   uint64
	Event      uint32
}

// Announce is a tracker's answer: who else shares the content and when to
// ask again.
type Announce struct {
	Peers    []wire.PeerAddress
	Interval time.Duration
	Seeders  uint32
	Leechers uint32
}

// Session holds the correlation state for one tracker endpoint. The
// connection id it obtains is valid for a bounded window; Announce re-runs
// Connect when the window has lapsed. Not safe for concurrent use: each
// session is owned by the goroutine that created it.
type Session struct {
	endpoint Endpoint
	infoHash wire.InfoHash
	peerID   wire.PeerID
	cfg      config.Config
	log      *zap.Logger

	state      State
	connID     int64
	obtainedAt time.Time
}

func NewSession(endpoint Endpoint, infoHash wire.InfoHash, peerID wire.PeerID, cfg config.Config) *Session {
	return &Session{
		endpoint: endpoint,
		infoHash: infoHash,
		peerID:   peerID,
		cfg:      cfg,
		log:      zap.L().With(zap.String("tracker", endpoint.String())),
	}
}

func (s *Session) State() State { return s.state }

func (s *Session) connected() bool {
	return s.state >= Connected && time.Since(s.obtainedAt) < s.cfg.ConnectionTTL
}

// Connect obtains a connection id from a UDP tracker, retrying with doubled
// timeouts up to the configured attempt cap. HTTP trackers have no connect
// phase, so it is a no-op for them.
func (s *Session) Connect(ctx context.Context) error {
	if s.endpoint.Scheme == SchemeHTTP {
		s.state = Connected
		s.obtainedAt = time.Now()
		return nil
	}

	txn := wire.NewTransactionID()
	req := wire.ConnectRequest{TransactionID: txn}

	s.state = AwaitingConnect
	var resp wire.ConnectResponse
	err := s.exchange(ctx, req.Encode(), func(buf []byte) error {
		var err error
		resp, err = wire.DecodeConnectResponse(buf, txn)
		return err
	})
	if err != nil {
		s.state = Idle
		return err
	}

	s.state = Connected
	s.connID = resp.ConnectionID
	s.obtainedAt = time.Now()
	s.log.Debug("Tracker connect complete", zap.Int64("connection_id", resp.ConnectionID))
	return nil
}

// Announce reports the given stats and returns the tracker's peer list. A
// missing or expired connection id triggers a fresh Connect first.
func (s *Session) Announce(ctx context.Context, stats Stats) (*Announce, error) {
	if !s.connected() {
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
	}
	if s.endpoint.Scheme == SchemeHTTP {
		return s.announceHTTP(ctx, stats)
	}

	txn := wire.NewTransactionID()
	req := wire.AnnounceRequest{
		ConnectionID:  s.connID,
		TransactionID: txn,
		InfoHash:      s.infoHash,
		PeerID:        s.peerID,
		Downloaded:    stats.Downloaded,
		Left:          stats.Left,
		Uploaded:      stats.Uploaded,
		Event:         stats.Event,
		Key:           wire.NewTransactionID(),
		NumWant:       s.cfg.NumWant,
		Port:          s.cfg.ListenPort,
	}

	s.state = AwaitingAnnounce
	var resp wire.AnnounceResponse
	err := s.exchange(ctx, req.Encode(), func(buf []byte) error {
		var err error
		resp, err = wire.DecodeAnnounceResponse(buf, txn)
		return err
	})
	if err != nil {
		s.state = Connected
		return nil, err
	}

	s.state = Announced
	s.log.Info("Announce complete",
		zap.Int("peers", len(resp.Peers)),
		zap.Uint32("seeders", resp.Seeders),
		zap.Uint32("leechers", resp.Leechers),
		zap.Uint32("interval", resp.Interval))
	return &Announce{
		Peers:    resp.Peers,
		Interval: time.Duration(resp.Interval) * time.Second,
		Seeders:  resp.Seeders,
		Leechers: resp.Leechers,
	}, nil
}

// Run announces, delivers the peer list, then re-announces each time the
// tracker-provided interval lapses, until the context is cancelled.
func (s *Session) Run(ctx context.Context, stats func() Stats, peers chan<- []wire.PeerAddress) error {
	event := uint32(wire.EventStarted)
	for {
		st := stats()
		st.Event = event
		ann, err := s.Announce(ctx, st)
		if err != nil {
			return err
		}
		event = wire.EventNone

		select {
		case peers <- ann.Peers:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-time.After(ann.Interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop sends a single best-effort stopped announce. It is not retried; a
// tracker that misses it will age the peer entry out on its own.
func (s *Session) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TrackerTimeout)
	defer cancel()
	if _, err := s.Announce(ctx, Stats{Event: wire.EventStopped}); err != nil {
		s.log.Debug("Stopped announce not delivered", zap.Error(err))
	}
	s.state = Idle
	s.connID = 0
}

// exchange sends one request datagram and waits for a decodable response,
// applying the shared retry policy: per-attempt timeout doubling from the
// configured base, bounded attempts, everything capped by the context
// deadline. Datagrams from the wrong source or with a mismatched transaction
// id are discarded and the wait continues.
func (s *Session) exchange(ctx context.Context, req []byte, decode func([]byte) error) error {
	raddr, err := net.ResolveUDPAddr("udp4", s.endpoint.Addr())
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.endpoint.Addr(), err)
	}
	sock, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("binding udp socket: %w", err)
	}
	defer sock.Close()

	timeout := s.cfg.TrackerTimeout
	buf := make([]byte, 4096)
	var lastErr error

	for attempt := 0; attempt < s.cfg.TrackerRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := sock.WriteToUDP(req, raddr); err != nil {
			return fmt.Errorf("sending to %s: %w", raddr, err)
		}

		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		sock.SetReadDeadline(deadline)

		for {
			n, from, err := sock.ReadFromUDP(buf)
			if err != nil {
				lastErr = err
				break // timed out or socket error: next attempt
			}
			if !from.IP.Equal(raddr.IP) || from.Port != raddr.Port {
				s.log.Debug("Discarding datagram from unexpected source", zap.Stringer("from", from))
				continue
			}
			if err := decode(buf[:n]); err != nil {
				if errors.Is(err, wire.ErrTransactionMismatch) {
					s.log.Debug("Discarding stale response", zap.Error(err))
					continue
				}
				return err
			}
			return nil
		}
		timeout *= 2
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%s after %d attempts (last: %v): %w",
		s.endpoint.Addr(), s.cfg.TrackerRetries, lastErr, ErrTrackerUnreachable)
}
