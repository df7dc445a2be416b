package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jackpal/bencode-go"

	"swarmwire/cmd/swarmwire/wire"
)

// httpAnnounceResponse is the bencoded body of an HTTP tracker announce.
type httpAnnounceResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int64  `bencode:"interval"`
	Complete      int64  `bencode:"complete"`
	Incomplete    int64  `bencode:"incomplete"`
	Peers         string `bencode:"peers"`
}

func (s *Session) announceHTTP(ctx context.Context, stats Stats) (*Announce, error) {
	params := url.Values{
		"info_hash":  []string{string(s.infoHash[:])},
		"peer_id":    []string{string(s.peerID[:])},
		"port":       []string{strconv.Itoa(int(s.cfg.ListenPort))},
		"uploaded":   []string{strconv.FormatUint(stats.Uploaded, 10)},
		"downloaded": []string{strconv.FormatUint(stats.Downloaded, 10)},
		"left":       []string{strconv.FormatUint(stats.Left, 10)},
		"compact":    []string{"1"},
	}
	if name := httpEventName(stats.Event); name != "" {
		params.Set("event", name)
	}

	announceURL := fmt.Sprintf("%s?%s", s.endpoint.URL(), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building announce request: %w", err)
	}

	s.state = AwaitingAnnounce
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.state = Connected
		return nil, fmt.Errorf("%s: %v: %w", s.endpoint.Addr(), err, ErrTrackerUnreachable)
	}
	defer resp.Body.Close()

	var body httpAnnounceResponse
	if err := bencode.Unmarshal(resp.Body, &body); err != nil {
		s.state = Connected
		return nil, fmt.Errorf("decoding announce body: %v: %w", err, wire.ErrMalformedResponse)
	}
	if body.FailureReason != "" {
		s.state = Connected
		return nil, fmt.Errorf("tracker refused announce: %s", body.FailureReason)
	}
	if len(body.Peers)%6 != 0 {
		s.state = Connected
		return nil, fmt.Errorf("compact peer list is %d bytes: %w", len(body.Peers), wire.ErrMalformedResponse)
	}

	s.state = Announced
	return &Announce{
		Peers:    wire.ParseCompactPeers([]byte(body.Peers)),
		Interval: time.Duration(body.Interval) * time.Second,
		Seeders:  uint32(body.Complete),
		Leechers: uint32(body.Incomplete),
	}, nil
}

func httpEventName(event uint32) string {
	switch event {
	case wire.EventCompleted:
		return "completed"
	case wire.EventStarted:
		return "started"
	case wire.EventStopped:
		return "stopped"
	default:
		return ""
	}
}
