package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jackpal/bencode-go"

	"swarmwire/cmd/swarmwire/wire"
)

func TestAnnounceHTTP(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		body := httpAnnounceResponse{
			Interval:   1800,
			Complete:   7,
			Incomplete: 3,
			// two compact peers: 10.0.0.1:6881, 10.0.0.2:6882
			Peers: string([]byte{10, 0, 0, 1, 0x1A, 0xE1, 10, 0, 0, 2, 0x1A, 0xE2}),
		}
		if err := bencode.Marshal(w, body); err != nil {
			t.Errorf("marshalling response: %v", err)
		}
	}))
	defer srv.Close()

	endpoint, err := ParseEndpoint(srv.URL + "/announce")
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}

	var hash wire.InfoHash
	copy(hash[:], "aaaaaaaaaaaaaaaaaaaa")
	s := NewSession(endpoint, hash, wire.PeerID{}, testConfig())

	ann, err := s.Announce(context.Background(), Stats{Left: 100, Event: wire.EventStarted})
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}

	if gotQuery.Get("info_hash") != string(hash[:]) {
		t.Errorf("info_hash param = %q", gotQuery.Get("info_hash"))
	}
	if gotQuery.Get("event") != "started" {
		t.Errorf("event param = %q, want started", gotQuery.Get("event"))
	}
	if gotQuery.Get("compact") != "1" {
		t.Errorf("compact param = %q, want 1", gotQuery.Get("compact"))
	}

	if len(ann.Peers) != 2 {
		t.Fatalf("peer count = %d, want 2", len(ann.Peers))
	}
	if got := ann.Peers[0].String(); got != "10.0.0.1:6881" {
		t.Errorf("peer 0 = %s, want 10.0.0.1:6881", got)
	}
	if ann.Interval != 1800*time.Second || ann.Seeders != 7 || ann.Leechers != 3 {
		t.Errorf("announce = %+v", ann)
	}
}

func TestAnnounceHTTPFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bencode.Marshal(w, httpAnnounceResponse{FailureReason: "torrent not registered"})
	}))
	defer srv.Close()

	endpoint, err := ParseEndpoint(srv.URL + "/announce")
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	s := NewSession(endpoint, wire.InfoHash{}, wire.PeerID{}, testConfig())
	if _, err := s.Announce(context.Background(), Stats{}); err == nil {
		t.Fatal("failure reason should surface as an error")
	}
}
