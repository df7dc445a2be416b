package wire

import (
	"errors"
	"testing"
)

func testHash() InfoHash {
	var h InfoHash
	copy(h[:], "aaaaaaaaaaaaaaaaaaaa")
	return h
}

func testPeerID() PeerID {
	var id PeerID
	copy(id[:], "-SW0001-cccccccccccc")
	return id
}

func TestHandshakeRoundTrip(t *testing.T) {
	hs := NewHandshake(testHash(), testPeerID())
	buf := hs.Encode()

	if len(buf) != HandshakeSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), HandshakeSize)
	}
	if buf[0] != 19 {
		t.Errorf("length byte = %d, want 19", buf[0])
	}

	decoded, err := DecodeHandshake(buf)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if decoded != hs {
		t.Errorf("round trip = %+v, want %+v", decoded, hs)
	}
}

func TestHandshakeBadLengthByte(t *testing.T) {
	buf := NewHandshake(testHash(), testPeerID()).Encode()
	buf[0] = 18

	_, err := DecodeHandshake(buf)
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Errorf("err = %v, want ErrProtocolMismatch", err)
	}
}

func TestHandshakeBadProtocolName(t *testing.T) {
	buf := NewHandshake(testHash(), testPeerID()).Encode()
	buf[1] = 'b'

	hs, err := DecodeHandshake(buf)
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Errorf("err = %v, want ErrProtocolMismatch", err)
	}
	// fields still populated so the caller can log the offender
	if hs.Protocol != "bitTorrent protocol" {
		t.Errorf("protocol = %q", hs.Protocol)
	}
}

func TestHandshakeTooShort(t *testing.T) {
	_, err := DecodeHandshake(make([]byte, 67))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}
