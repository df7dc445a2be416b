package wire

import (
	"bytes"
	"fmt"
)

// ProtocolName is the peer-wire protocol identifier sent in every handshake.
const ProtocolName = "BitTorrent protocol"

// HandshakeSize is the fixed handshake length:
// pstrlen:1 + pstr:19 + reserved:8 + info_hash:20 + peer_id:20
const HandshakeSize = 68

// Handshake is the first message on a peer connection, sent by both sides.
// Reserved bytes are extension flags; this client sends all zeros.
type Handshake struct {
	Protocol string
	Reserved [8]byte
	InfoHash InfoHash
	PeerID   PeerID
}

// NewHandshake builds the handshake this client sends.
func NewHandshake(infoHash InfoHash, peerID PeerID) Handshake {
	return Handshake{
		Protocol: ProtocolName,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

func (h Handshake) Encode() []byte {
	buf := make([]byte, 0, HandshakeSize)
	buf = append(buf, byte(len(h.Protocol)))
	buf = append(buf, h.Protocol...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// DecodeHandshake parses a 68-byte handshake. A length byte other than 19
// yields ErrProtocolMismatch; the fields are still returned so the caller can
// log what the peer sent before deciding to drop the connection.
func DecodeHandshake(buf []byte) (Handshake, error) {
	if len(buf) < HandshakeSize {
		return Handshake{}, fmt.Errorf("handshake is %d bytes: %w", len(buf), ErrMalformedResponse)
	}
	h := Handshake{Protocol: string(buf[1:20])}
	copy(h.Reserved[:], buf[20:28])
	copy(h.InfoHash[:], buf[28:48])
	copy(h.PeerID[:], buf[48:68])
	if int(buf[0]) != len(ProtocolName) {
		return h, fmt.Errorf("protocol length byte is %d: %w", buf[0], ErrProtocolMismatch)
	}
	if !bytes.Equal(buf[1:20], []byte(ProtocolName)) {
		return h, fmt.Errorf("protocol name %q: %w", h.Protocol, ErrProtocolMismatch)
	}
	return h, nil
}
