package wire

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// UDP tracker protocol packet layouts (BEP 15)
// https://bittorrent.org/beps/bep_0015.html
const (
	protocolID = 0x41727101980 // fixed "magic constant"

	ActionConnect  = 0
	ActionAnnounce = 1

	EventNone      = 0
	EventCompleted = 1
	EventStarted   = 2
	EventStopped   = 3

	// connect request/response: protocol_id:8 + action:4 + transaction_id:4
	// and action:4 + transaction_id:4 + connection_id:8
	connectRequestSize  = 16
	connectResponseSize = 16

	// announce request (sum of all fields):
	// connection_id:8 + action:4 + transaction_id:4 + info_hash:20 + peer_id:20 +
	// downloaded:8 + left:8 + uploaded:8 + event:4 + IP:4 + key:4 + num_want:4 + port:2
	announceRequestSize = 98

	// announce response header: action:4 + transaction_id:4 + interval:4 +
	// leechers:4 + seeders:4, followed by 6 bytes per peer
	announceHeaderSize = 20
	compactPeerSize    = 6
)

// InfoHash identifies the shared content. PeerID identifies a client instance.
// Both are opaque 20-byte values compared byte for byte.
type (
	InfoHash [20]byte
	PeerID   [20]byte
)

// NewTransactionID returns a random transaction id for correlating one
// request/response pair on the unreliable UDP channel.
func NewTransactionID() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// ConnectRequest opens a tracker session and carries the protocol magic.
type ConnectRequest struct {
	TransactionID uint32
}

func (r ConnectRequest) Encode() []byte {
	buf := make([]byte, connectRequestSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(protocolID))
	binary.BigEndian.PutUint32(buf[8:12], ActionConnect)
	binary.BigEndian.PutUint32(buf[12:16], r.TransactionID)
	return buf
}

// ConnectResponse carries the connection id that authorizes announces for a
// bounded window.
type ConnectResponse struct {
	Action        uint32
	TransactionID uint32
	ConnectionID  int64
}

// DecodeConnectResponse validates the echoed transaction id against the one
// sent with the request.
func DecodeConnectResponse(buf []byte, sentTxn uint32) (ConnectResponse, error) {
	if len(buf) < connectResponseSize {
		return ConnectResponse{}, fmt.Errorf("connect response is %d bytes: %w", len(buf), ErrMalformedResponse)
	}
	resp := ConnectResponse{
		Action:        binary.BigEndian.Uint32(buf[0:4]),
		TransactionID: binary.BigEndian.Uint32(buf[4:8]),
		ConnectionID:  int64(binary.BigEndian.Uint64(buf[8:16])),
	}
	if resp.TransactionID != sentTxn {
		return ConnectResponse{}, fmt.Errorf("sent %d, got %d: %w", sentTxn, resp.TransactionID, ErrTransactionMismatch)
	}
	return resp, nil
}

func (r ConnectResponse) Encode() []byte {
	buf := make([]byte, connectResponseSize)
	binary.BigEndian.PutUint32(buf[0:4], r.Action)
	binary.BigEndian.PutUint32(buf[4:8], r.TransactionID)
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.ConnectionID))
	return buf
}

// AnnounceRequest reports transfer state and asks for a peer list.
type AnnounceRequest struct {
	ConnectionID  int64
	TransactionID uint32
	InfoHash      InfoHash
	PeerID        PeerID
	Downloaded    uint64
	Left          uint64
	Uploaded      uint64
	Event         uint32
	IPAddress     uint32
	Key           uint32
	NumWant       int32
	Port          uint16
}

func (r AnnounceRequest) Encode() []byte {
	buf := make([]byte, announceRequestSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.ConnectionID))
	binary.BigEndian.PutUint32(buf[8:12], ActionAnnounce)
	binary.BigEndian.PutUint32(buf[12:16], r.TransactionID)
	copy(buf[16:36], r.InfoHash[:])
	copy(buf[36:56], r.PeerID[:])
	binary.BigEndian.PutUint64(buf[56:64], r.Downloaded)
	binary.BigEndian.PutUint64(buf[64:72], r.Left)
	binary.BigEndian.PutUint64(buf[72:80], r.Uploaded)
	binary.BigEndian.PutUint32(buf[80:84], r.Event)
	binary.BigEndian.PutUint32(buf[84:88], r.IPAddress)
	binary.BigEndian.PutUint32(buf[88:92], r.Key)
	binary.BigEndian.PutUint32(buf[92:96], uint32(r.NumWant))
	binary.BigEndian.PutUint16(buf[96:98], r.Port)
	return buf
}

// DecodeAnnounceRequest parses the 98-byte request layout. Used by tests that
// stand in for a tracker, and kept symmetric with Encode.
func DecodeAnnounceRequest(buf []byte) (AnnounceRequest, error) {
	if len(buf) < announceRequestSize {
		return AnnounceRequest{}, fmt.Errorf("announce request is %d bytes: %w", len(buf), ErrMalformedResponse)
	}
	r := AnnounceRequest{
		ConnectionID:  int64(binary.BigEndian.Uint64(buf[0:8])),
		TransactionID: binary.BigEndian.Uint32(buf[12:16]),
		Downloaded:    binary.BigEndian.Uint64(buf[56:64]),
		Left:          binary.BigEndian.Uint64(buf[64:72]),
		Uploaded:      binary.BigEndian.Uint64(buf[72:80]),
		Event:         binary.BigEndian.Uint32(buf[80:84]),
		IPAddress:     binary.BigEndian.Uint32(buf[84:88]),
		Key:           binary.BigEndian.Uint32(buf[88:92]),
		NumWant:       int32(binary.BigEndian.Uint32(buf[92:96])),
		Port:          binary.BigEndian.Uint16(buf[96:98]),
	}
	copy(r.InfoHash[:], buf[16:36])
	copy(r.PeerID[:], buf[36:56])
	return r, nil
}

// PeerAddress is one entry of a compact peer list: 4 IPv4 bytes + 2 port bytes.
type PeerAddress struct {
	IP   net.IP
	Port uint16
}

func (p PeerAddress) String() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// AnnounceResponse is the 20-byte header plus the compact peer list.
type AnnounceResponse struct {
	Action        uint32
	TransactionID uint32
	Interval      uint32
	Leechers      uint32
	Seeders       uint32
	Peers         []PeerAddress
}

// DecodeAnnounceResponse rejects responses shorter than the header or whose
// trailing bytes do not divide into whole 6-byte peer entries.
func DecodeAnnounceResponse(buf []byte, sentTxn uint32) (AnnounceResponse, error) {
	if len(buf) < announceHeaderSize {
		return AnnounceResponse{}, fmt.Errorf("announce response is %d bytes: %w", len(buf), ErrMalformedResponse)
	}
	peerList := buf[announceHeaderSize:]
	if len(peerList)%compactPeerSize != 0 {
		return AnnounceResponse{}, fmt.Errorf("peer list is %d bytes: %w", len(peerList), ErrMalformedResponse)
	}
	resp := AnnounceResponse{
		Action:        binary.BigEndian.Uint32(buf[0:4]),
		TransactionID: binary.BigEndian.Uint32(buf[4:8]),
		Interval:      binary.BigEndian.Uint32(buf[8:12]),
		Leechers:      binary.BigEndian.Uint32(buf[12:16]),
		Seeders:       binary.BigEndian.Uint32(buf[16:20]),
	}
	if resp.TransactionID != sentTxn {
		return AnnounceResponse{}, fmt.Errorf("sent %d, got %d: %w", sentTxn, resp.TransactionID, ErrTransactionMismatch)
	}
	resp.Peers = ParseCompactPeers(peerList)
	return resp, nil
}

func (r AnnounceResponse) Encode() []byte {
	buf := make([]byte, announceHeaderSize+len(r.Peers)*compactPeerSize)
	binary.BigEndian.PutUint32(buf[0:4], r.Action)
	binary.BigEndian.PutUint32(buf[4:8], r.TransactionID)
	binary.BigEndian.PutUint32(buf[8:12], r.Interval)
	binary.BigEndian.PutUint32(buf[12:16], r.Leechers)
	binary.BigEndian.PutUint32(buf[16:20], r.Seeders)
	for i, p := range r.Peers {
		offset := announceHeaderSize + i*compactPeerSize
		copy(buf[offset:offset+4], p.IP.To4())
		binary.BigEndian.PutUint16(buf[offset+4:offset+6], p.Port)
	}
	return buf
}

// ParseCompactPeers decodes a compact peer list 6 bytes at a time. The caller
// must have validated that len(peerList) is a multiple of 6.
func ParseCompactPeers(peerList []byte) []PeerAddress {
	peers := make([]PeerAddress, 0, len(peerList)/compactPeerSize)
	for i := 0; i+compactPeerSize <= len(peerList); i += compactPeerSize {
		peers = append(peers, PeerAddress{
			IP:   net.IPv4(peerList[i], peerList[i+1], peerList[i+2], peerList[i+3]),
			Port: binary.BigEndian.Uint16(peerList[i+4 : i+6]),
		})
	}
	return peers
}
