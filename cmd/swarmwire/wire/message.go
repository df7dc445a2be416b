package wire

import (
	"encoding/binary"
	"fmt"
)

// Message IDs
const (
	MsgChoke         = 0
	MsgUnchoke       = 1
	MsgInterested    = 2
	MsgNotInterested = 3
	MsgHave          = 4
	MsgBitfield      = 5
	MsgRequest       = 6
	MsgPiece         = 7
	MsgCancel        = 8
	MsgPort          = 9
)

// Message is one peer-wire frame body: a one-byte type tag plus its payload.
// A nil *Message stands for the zero-length keep-alive frame.
type Message struct {
	ID      byte
	Payload []byte
}

// Encode prefixes the frame with its 4-byte big-endian length. The length
// counts the tag and payload but not the length field itself. A nil message
// encodes as the 4-byte keep-alive frame.
func (m *Message) Encode() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	buf := make([]byte, 4+1+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(m.Payload)))
	buf[4] = m.ID
	copy(buf[5:], m.Payload)
	return buf
}

// Known reports whether the type tag is one this client understands.
// Unknown tags are consumed and skipped rather than failing the connection.
func (m *Message) Known() bool {
	return m != nil && m.ID <= MsgPort
}

func (m *Message) Name() string {
	if m == nil {
		return "keep-alive"
	}
	names := [...]string{"choke", "unchoke", "interested", "not-interested",
		"have", "bitfield", "request", "piece", "cancel", "port"}
	if int(m.ID) < len(names) {
		return names[m.ID]
	}
	return fmt.Sprintf("unknown(%d)", m.ID)
}

func NewChoke() *Message         { return &Message{ID: MsgChoke} }
func NewUnchoke() *Message       { return &Message{ID: MsgUnchoke} }
func NewInterested() *Message    { return &Message{ID: MsgInterested} }
func NewNotInterested() *Message { return &Message{ID: MsgNotInterested} }

func NewHave(index uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return &Message{ID: MsgHave, Payload: payload}
}

func NewBitfieldMessage(bits []byte) *Message {
	return &Message{ID: MsgBitfield, Payload: bits}
}

func NewRequest(index, begin, length uint32) *Message {
	return &Message{ID: MsgRequest, Payload: encodeBlockRef(index, begin, length)}
}

func NewCancel(index, begin, length uint32) *Message {
	return &Message{ID: MsgCancel, Payload: encodeBlockRef(index, begin, length)}
}

func NewPiece(index, begin uint32, block []byte) *Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	copy(payload[8:], block)
	return &Message{ID: MsgPiece, Payload: payload}
}

func NewPort(port uint16) *Message {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, port)
	return &Message{ID: MsgPort, Payload: payload}
}

func encodeBlockRef(index, begin, length uint32) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return payload
}

// ParseHave extracts the piece index from a have payload.
func ParseHave(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("have payload is %d bytes: %w", len(payload), ErrMalformedResponse)
	}
	return binary.BigEndian.Uint32(payload), nil
}

// ParseBlockRef extracts index/begin/length from a request or cancel payload.
func ParseBlockRef(payload []byte) (index, begin, length uint32, err error) {
	if len(payload) != 12 {
		return 0, 0, 0, fmt.Errorf("block ref payload is %d bytes: %w", len(payload), ErrMalformedResponse)
	}
	index = binary.BigEndian.Uint32(payload[0:4])
	begin = binary.BigEndian.Uint32(payload[4:8])
	length = binary.BigEndian.Uint32(payload[8:12])
	return index, begin, length, nil
}

// ParsePiece extracts index/begin and the block data from a piece payload.
// The block aliases the payload, it is not copied.
func ParsePiece(payload []byte) (index, begin uint32, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("piece payload is %d bytes: %w", len(payload), ErrMalformedResponse)
	}
	index = binary.BigEndian.Uint32(payload[0:4])
	begin = binary.BigEndian.Uint32(payload[4:8])
	return index, begin, payload[8:], nil
}

// ParsePort extracts the DHT listen port from a port payload.
func ParsePort(payload []byte) (uint16, error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("port payload is %d bytes: %w", len(payload), ErrMalformedResponse)
	}
	return binary.BigEndian.Uint16(payload), nil
}
