package wire

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrameSize bounds the payload length a remote peer may declare.
// The largest legitimate frame is a piece message (16 KiB block + 9 bytes of
// header), so 1 MiB leaves generous headroom without letting a hostile length
// field drive allocation.
const DefaultMaxFrameSize = 1 << 20

// Assembler turns a stream of arbitrary-sized read chunks into complete
// length-delimited frames. Bytes go in through Feed as they arrive off the
// socket; Next pops one complete frame at a time, leaving any trailing
// partial frame buffered for the next Feed. The accumulator grows to fit
// whatever a frame declares, up to the configured maximum.
type Assembler struct {
	buf      []byte
	maxFrame int
}

// NewAssembler returns an Assembler enforcing the given maximum payload
// length. maxFrame <= 0 selects DefaultMaxFrameSize.
func NewAssembler(maxFrame int) *Assembler {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Assembler{maxFrame: maxFrame}
}

// Feed appends newly read bytes to the accumulator.
func (a *Assembler) Feed(p []byte) {
	a.buf = append(a.buf, p...)
}

// Buffered returns the number of bytes waiting for frame completion.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Next pops the next complete frame. ok is false when the buffered bytes do
// not yet form a whole frame; a declared length exceeding the maximum fails
// with ErrOversizedFrame. A keep-alive frame is consumed and reported as a
// nil message with ok true.
func (a *Assembler) Next() (msg *Message, ok bool, err error) {
	if len(a.buf) < 4 {
		return nil, false, nil
	}
	length := int(binary.BigEndian.Uint32(a.buf[0:4]))
	if length > a.maxFrame {
		return nil, false, fmt.Errorf("declared length %d exceeds %d: %w", length, a.maxFrame, ErrOversizedFrame)
	}
	if len(a.buf) < 4+length {
		return nil, false, nil
	}
	if length > 0 {
		// copy the payload out before compacting the accumulator under it
		frame := a.buf[4 : 4+length]
		msg = &Message{ID: frame[0], Payload: append([]byte(nil), frame[1:]...)}
	}
	a.consume(4 + length)
	return msg, true, nil
}

func (a *Assembler) consume(n int) {
	rest := len(a.buf) - n
	copy(a.buf, a.buf[n:])
	a.buf = a.buf[:rest]
}
