package wire

import "errors"

// Decode failures are sentinels so callers can branch with errors.Is and decide
// whether to drop the message, close the connection or retry. None of them is
// fatal to the process.
var (
	// ErrMalformedResponse means a packet was too short or its layout
	// could not be satisfied (e.g. a peer list not divisible by 6).
	ErrMalformedResponse = errors.New("malformed response")

	// ErrTransactionMismatch means a tracker response echoed a transaction
	// id different from the request's. The response is stale or spoofed and
	// must be discarded without updating session state.
	ErrTransactionMismatch = errors.New("transaction id mismatch")

	// ErrProtocolMismatch means a handshake did not carry the expected
	// protocol name. The caller decides whether to abort the connection.
	ErrProtocolMismatch = errors.New("protocol name mismatch")

	// ErrOversizedFrame means a frame declared a payload length beyond the
	// configured maximum. The offending connection should be closed instead
	// of allocating unbounded memory.
	ErrOversizedFrame = errors.New("frame exceeds maximum size")
)
