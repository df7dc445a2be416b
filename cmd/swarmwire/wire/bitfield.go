package wire

// Bitfield tracks which pieces a peer claims to have, one bit per piece,
// most significant bit first within each byte. Indices at or beyond the
// piece count are protocol noise from the remote side, so Set and Replace
// ignore them instead of faulting.
type Bitfield struct {
	bits   []byte
	pieces int
}

func NewBitfield(pieceCount int) *Bitfield {
	return &Bitfield{
		bits:   make([]byte, (pieceCount+7)/8),
		pieces: pieceCount,
	}
}

// Len returns the piece count.
func (b *Bitfield) Len() int { return b.pieces }

// Has reports whether piece i is marked. Out-of-range indices are false.
func (b *Bitfield) Has(i int) bool {
	if i < 0 || i >= b.pieces {
		return false
	}
	return b.bits[i/8]>>(7-i%8)&1 == 1
}

// Set marks piece i. Out of range is a no-op.
func (b *Bitfield) Set(i int) {
	if i < 0 || i >= b.pieces {
		return
	}
	b.bits[i/8] |= 1 << (7 - i%8)
}

// Replace installs a full bitfield payload, truncating or zero-extending to
// the piece count. Spare bits past the last piece are dropped.
func (b *Bitfield) Replace(bits []byte) {
	fresh := make([]byte, (b.pieces+7)/8)
	copy(fresh, bits)
	// mask trailing bits of the last byte
	if spare := len(fresh)*8 - b.pieces; spare > 0 && len(fresh) > 0 {
		fresh[len(fresh)-1] &= 0xFF << spare
	}
	b.bits = fresh
}

// Bytes returns the raw vector, suitable for a bitfield message payload.
func (b *Bitfield) Bytes() []byte {
	return append([]byte(nil), b.bits...)
}

// Count returns the number of marked pieces.
func (b *Bitfield) Count() int {
	n := 0
	for i := 0; i < b.pieces; i++ {
		if b.Has(i) {
			n++
		}
	}
	return n
}
