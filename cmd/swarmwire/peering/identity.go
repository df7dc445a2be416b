package peering

import (
	"crypto/rand"

	"swarmwire/cmd/swarmwire/wire"
)

// NewPeerID builds the local identity: the client signature prefix followed
// by random bytes up to the 20-byte length.
func NewPeerID(prefix string) wire.PeerID {
	var id wire.PeerID
	rand.Read(id[:])
	copy(id[:], prefix)
	return id
}
