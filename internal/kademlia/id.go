// Package kademlia implements the routing table, wire codec, UDP transport,
// RPC service, iterative lookup engine, and node coordinator of a
// Kademlia-style DHT.
package kademlia

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
)

// IDLength is the size in bytes of a KademliaID (160 bits).
const IDLength = 20

// KademliaID is a 160-bit node or key identifier.
type KademliaID [IDLength]byte

// NewKademliaID decodes a 40-character hex string into a KademliaID.
func NewKademliaID(data string) (*KademliaID, error) {
	decoded, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("kademlia: decode id %q: %w", data, err)
	}
	if len(decoded) != IDLength {
		return nil, fmt.Errorf("kademlia: id %q has %d bytes, want %d", data, len(decoded), IDLength)
	}
	var id KademliaID
	copy(id[:], decoded)
	return &id, nil
}

// MustNewKademliaID is NewKademliaID for callers that already know the input
// is well-formed (tests, constant IDs).
func MustNewKademliaID(data string) *KademliaID {
	id, err := NewKademliaID(data)
	if err != nil {
		panic(err)
	}
	return id
}

// NewRandomKademliaID returns a cryptographically-insignificant random ID,
// suitable for picking a target within a bucket's range during refresh.
func NewRandomKademliaID() *KademliaID {
	id := KademliaID{}
	for i := 0; i < IDLength; i++ {
		id[i] = uint8(rand.Intn(256))
	}
	return &id
}

// DeriveID computes the stable 160-bit identifier for a node from its
// dial address, as SHA-256("ip:port") truncated to 20 bytes.
func DeriveID(address string) *KademliaID {
	sum := sha256.Sum256([]byte(address))
	var id KademliaID
	copy(id[:], sum[:IDLength])
	return &id
}

// Equals reports whether the two IDs are identical.
func (id *KademliaID) Equals(other *KademliaID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return *id == *other
}

// Less compares two IDs lexicographically, MSB-first. It is used to break
// ties when two contacts are equidistant from a target.
func (id *KademliaID) Less(other *KademliaID) bool {
	for i := 0; i < IDLength; i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// CalcDistance returns the XOR distance between id and target.
func (id KademliaID) CalcDistance(target *KademliaID) *KademliaID {
	var result KademliaID
	for i := 0; i < IDLength; i++ {
		result[i] = id[i] ^ target[i]
	}
	return &result
}

// CommonPrefixLen returns the number of leading bits the two IDs share,
// from 0 (differ in the MSB) to 160 (identical).
func CommonPrefixLen(a, b *KademliaID) int {
	for i := 0; i < IDLength; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			continue
		}
		for j := 0; j < 8; j++ {
			if x&(0x80>>uint(j)) != 0 {
				return i*8 + j
			}
		}
	}
	return IDLength * 8
}

// LessByDistance defines the strict total order over IDs for a fixed target:
// a sorts before b iff a is strictly closer to target.
func LessByDistance(a, b, target *KademliaID) bool {
	da, db := a.CalcDistance(target), b.CalcDistance(target)
	for i := 0; i < IDLength; i++ {
		if da[i] != db[i] {
			return da[i] < db[i]
		}
	}
	return false
}

// String hex-encodes the ID.
func (id *KademliaID) String() string {
	if id == nil {
		return ""
	}
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the ID's raw bytes.
func (id *KademliaID) Bytes() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}
