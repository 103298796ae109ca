package vl1

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// SessionIDSize is the wire size of a SessionID in bytes.
const SessionIDSize = 6

// SessionIDMax is the largest value a SessionID may hold (48 bits set).
const SessionIDMax uint64 = 0xffffffffffff

// SessionIDNone is the reserved zero value: "no session."
const SessionIDNone uint64 = 0

// SessionIDInit is the reserved all-ones sentinel used for session-init
// packets in the forward-secure (v2) transport.
const SessionIDInit uint64 = SessionIDMax

// SessionID is a 48-bit nonzero session identifier, stored internally as a
// uint64 whose top two bytes are always zero; AsBytes copies its low six
// bytes out in little-endian order.
//
// The zero value of SessionID is invalid — always construct one with New
// or Random.
type SessionID struct {
	v uint64
}

// NewSessionID constructs a SessionID from i. It panics if i is zero or
// exceeds SessionIDMax: constructing a zero or out-of-range session ID is a
// programmer error, not a recoverable condition.
func NewSessionID(i uint64) SessionID {
	if i == 0 || i > SessionIDMax {
		panic(fmt.Sprintf("vl1: invalid session id %d", i))
	}
	return SessionID{v: i}
}

// randState is the non-cryptographic PRNG backing RandomSessionID. A
// session ID only needs to avoid collisions in practice, not resist
// prediction, so it deliberately does not use crypto/rand.
var randState atomic.Uint64

func init() {
	// Any nonzero seed works; xorshift64 never produces a zero output from
	// a nonzero state, and session IDs are not security-sensitive.
	randState.Store(0x9e3779b97f4a7c15)
}

// xorshift64Random returns the next value from a package-global xorshift64
// generator, seeded once at init. It is safe for concurrent use.
func xorshift64Random() uint64 {
	for {
		old := randState.Load()
		x := old
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		if randState.CompareAndSwap(old, x) {
			return x
		}
	}
}

// RandomSessionID returns a uniformly distributed random SessionID in
// [1, SessionIDMax], generated with a non-cryptographic PRNG. Session IDs
// are connection-scoped demultiplexing keys, not secrets.
func RandomSessionID() SessionID {
	return SessionID{v: (xorshift64Random() % SessionIDMax) + 1}
}

// SessionIDFromBytes decodes a little-endian 6-byte session ID. It returns
// false if the encoded value is zero.
func SessionIDFromBytes(b [SessionIDSize]byte) (SessionID, bool) {
	var tmp [8]byte
	copy(tmp[:SessionIDSize], b[:])
	v := binary.LittleEndian.Uint64(tmp[:]) & SessionIDMax
	if v == 0 {
		return SessionID{}, false
	}
	return SessionID{v: v}, true
}

// AsBytes returns the little-endian 6-byte wire form of the session ID.
func (s SessionID) AsBytes() [SessionIDSize]byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], s.v)
	var out [SessionIDSize]byte
	copy(out[:], tmp[:SessionIDSize])
	return out
}

// Uint64 returns the session ID's numeric value.
func (s SessionID) Uint64() uint64 { return s.v }

// IsNone reports whether s is the zero value (no session).
func (s SessionID) IsNone() bool { return s.v == 0 }

// String formats the session ID as lowercase hex, zero-padded to at least
// six digits.
func (s SessionID) String() string {
	return fmt.Sprintf("%06x", s.v)
}
