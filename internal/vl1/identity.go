package vl1

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// AddressSize is the width of an Address in bytes (40 bits, right-padded
// into a 5-byte array).
const AddressSize = 5

// Address is this node's or a peer's 40-bit primary key, derived from an
// identity's public key. It is the primary key of the peer table.
type Address [AddressSize]byte

// AddressFromBytes decodes a 5-byte address. It returns false for the
// reserved all-zero address, which is never a valid peer address.
func AddressFromBytes(b [AddressSize]byte) (Address, bool) {
	var zero Address
	if b == zero {
		return Address{}, false
	}
	return Address(b), true
}

// IsValid reports whether a is a nonzero address.
func (a Address) IsValid() bool {
	var zero Address
	return a != zero
}

// String renders the address as 10 lowercase hex digits.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Identity is this node's or a remote node's long-lived cryptographic
// identity: an asymmetric keypair plus the Address derived from it.
//
// Key generation, key upgrade, and signature verification are explicitly
// out of scope for VL1's core (spec.md §1 Out of scope) and are treated as
// an external collaborator. This type carries only what the core needs: a
// stable, comparable public identity and the address derived from it. The
// derivation below (SHA-512 of the public key, truncated to 40 bits) is a
// placeholder standing in for the real asymmetric-keypair derivation that a
// full node build would supply; it exists so the peer table, root manager,
// and WHOIS queue have a concrete, comparable Identity to operate on.
type Identity struct {
	publicKey [32]byte
	address   Address
}

// GenerateIdentity creates a new random Identity. Real key generation is
// out of scope; this draws from a non-cryptographic source suitable only
// for exercising the VL1 core in isolation from a real keypair provider.
func GenerateIdentity() Identity {
	var pub [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(pub[i*8:], xorshift64Random())
	}
	return IdentityFromPublicKey(pub)
}

// IdentityFromPublicKey derives an Identity (and its Address) from a raw
// public key.
func IdentityFromPublicKey(pub [32]byte) Identity {
	h := sha512.Sum512(pub[:])
	var addr Address
	copy(addr[:], h[:AddressSize])
	return Identity{publicKey: pub, address: addr}
}

// Address returns the identity's derived address.
func (id Identity) Address() Address { return id.address }

// PublicKey returns the identity's raw public key bytes.
func (id Identity) PublicKey() [32]byte { return id.publicKey }

// Equal reports whether two identities have the same public key.
func (id Identity) Equal(other Identity) bool {
	return id.publicKey == other.publicKey
}

// String renders the identity as its address followed by a short key
// fingerprint, for logs.
func (id Identity) String() string {
	return fmt.Sprintf("%s:%x", id.address, id.publicKey[:4])
}
