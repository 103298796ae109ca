package vl1

import "encoding/binary"

// V1HeaderSize is the fixed size of the legacy v1 packet/fragment header,
// not including payload (spec.md §6).
const V1HeaderSize = 20

// ForwardMaxHops is the maximum hop count for forwarded legacy traffic. A
// datagram whose hop count is already at this value before increment is
// dropped rather than forwarded (§8 property 7).
const ForwardMaxHops = 7

// v2Discriminator is the byte[8] value that marks a datagram as belonging
// to the forward-secure (v2/ZSSP) transport rather than legacy v1 framing.
// It works because byte[8] would otherwise be the first byte of a legacy
// destination address, and a legacy SessionID's byte[4] is reserved as
// 0xff — the two formats are mutually exclusive at this wire position.
const v2Discriminator = 0xff

// IsV2Wire reports whether data begins with the v2/ZSSP wire discriminator.
// Only the discriminator is defined here; the v2 transport body is out of
// core scope (spec.md §1, §9).
func IsV2Wire(data []byte) bool {
	return len(data) > 8 && data[8] == v2Discriminator
}

const (
	flagFragmentBit = 0x80
	flagHopsMask    = 0x0f
)

// v1Header is a parsed view over a legacy v1 packet or fragment header. It
// borrows data's header bytes: fields read directly from the slice, and
// IncrementHops mutates data in place, matching the upstream's in-place
// hop-increment semantics.
type v1Header struct {
	data []byte
}

// parseV1Header validates that data is at least V1HeaderSize bytes and
// returns a header view over it.
func parseV1Header(data []byte) (v1Header, bool) {
	if len(data) < V1HeaderSize {
		return v1Header{}, false
	}
	return v1Header{data: data}, true
}

// PacketID returns the 8-byte opaque packet identifier used as the
// reassembly counter.
func (h v1Header) PacketID() uint64 {
	return binary.BigEndian.Uint64(h.data[0:8])
}

// Dest returns the 40-bit destination address.
func (h v1Header) Dest() (Address, bool) {
	var b [AddressSize]byte
	copy(b[:], h.data[8:13])
	return AddressFromBytes(b)
}

// Source returns the 40-bit source address.
func (h v1Header) Source() (Address, bool) {
	var b [AddressSize]byte
	copy(b[:], h.data[13:18])
	return AddressFromBytes(b)
}

// IsFragment reports whether this header carries the fragment bit.
func (h v1Header) IsFragment() bool {
	return h.data[18]&flagFragmentBit != 0
}

// Hops returns the current hop count (0-15).
func (h v1Header) Hops() uint8 {
	return h.data[18] & flagHopsMask
}

// IncrementHops increments the header's hop nibble in place and returns the
// new value. The nibble saturates at 15 rather than wrapping.
func (h v1Header) IncrementHops() uint8 {
	hops := h.Hops()
	if hops < flagHopsMask {
		hops++
		h.data[18] = (h.data[18] &^ flagHopsMask) | hops
	}
	return hops
}

// FragmentNo returns the fragment's zero-based ordinal (low nibble of byte
// 19), valid only when IsFragment() is true.
func (h v1Header) FragmentNo() int {
	return int(h.data[19] & 0x0f)
}

// FragmentCount returns the fragment's total count (high nibble of byte 19,
// 1-16), valid only when IsFragment() is true.
func (h v1Header) FragmentCount() int {
	return int(h.data[19]>>4) + 1
}

// Verb returns the verb/cipher indicator byte, valid only when
// IsFragment() is false.
func (h v1Header) Verb() uint8 {
	return h.data[19]
}

// Payload returns the bytes following the fixed header.
func (h v1Header) Payload() []byte {
	return h.data[V1HeaderSize:]
}

// Reserved verb values generated and consumed by VL1 core itself, rather
// than the upper protocol that owns the rest of the verb space. Their wire
// layout is an Open Question left unresolved by the upstream source (§9,
// "the send_whois path in source is empty"); this repo resolves it with
// the minimal framing below, sufficient to exercise C6's WHOIS queue and
// C9's OK/ERROR seam end-to-end.
const (
	// VerbOK tags a reply acknowledging a previously sent verb. Its payload
	// is the in-re verb, the in-re message ID, and a verb-specific body.
	VerbOK uint8 = 0x00

	// VerbError tags a reply reporting that a previously sent verb could
	// not be processed. Its payload is the in-re verb, the in-re message
	// ID, an error code, and a verb-specific body.
	VerbError uint8 = 0x01

	// VerbWhoisRequest tags a request asking the receiver to resolve one or
	// more addresses to full identities. Its OK reply (inReVerb ==
	// VerbWhoisRequest) carries the resolved (address, identity) pairs and
	// is handled by VL1 core directly rather than the InnerProtocol seam,
	// since WHOIS resolution is a C6 responsibility.
	VerbWhoisRequest uint8 = 0x02
)

// okErrorHeaderSize is the fixed portion of an OK or ERROR payload: the
// verb being replied to (1 byte) and that verb's original packet ID reused
// as the in-re message ID (8 bytes).
const okErrorHeaderSize = 9

// parseOKPayload splits an OK payload into the verb/message ID it replies
// to and the verb-specific body that follows.
func parseOKPayload(payload []byte) (inReVerb uint8, inReMessageID uint64, body []byte, ok bool) {
	if len(payload) < okErrorHeaderSize {
		return 0, 0, nil, false
	}
	return payload[0], binary.BigEndian.Uint64(payload[1:9]), payload[okErrorHeaderSize:], true
}

// parseErrorPayload splits an ERROR payload into the verb/message ID it
// replies to, the error code, and the verb-specific body that follows.
func parseErrorPayload(payload []byte) (inReVerb uint8, inReMessageID uint64, errorCode uint8, body []byte, ok bool) {
	if len(payload) < okErrorHeaderSize+1 {
		return 0, 0, 0, nil, false
	}
	return payload[0], binary.BigEndian.Uint64(payload[1:9]), payload[okErrorHeaderSize], payload[okErrorHeaderSize+1:], true
}

// whoisResponseEntrySize is the wire size of one resolved (address,
// identity) pair in a WHOIS OK reply body: the 5-byte address followed by
// the identity's 32-byte public key.
const whoisResponseEntrySize = AddressSize + 32

// whoisResponseEntry is one resolved (address, identity) pair decoded from
// a WHOIS OK reply body.
type whoisResponseEntry struct {
	address  Address
	identity Identity
}

// parseWhoisResponseBody decodes every complete (address, identity) pair
// from a WHOIS OK reply body, ignoring a trailing short remainder.
func parseWhoisResponseBody(body []byte) []whoisResponseEntry {
	var entries []whoisResponseEntry
	for len(body) >= whoisResponseEntrySize {
		var addrBytes [AddressSize]byte
		copy(addrBytes[:], body[:AddressSize])
		addr, ok := AddressFromBytes(addrBytes)

		var pub [32]byte
		copy(pub[:], body[AddressSize:whoisResponseEntrySize])
		body = body[whoisResponseEntrySize:]

		if !ok {
			continue
		}
		entries = append(entries, whoisResponseEntry{address: addr, identity: IdentityFromPublicKey(pub)})
	}
	return entries
}
