package vl1_test

import (
	"sync"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// fakeHost is a minimal, controllable HostSystem for testing: a settable
// clock, a capturing wire-send log, and a captured event log.
type fakeHost struct {
	mu sync.Mutex

	nowTicks int64

	sent   []sentPacket
	events []vl1.Event

	invalidSockets map[vl1.LocalSocket]bool
}

type sentPacket struct {
	endpoint vl1.Endpoint
	data     []byte
}

func newFakeHost() *fakeHost {
	return &fakeHost{invalidSockets: make(map[vl1.LocalSocket]bool)}
}

func (h *fakeHost) Event(e vl1.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *fakeHost) LocalSocketIsValid(ls vl1.LocalSocket) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.invalidSockets[ls]
}

func (h *fakeHost) WireSend(ep vl1.Endpoint, _ vl1.LocalSocket, _ vl1.LocalInterface, data []byte, _ uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	h.sent = append(h.sent, sentPacket{endpoint: ep, data: cp})
}

func (h *fakeHost) TimeTicks() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nowTicks
}

func (h *fakeHost) TimeClock() int64 { return h.TimeTicks() }

func (h *fakeHost) advance(ms int64) {
	h.mu.Lock()
	h.nowTicks += ms
	h.mu.Unlock()
}

func (h *fakeHost) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *fakeHost) onlineEvents() []vl1.EventOnline {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []vl1.EventOnline
	for _, e := range h.events {
		if oe, ok := e.(vl1.EventOnline); ok {
			out = append(out, oe)
		}
	}
	return out
}

func (h *fakeHost) securityWarnings() []vl1.EventSecurityWarning {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []vl1.EventSecurityWarning
	for _, e := range h.events {
		if w, ok := e.(vl1.EventSecurityWarning); ok {
			out = append(out, w)
		}
	}
	return out
}

// memStorage is an in-memory NodeStorage for tests.
type memStorage struct {
	id Identity
	ok bool
}

type Identity = vl1.Identity

func (s *memStorage) LoadNodeIdentity() (Identity, bool) { return s.id, s.ok }
func (s *memStorage) SaveNodeIdentity(id Identity)       { s.id, s.ok = id, true }

// fakeWhoisSender records every SendWhois call.
type fakeWhoisSender struct {
	mu    sync.Mutex
	calls [][]vl1.Address
}

func (s *fakeWhoisSender) SendWhois(_ vl1.HostSystem, _ *vl1.Peer, addresses []vl1.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]vl1.Address, len(addresses))
	copy(cp, addresses)
	s.calls = append(s.calls, cp)
}

func (s *fakeWhoisSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// buildV1Packet constructs a complete (unfragmented) legacy v1 packet.
func buildV1Packet(packetID uint64, dest, source vl1.Address, hops uint8, verb uint8, payload []byte) []byte {
	buf := make([]byte, vl1.V1HeaderSize+len(payload))
	for i := 0; i < 8; i++ {
		buf[i] = byte(packetID >> (8 * (7 - i)))
	}
	copy(buf[8:13], dest[:])
	copy(buf[13:18], source[:])
	buf[18] = hops & 0x0f
	buf[19] = verb
	copy(buf[vl1.V1HeaderSize:], payload)
	return buf
}

// buildV1Fragment constructs one fragment of a fragmented legacy v1 packet.
// Fragment 0 carries the full header (including source address) as the
// upstream format requires; later fragments reuse the same packet-id at
// offset 0 but their dest/source/flags fields are not consulted by the
// reassembler.
func buildV1Fragment(packetID uint64, dest, source vl1.Address, fragmentNo, fragmentCount int, payload []byte) []byte {
	buf := make([]byte, vl1.V1HeaderSize+len(payload))
	for i := 0; i < 8; i++ {
		buf[i] = byte(packetID >> (8 * (7 - i)))
	}
	copy(buf[8:13], dest[:])
	copy(buf[13:18], source[:])
	buf[18] = 0x80 // fragment bit
	buf[19] = byte((fragmentCount-1)<<4) | byte(fragmentNo)
	copy(buf[vl1.V1HeaderSize:], payload)
	return buf
}
