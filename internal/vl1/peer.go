package vl1

import (
	"sync"
	"sync/atomic"
)

// PeerServiceInterval is how often the background scheduler runs the
// peer-service sweep (C7, §4.7).
const PeerServiceInterval = 1000 // milliseconds

// PeerAliveTimeout is how long a peer may go without a successful receive
// before its Service call reports end-of-life.
const PeerAliveTimeout = 600000 // milliseconds (10 minutes)

// Peer is a known remote node: its identity, address, and the set of
// physical paths currently usable to reach it. Peer and Path objects are
// immutable after construction except for their counters and activity
// timestamps, which use atomics so transient I/O callers can update them
// without taking the peer table's lock.
type Peer struct {
	Identity Identity
	Address  Address

	lastHelloReplyTicks atomic.Int64
	lastReceiveTicks    atomic.Int64

	pathsMu sync.RWMutex
	paths   map[pathKey]*Path

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	packetsForwarded atomic.Uint64
}

// NewPeer constructs a Peer for the given identity at nowTicks. It returns
// false if the identity is invalid (its derived address is the reserved
// zero address) — the Go analogue of the upstream's fallible Peer::new,
// whose failure the root-sync sweep reports as a SecurityWarning event
// rather than propagating as an error.
func NewPeer(id Identity, nowTicks int64) (*Peer, bool) {
	if !id.Address().IsValid() {
		return nil, false
	}
	p := &Peer{
		Identity: id,
		Address:  id.Address(),
		paths:    make(map[pathKey]*Path),
	}
	p.lastReceiveTicks.Store(nowTicks)
	p.lastHelloReplyTicks.Store(-1)
	return p, true
}

// LastHelloReplyTicks returns the last time this peer replied to a HELLO,
// or -1 if it has never replied. The root manager's best-root election
// reads this directly.
func (p *Peer) LastHelloReplyTicks() int64 { return p.lastHelloReplyTicks.Load() }

// RecordHelloReply records that this peer replied to a HELLO at nowTicks.
func (p *Peer) RecordHelloReply(nowTicks int64) { p.lastHelloReplyTicks.Store(nowTicks) }

// RecordReceive records a successful packet receive from this peer over
// path, learning the path as usable for this peer if it wasn't already.
func (p *Peer) RecordReceive(path *Path, nowTicks int64) {
	p.lastReceiveTicks.Store(nowTicks)
	p.packetsReceived.Add(1)
	path.LogReceiveAnything(nowTicks)

	key := pathKey{endpoint: path.Endpoint, localSocket: path.LocalSocket}
	p.pathsMu.RLock()
	_, known := p.paths[key]
	p.pathsMu.RUnlock()
	if !known {
		p.pathsMu.Lock()
		p.paths[key] = path
		p.pathsMu.Unlock()
	}
}

// BestPath returns the peer's most recently active known path, or nil if
// the peer has no known paths.
func (p *Peer) BestPath() *Path {
	p.pathsMu.RLock()
	defer p.pathsMu.RUnlock()
	var best *Path
	var bestTicks int64 = -1
	for _, path := range p.paths {
		if t := path.LastReceiveTicks(); t > bestTicks {
			bestTicks = t
			best = path
		}
	}
	return best
}

// Forward emits data toward this peer over its best path via the
// host-system's wire-send. It is a no-op if the peer has no known path.
// Forwarding never consults the reassembler: fragments are forwarded
// verbatim.
func (p *Peer) Forward(host HostSystem, nowTicks int64, data []byte) {
	path := p.BestPath()
	if path == nil {
		return
	}
	host.WireSend(path.Endpoint, path.LocalSocket, path.LocalInterface, data, 0)
	p.packetsForwarded.Add(1)
}

// SendHello transmits a HELLO to the peer. If endpoint is given, the HELLO
// is sent to that specific endpoint (used by the root manager, which
// HELLOs every declared endpoint of every root); otherwise it is sent over
// the peer's best known path.
func (p *Peer) SendHello(host HostSystem, payload []byte, endpoint *Endpoint) {
	if endpoint != nil {
		host.WireSend(*endpoint, LocalSocket{}, "", payload, 0)
		p.packetsSent.Add(1)
		return
	}
	if path := p.BestPath(); path != nil {
		host.WireSend(path.Endpoint, path.LocalSocket, path.LocalInterface, payload, 0)
		p.packetsSent.Add(1)
	}
}

// Service reports whether this peer is still alive at nowTicks. A peer
// that has not been heard from within PeerAliveTimeout is end-of-life; the
// peer-service sweep removes such peers unless they are pinned as a root.
func (p *Peer) Service(nowTicks int64) bool {
	return nowTicks-p.lastReceiveTicks.Load() <= PeerAliveTimeout
}

// Counters is a point-in-time snapshot of a peer's traffic counters.
type Counters struct {
	PacketsSent      uint64
	PacketsReceived  uint64
	PacketsForwarded uint64
}

// Snapshot returns a copy of the peer's current counters.
func (p *Peer) Snapshot() Counters {
	return Counters{
		PacketsSent:      p.packetsSent.Load(),
		PacketsReceived:  p.packetsReceived.Load(),
		PacketsForwarded: p.packetsForwarded.Load(),
	}
}

// PeerTable is the address-keyed table of known peers (C4).
type PeerTable struct {
	mu    sync.RWMutex
	peers map[Address]*Peer
}

// NewPeerTable constructs an empty peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[Address]*Peer)}
}

// Get is a cheap shared read returning the peer at address, if any.
func (t *PeerTable) Get(address Address) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[address]
	return p, ok
}

// GetOrUpgradableInsert looks up the peer at address under a shared read;
// on a miss it calls construct (which must not block on the table's lock)
// and, if construct succeeds, inserts the new peer under an exclusive
// write lock taken only for the insertion itself. This mirrors the
// upstream's upgradable-read pattern during root sync (§5): readers of
// peers are not blocked by the whole sweep, only by the brief insert.
func (t *PeerTable) GetOrUpgradableInsert(address Address, construct func() (*Peer, bool)) (*Peer, bool) {
	t.mu.RLock()
	if p, ok := t.peers[address]; ok {
		t.mu.RUnlock()
		return p, true
	}
	t.mu.RUnlock()

	np, ok := construct()
	if !ok {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.peers[address]; ok {
		return existing, true
	}
	t.peers[address] = np
	return np, true
}

// Remove deletes the peer at address, if present.
func (t *PeerTable) Remove(address Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, address)
}

// Len returns the number of known peers.
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// serviceSweep reports addresses whose Service() call returned false and
// that are not present in roots, for removal by the caller. isRoot is
// queried while iterating under the peer table's read lock; the caller
// supplies it already evaluated against a snapshot of the roots read lock
// per the lock-ordering discipline (roots before peers).
func (t *PeerTable) serviceSweep(nowTicks int64, isRoot func(*Peer) bool) []Address {
	var dead []Address
	t.mu.RLock()
	for addr, p := range t.peers {
		if !p.Service(nowTicks) && !isRoot(p) {
			dead = append(dead, addr)
		}
	}
	t.mu.RUnlock()
	return dead
}
