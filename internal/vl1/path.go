package vl1

import (
	"sync"
	"sync/atomic"
)

// Path-service tuning constants. These mirror the roles of ROOT_HELLO_*
// and peer/path SERVICE_INTERVAL_MS constants in the upstream source; VL1's
// core leaves the exact values to the embedding runtime's configuration,
// but ships sane defaults.
const (
	// PathServiceInterval is how often the background scheduler runs the
	// path-service sweep (C7, §4.7).
	PathServiceInterval = 1000 // milliseconds

	// PathAliveTimeout is how long a path may go without receiving
	// anything before the service sweep classifies it Dead.
	PathAliveTimeout = 300000 // milliseconds (5 minutes)

	// PathKeepaliveInterval is how long a path may go without receiving
	// anything before the service sweep asks for a keepalive to be sent.
	PathKeepaliveInterval = 20000 // milliseconds (20 seconds)
)

// PathServiceResult is the outcome of a single Path.Service call.
type PathServiceResult uint8

const (
	// PathOk indicates the path is alive and needs no action.
	PathOk PathServiceResult = iota
	// PathDead indicates the path has not received anything within
	// PathAliveTimeout and should be removed from the path table.
	PathDead
	// PathNeedsKeepalive indicates the path is idle beyond
	// PathKeepaliveInterval and a keepalive datagram should be sent.
	PathNeedsKeepalive
)

// legacyFragment is one fragment of a legacy (v1) packet: raw wire bytes
// including whatever header the fragment carries. Reassembly operates on
// whole fragment buffers; C8 inspects fragment 0's packet header after
// assembly completes.
type legacyFragment []byte

// Path is a canonicalized (endpoint, local-socket) pair: a shared record
// jointly owned by the path table and whatever peer is currently using it.
// Its counters and timestamps use atomics so readers holding only a shared
// reference can update activity state without any lock beyond the path
// table's.
type Path struct {
	Endpoint      Endpoint
	LocalSocket   LocalSocket
	LocalInterface LocalInterface

	createdTicks     int64
	lastReceiveTicks atomic.Int64

	reassemblyMu sync.Mutex
	reassembly   Reassembler[legacyFragment]
}

// newPath constructs a Path initialized at the given creation time.
func newPath(ep Endpoint, ls LocalSocket, li LocalInterface, nowTicks int64) *Path {
	p := &Path{
		Endpoint:       ep,
		LocalSocket:    ls,
		LocalInterface: li,
		createdTicks:   nowTicks,
	}
	p.lastReceiveTicks.Store(nowTicks)
	return p
}

// LogReceiveAnything records that something was received on this path at
// nowTicks, regardless of whether it parses as a valid packet.
func (p *Path) LogReceiveAnything(nowTicks int64) {
	p.lastReceiveTicks.Store(nowTicks)
}

// LastReceiveTicks returns the last time anything was received on this path.
func (p *Path) LastReceiveTicks() int64 { return p.lastReceiveTicks.Load() }

// CreatedTicks returns the tick at which this path was created.
func (p *Path) CreatedTicks() int64 { return p.createdTicks }

// ReceiveFragment feeds one legacy-framing fragment into this path's
// reassembler. See Reassembler.Assemble for semantics; packetID is the
// reassembly counter.
func (p *Path) ReceiveFragment(packetID uint64, fragmentNo, fragmentCount int, data []byte) (Assembled[legacyFragment], bool) {
	p.reassemblyMu.Lock()
	defer p.reassemblyMu.Unlock()
	return p.reassembly.Assemble(packetID, legacyFragment(data), fragmentNo, fragmentCount)
}

// Service classifies this path's liveness at nowTicks. It never inspects or
// mutates the path table; callers (the C7 path-service sweep) are
// responsible for removing Dead paths and sending keepalives for
// NeedsKeepalive paths without holding any lock across the send.
func (p *Path) Service(nowTicks int64) PathServiceResult {
	idle := nowTicks - p.lastReceiveTicks.Load()
	switch {
	case idle > PathAliveTimeout:
		return PathDead
	case idle > PathKeepaliveInterval:
		return PathNeedsKeepalive
	default:
		return PathOk
	}
}

// pathKey canonicalizes a Path's table key. Endpoint and LocalSocket are
// both plain comparable values, so the key itself is comparable and usable
// directly as a Go map key without the borrowed/owned key duality the
// upstream Rust implementation needs to avoid an allocation on lookup.
type pathKey struct {
	endpoint    Endpoint
	localSocket LocalSocket
}

// PathTable is the canonicalized table of physical paths (C3). Every
// (endpoint, local_socket) pair maps to at most one Path.
type PathTable struct {
	mu    sync.RWMutex
	paths map[pathKey]*Path
}

// NewPathTable constructs an empty path table.
func NewPathTable() *PathTable {
	return &PathTable{paths: make(map[pathKey]*Path)}
}

// CanonicalPath returns the shared Path for (ep, ls), creating it with the
// given interface and creation time if it does not already exist. Lookups
// are a cheap shared read; only a miss takes the exclusive lock, and the
// table is re-probed after acquiring it in case another writer raced in
// first.
func (t *PathTable) CanonicalPath(ep Endpoint, ls LocalSocket, li LocalInterface, nowTicks int64) *Path {
	key := pathKey{endpoint: ep, localSocket: ls}

	t.mu.RLock()
	if p, ok := t.paths[key]; ok {
		t.mu.RUnlock()
		return p
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.paths[key]; ok {
		return p
	}
	p := newPath(ep, ls, li, nowTicks)
	t.paths[key] = p
	return p
}

// Lookup returns the Path for (ep, ls) if one exists, without creating it.
func (t *PathTable) Lookup(ep Endpoint, ls LocalSocket) (*Path, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.paths[pathKey{endpoint: ep, localSocket: ls}]
	return p, ok
}

// Len returns the number of canonicalized paths.
func (t *PathTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.paths)
}

// serviceSweepResult is the split output of a path-service sweep: keys to
// remove and paths that need a keepalive send.
type serviceSweepResult struct {
	dead         []pathKey
	needKeepalive []*Path
}

// serviceSweep classifies every path under a shared read, removes dead
// paths under a brief exclusive lock, and returns the paths that need a
// keepalive so the caller can send them without holding any lock. A path
// whose local socket fails host.LocalSocketIsValid is classified Dead
// regardless of its own Service() verdict.
func (t *PathTable) serviceSweep(host HostSystem, nowTicks int64) serviceSweepResult {
	var res serviceSweepResult

	t.mu.RLock()
	for k, p := range t.paths {
		if !host.LocalSocketIsValid(k.localSocket) {
			res.dead = append(res.dead, k)
			continue
		}
		switch p.Service(nowTicks) {
		case PathDead:
			res.dead = append(res.dead, k)
		case PathNeedsKeepalive:
			res.needKeepalive = append(res.needKeepalive, p)
		}
	}
	t.mu.RUnlock()

	if len(res.dead) > 0 {
		t.mu.Lock()
		for _, k := range res.dead {
			delete(t.paths, k)
		}
		t.mu.Unlock()
	}

	return res
}
