package vl1

import (
	"sort"
	"sync"
)

// Root-manager tuning constants (§4.5, §4.7).
const (
	// RootSyncInterval is how often the background scheduler checks for
	// root-set modifications and rebuilds the roots map if needed.
	RootSyncInterval = 1000 // milliseconds

	// RootHelloInterval is the normal cadence at which HELLOs are sent to
	// every declared endpoint of every root.
	RootHelloInterval = 10000 // milliseconds

	// RootHelloSpamInterval is the faster cadence used in addition to
	// RootHelloInterval while the node is offline, to re-establish contact
	// quickly.
	RootHelloSpamInterval = 2000 // milliseconds
)

// rootEntry pairs a root peer with the endpoints at which it was declared
// reachable in the root set(s) that named it.
type rootEntry struct {
	peer      *Peer
	endpoints []Endpoint
}

// RootManager holds root-set membership, collision defense, and best-root
// selection (C5). Its sets/roots/online state is one lockable domain
// (mirroring the upstream's single RootInfo aggregate); BestRoot is a
// second, independently lockable domain, per the lock-ordering discipline
// in spec.md §5.
type RootManager struct {
	mu             sync.RWMutex
	sets           map[string]RootSet
	roots          map[Address]rootEntry
	thisRootSets   []RootSet
	setsModified   bool
	online         bool

	bestMu   sync.RWMutex
	bestRoot *Peer
}

// NewRootManager constructs an empty root manager: no trusted sets, no
// roots, offline.
func NewRootManager() *RootManager {
	return &RootManager{
		sets:  make(map[string]RootSet),
		roots: make(map[Address]rootEntry),
	}
}

// AddUpdateRootSet adds rs as a newly trusted set, or replaces the existing
// set of the same name if rs.ShouldReplace(existing). It is the only
// operation that can introduce a brand-new trusted name (§4.5, property 5).
func (rm *RootManager) AddUpdateRootSet(rs RootSet) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if existing, ok := rm.sets[rs.Name]; ok {
		if !rs.ShouldReplace(existing) {
			return false
		}
	}
	rm.sets[rs.Name] = rs
	rm.setsModified = true
	return true
}

// RemoteUpdateRootSet applies a root-set update received over the wire from
// `from`. It is accepted only if a set of that name already exists, `from`
// is a current member of it, and rs.ShouldReplace(existing) — it never adds
// a new trusted name (§4.5, §8 property 5).
func (rm *RootManager) RemoteUpdateRootSet(from Identity, rs RootSet) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	existing, ok := rm.sets[rs.Name]
	if !ok {
		return
	}
	if !existing.hasMember(from) {
		return
	}
	if !rs.ShouldReplace(existing) {
		return
	}
	rm.sets[rs.Name] = rs
	rm.setsModified = true
}

// HasRootsDefined reports whether any trusted set currently has members.
func (rm *RootManager) HasRootsDefined() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, rs := range rm.sets {
		if len(rs.Members) > 0 {
			return true
		}
	}
	return false
}

// RootSets returns the trusted root sets this node currently knows about.
func (rm *RootManager) RootSets() []RootSet {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]RootSet, 0, len(rm.sets))
	for _, rs := range rm.sets {
		out = append(out, rs)
	}
	return out
}

// ThisNodeIsRoot reports whether this node's own identity appears as a
// member of at least one trusted root set.
func (rm *RootManager) ThisNodeIsRoot() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.thisRootSets) > 0
}

// IsPeerRoot reports whether peer is currently a trusted root.
func (rm *RootManager) IsPeerRoot(peer *Peer) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.roots[peer.Address]
	return ok
}

// isRootLocked is the lock-free predicate form used by the peer-service
// sweep, which already holds rm.mu.RLock when it calls this (see
// Node.serviceTickPeers).
func (rm *RootManager) isRootLocked(peer *Peer) bool {
	_, ok := rm.roots[peer.Address]
	return ok
}

// BestRoot returns the current best root, or nil if there is none.
func (rm *RootManager) BestRoot() *Peer {
	rm.bestMu.RLock()
	defer rm.bestMu.RUnlock()
	return rm.bestRoot
}

// IsOnline reports whether this node currently considers itself online
// (able to reach at least one root).
func (rm *RootManager) IsOnline() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.online
}

// rootSync performs the §4.5 root-sync algorithm: if no set has been
// modified since the last sync, it only runs best-root selection. Otherwise
// it rebuilds the
// roots map from scratch, detecting address collisions and skipping
// invalid identities, emits SecurityWarning/UpdatedRoots events as needed,
// and finally runs best-root selection.
func (rm *RootManager) rootSync(host HostSystem, peers *PeerTable, self Identity, inner InnerProtocol, nowTicks int64) {
	rm.mu.Lock()
	if !rm.setsModified {
		rm.mu.Unlock()
		rm.updateBestRoot(host, nowTicks)
		return
	}
	rm.setsModified = false

	oldIdentities := make([]Address, 0, len(rm.roots))
	for addr := range rm.roots {
		oldIdentities = append(oldIdentities, addr)
	}

	// Pass 1: detect address collisions across all sets, and collect this
	// node's own membership.
	addressIdentity := make(map[Address]Identity)
	collisions := make(map[Address]struct{})
	var thisRootSets []RootSet
	for _, rs := range rm.sets {
		for _, m := range rs.Members {
			if m.Identity.Equal(self) {
				thisRootSets = append(thisRootSets, rs)
				continue
			}
			addr := m.Identity.Address()
			if existingID, ok := addressIdentity[addr]; ok {
				if !existingID.Equal(m.Identity) {
					collisions[addr] = struct{}{}
				}
				continue
			}
			addressIdentity[addr] = m.Identity
			if existingPeer, ok := peers.Get(addr); ok && !existingPeer.Identity.Equal(m.Identity) {
				collisions[addr] = struct{}{}
			}
		}
	}

	// Pass 2: build the new roots map, skipping collisions, the self
	// identity, and members with no declared endpoints.
	newRoots := make(map[Address]rootEntry)
	var badIdentities []Identity
	for _, rs := range rm.sets {
		for _, m := range rs.Members {
			if m.Identity.Equal(self) || len(m.Endpoints) == 0 {
				continue
			}
			addr := m.Identity.Address()
			if _, bad := collisions[addr]; bad {
				continue
			}
			if !inner.ShouldCommunicateWith(m.Identity) {
				continue
			}
			peer, ok := peers.GetOrUpgradableInsert(addr, func() (*Peer, bool) {
				return NewPeer(m.Identity, nowTicks)
			})
			if !ok {
				badIdentities = append(badIdentities, m.Identity)
				continue
			}
			newRoots[addr] = rootEntry{peer: peer, endpoints: m.Endpoints}
		}
	}
	rm.mu.Unlock()

	for addr := range collisions {
		host.Event(EventSecurityWarning{Text: "address/identity collision in root sets: " + addr.String()})
	}
	for _, id := range badIdentities {
		host.Event(EventSecurityWarning{Text: "bad identity in root set, skipping: " + id.Address().String()})
	}

	newIdentities := make([]Address, 0, len(newRoots))
	for addr := range newRoots {
		newIdentities = append(newIdentities, addr)
	}
	sort.Slice(oldIdentities, func(i, j int) bool { return lessAddress(oldIdentities[i], oldIdentities[j]) })
	sort.Slice(newIdentities, func(i, j int) bool { return lessAddress(newIdentities[i], newIdentities[j]) })

	// rm.roots and rm.thisRootSets are written on every sync that actually
	// ran, independent of whether the non-self roots address set itself
	// changed: this node's own membership in a trusted set (thisRootSets,
	// and therefore ThisNodeIsRoot) can change even when no other root's
	// address set did — e.g. a set whose only member is self. The
	// UpdatedRoots event still fires only when the roots address set
	// differs.
	rm.mu.Lock()
	rm.roots = newRoots
	rm.thisRootSets = thisRootSets
	rm.mu.Unlock()

	if !equalAddressSlices(oldIdentities, newIdentities) {
		host.Event(EventUpdatedRoots{Old: oldIdentities, New: newIdentities})
	}

	rm.updateBestRoot(host, nowTicks)
}

// updateBestRoot implements §4.5 best-root selection: the root with the
// greatest last-HELLO-reply time wins. The node is online iff that time is
// within 2*RootHelloInterval of now. An Online event fires exactly once
// per transition (§8 property 4).
func (rm *RootManager) updateBestRoot(host HostSystem, nowTicks int64) {
	rm.mu.RLock()
	var best *Peer
	var latest int64 = -1
	for _, entry := range rm.roots {
		if t := entry.peer.LastHelloReplyTicks(); t > latest {
			latest = t
			best = entry.peer
		}
	}
	wasOnline := rm.online
	rm.mu.RUnlock()

	rm.bestMu.Lock()
	rm.bestRoot = best
	rm.bestMu.Unlock()

	nowOnline := best != nil && (nowTicks-latest) < 2*RootHelloInterval
	if nowOnline != wasOnline {
		rm.mu.Lock()
		rm.online = nowOnline
		rm.mu.Unlock()
		host.Event(EventOnline{Online: nowOnline})
	}
}

// sendRootHellos sends payload to every declared endpoint of every current
// root (§4.5: roots are HELLO'd on every endpoint, unlike ordinary peers,
// so the node learns its externally observed address from each).
func (rm *RootManager) sendRootHellos(host HostSystem, payload []byte) {
	rm.mu.RLock()
	type rootCopy struct {
		peer      *Peer
		endpoints []Endpoint
	}
	copies := make([]rootCopy, 0, len(rm.roots))
	for _, entry := range rm.roots {
		copies = append(copies, rootCopy{peer: entry.peer, endpoints: entry.endpoints})
	}
	rm.mu.RUnlock()

	for _, rc := range copies {
		for _, ep := range rc.endpoints {
			ep := ep
			rc.peer.SendHello(host, payload, &ep)
		}
	}
}

func lessAddress(a, b Address) bool {
	for i := 0; i < AddressSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func equalAddressSlices(a, b []Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
