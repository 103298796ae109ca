package vl1_test

import (
	"net/netip"
	"testing"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

func newTestNode(t *testing.T, self vl1.Identity) (*vl1.Node, *fakeHost) {
	t.Helper()
	host := newFakeHost()
	storage := &memStorage{id: self, ok: true}
	n, err := vl1.NewNode(host, storage, false)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return n, host
}

func rootMember(ep netip.AddrPort) (vl1.RootMember, vl1.Identity) {
	id := vl1.GenerateIdentity()
	return vl1.RootMember{Identity: id, Endpoints: []vl1.Endpoint{vl1.NewIPEndpoint(ep)}}, id
}

// TestBootstrapGoesOnlineOnHelloReply exercises scenario S1: a node with one
// root defined is offline until that root replies to a HELLO, at which point
// DoBackgroundTasks's root-sync/best-root pass flips it online with exactly
// one EventOnline (property 4).
func TestBootstrapGoesOnlineOnHelloReply(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)

	member, rootID := rootMember(netip.MustParseAddrPort("203.0.113.1:9993"))
	rs := vl1.RootSet{Name: "default", Version: 1, Members: []vl1.RootMember{member}}
	if !n.AddUpdateRootSet(rs) {
		t.Fatal("AddUpdateRootSet on a brand-new set should report true")
	}

	n.DoBackgroundTasks(host)
	if n.IsOnline() {
		t.Fatal("node should not be online before any root has replied")
	}

	root, ok := n.Peer(rootID.Address())
	if !ok {
		t.Fatal("root peer was not created by root sync")
	}
	root.RecordHelloReply(host.TimeTicks())

	host.advance(vl1.RootSyncInterval)
	n.DoBackgroundTasks(host)
	if !n.IsOnline() {
		t.Fatal("node should be online once its root replied within the window")
	}
	if got := len(host.onlineEvents()); got != 1 {
		t.Fatalf("online event count = %d, want exactly 1", got)
	}

	// A further tick within the window must not re-fire the event.
	host.advance(vl1.RootSyncInterval)
	n.DoBackgroundTasks(host)
	if got := len(host.onlineEvents()); got != 1 {
		t.Fatalf("online event count after a steady-state tick = %d, want still 1", got)
	}
}

// TestOfflineTransitionFiresExactlyOnce extends S1: once the best root's
// HELLO reply falls outside 2*RootHelloInterval, the node goes back offline
// with exactly one further EventOnline.
func TestOfflineTransitionFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)

	member, rootID := rootMember(netip.MustParseAddrPort("203.0.113.1:9993"))
	n.AddUpdateRootSet(vl1.RootSet{Name: "default", Version: 1, Members: []vl1.RootMember{member}})
	n.DoBackgroundTasks(host)

	root, _ := n.Peer(rootID.Address())
	root.RecordHelloReply(host.TimeTicks())
	host.advance(vl1.RootSyncInterval)
	n.DoBackgroundTasks(host)
	if !n.IsOnline() {
		t.Fatal("expected online after hello reply")
	}

	host.advance(2*vl1.RootHelloInterval + 1)
	n.DoBackgroundTasks(host)
	if n.IsOnline() {
		t.Fatal("expected offline after the reply window elapsed")
	}
	if got := len(host.onlineEvents()); got != 2 {
		t.Fatalf("online event count = %d, want 2 (one online, one offline)", got)
	}
}

// TestRemoteUpdateRootSetReplacesExisting covers scenario S2 (root
// rotation): a higher-version root set received over the wire from an
// existing member replaces the trusted set.
func TestRemoteUpdateRootSetReplacesExisting(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)

	oldMember, oldRootID := rootMember(netip.MustParseAddrPort("203.0.113.1:9993"))
	n.AddUpdateRootSet(vl1.RootSet{Name: "default", Version: 1, Members: []vl1.RootMember{oldMember}})
	n.DoBackgroundTasks(host)
	if _, ok := n.Peer(oldRootID.Address()); !ok {
		t.Fatal("original root was not installed")
	}

	newMember, newRootID := rootMember(netip.MustParseAddrPort("203.0.113.2:9993"))
	rotated := vl1.RootSet{Name: "default", Version: 2, Members: []vl1.RootMember{oldMember, newMember}}
	n.RemoteUpdateRootSet(oldRootID, rotated)
	host.advance(vl1.RootSyncInterval)
	n.DoBackgroundTasks(host)

	if !n.IsPeerRoot(mustPeer(t, n, newRootID.Address())) {
		t.Fatal("rotated-in root should be a trusted root")
	}

	// A remote update from a non-member must be rejected (never adds a new
	// trusted name, property 5).
	strangerID := vl1.GenerateIdentity()
	bogus := vl1.RootSet{Name: "brand-new-set", Version: 1, Members: []vl1.RootMember{newMember}}
	n.RemoteUpdateRootSet(strangerID, bogus)
	found := false
	for _, rs := range n.RootSets() {
		if rs.Name == "brand-new-set" {
			found = true
		}
	}
	if found {
		t.Fatal("RemoteUpdateRootSet must never introduce a brand-new trusted set name")
	}

	// A remote update with a non-greater version must be rejected.
	n.RemoteUpdateRootSet(oldRootID, vl1.RootSet{Name: "default", Version: 2, Members: []vl1.RootMember{oldMember}})
	for _, rs := range n.RootSets() {
		if rs.Name == "default" && rs.Version != 2 {
			t.Fatalf("stale remote update should not have changed version, got %d", rs.Version)
		}
	}
}

// TestAddressCollisionExcludesBothFromRoots covers scenario S3: two distinct
// identities that derive the same address must both be excluded from the
// live roots map (property 6), with a SecurityWarning event emitted.
func TestAddressCollisionExcludesBothFromRoots(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)

	// A genuine SHA-512 address collision can't be manufactured in a unit
	// test, so this exercises the same code path root sync uses to detect
	// one: a root-set member whose derived address already names a
	// different identity in the live peer table.
	ep := netip.MustParseAddrPort("203.0.113.9:9993")
	real := vl1.GenerateIdentity()
	realMember := vl1.RootMember{Identity: real, Endpoints: []vl1.Endpoint{vl1.NewIPEndpoint(ep)}}

	existingPeer, ok := vl1.NewPeer(vl1.GenerateIdentity(), host.TimeTicks())
	if !ok {
		t.Fatal("NewPeer failed unexpectedly")
	}
	// Force a pre-existing peer table entry at real's address under a
	// different identity, simulating an address collision discovered
	// against already-known peers.
	collidingAddr := real.Address()
	existingPeer.Address = collidingAddr
	n.Peers.GetOrUpgradableInsert(collidingAddr, func() (*vl1.Peer, bool) { return existingPeer, true })

	n.AddUpdateRootSet(vl1.RootSet{Name: "default", Version: 1, Members: []vl1.RootMember{realMember}})
	n.DoBackgroundTasks(host)

	if n.IsPeerRoot(existingPeer) {
		t.Fatal("a peer colliding with a root-set member must not become a trusted root")
	}
	if got := len(host.securityWarnings()); got == 0 {
		t.Fatal("expected at least one SecurityWarning event for the collision")
	}
}

// TestSelfOnlyRootSetMarksThisNodeAsRoot guards against a regression where
// rm.thisRootSets was only written when the non-self roots address set
// itself changed: a set whose only member is self never touches that
// address set (self is excluded from roots), so ThisNodeIsRoot() must still
// flip true on the very first sync.
func TestSelfOnlyRootSetMarksThisNodeAsRoot(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)

	if n.ThisNodeIsRoot() {
		t.Fatal("a node with no root sets must not consider itself a root")
	}

	rs := vl1.RootSet{Name: "core", Version: 1, Members: []vl1.RootMember{{Identity: self}}}
	if !n.AddUpdateRootSet(rs) {
		t.Fatal("AddUpdateRootSet on a brand-new set should report true")
	}

	n.DoBackgroundTasks(host)
	if !n.ThisNodeIsRoot() {
		t.Fatal("self's membership in a trusted root set must be reflected after the first sync")
	}

	// A second sync with no set modification must not regress the flag.
	n.DoBackgroundTasks(host)
	if !n.ThisNodeIsRoot() {
		t.Fatal("ThisNodeIsRoot must remain true across a no-op sync")
	}
}

// rejectingInner is an InnerProtocol whose ShouldCommunicateWith vetoes
// every identity, used to verify that root sync consults it before
// admitting a root-set member as a peer.
type rejectingInner struct{ recordingInner }

func (rejectingInner) ShouldCommunicateWith(vl1.Identity) bool { return false }

// TestRootSyncConsultsShouldCommunicateWith covers the veto path: a root
// whose identity the InnerProtocol refuses to talk to must never become a
// trusted root peer.
func TestRootSyncConsultsShouldCommunicateWith(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	host := newFakeHost()
	storage := &memStorage{id: self, ok: true}
	n, err := vl1.NewNode(host, storage, false, vl1.WithInnerProtocol(&rejectingInner{}))
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	member, rootID := rootMember(netip.MustParseAddrPort("203.0.113.5:9993"))
	n.AddUpdateRootSet(vl1.RootSet{Name: "default", Version: 1, Members: []vl1.RootMember{member}})
	n.DoBackgroundTasks(host)

	if _, ok := n.Peer(rootID.Address()); ok {
		t.Fatal("a root vetoed by ShouldCommunicateWith must not be installed as a peer")
	}
}

func mustPeer(t *testing.T, n *vl1.Node, addr vl1.Address) *vl1.Peer {
	t.Helper()
	p, ok := n.Peer(addr)
	if !ok {
		t.Fatalf("expected peer at %s", addr)
	}
	return p
}
