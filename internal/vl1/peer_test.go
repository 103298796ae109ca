package vl1_test

import (
	"net/netip"
	"testing"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

func TestPeerServiceReportsDeadAfterTimeout(t *testing.T) {
	t.Parallel()

	p, ok := vl1.NewPeer(vl1.GenerateIdentity(), 0)
	if !ok {
		t.Fatal("NewPeer failed unexpectedly")
	}
	if !p.Service(vl1.PeerAliveTimeout) {
		t.Fatal("peer should still be alive exactly at the timeout boundary")
	}
	if p.Service(vl1.PeerAliveTimeout + 1) {
		t.Fatal("peer should be dead just past the timeout boundary")
	}
}

// TestPeerServiceSweepExcludesRoots drives the exclusion through
// Node.DoBackgroundTasks, since the underlying serviceSweep is an
// implementation detail of the peer/root pairing (§5 lock-ordering rule 1):
// a peer pinned as a root must survive the peer-service sweep even after its
// PeerAliveTimeout has elapsed, while an ordinary peer must not.
func TestPeerServiceSweepExcludesRoots(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)

	member, rootID := rootMember(netip.MustParseAddrPort("203.0.113.5:9993"))
	n.AddUpdateRootSet(vl1.RootSet{Name: "default", Version: 1, Members: []vl1.RootMember{member}})
	n.DoBackgroundTasks(host)
	if _, ok := n.Peer(rootID.Address()); !ok {
		t.Fatal("root peer was not installed by root sync")
	}

	normalID := vl1.GenerateIdentity()
	normal, ok := vl1.NewPeer(normalID, host.TimeTicks())
	if !ok {
		t.Fatal("NewPeer failed unexpectedly")
	}
	n.Peers.GetOrUpgradableInsert(normalID.Address(), func() (*vl1.Peer, bool) { return normal, true })

	host.advance(vl1.PeerAliveTimeout + 1)
	n.DoBackgroundTasks(host)

	if _, ok := n.Peer(normalID.Address()); ok {
		t.Fatal("ordinary peer past its alive timeout should have been removed")
	}
	if _, ok := n.Peer(rootID.Address()); !ok {
		t.Fatal("root peer must survive the sweep regardless of its alive timeout")
	}
}

func TestPeerBestPathPrefersMostRecentlyActive(t *testing.T) {
	t.Parallel()

	p, _ := vl1.NewPeer(vl1.GenerateIdentity(), 0)
	table := vl1.NewPathTable()

	old := table.CanonicalPath(vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.1:1")),
		netip.MustParseAddrPort("10.0.0.9:1"), "eth0", 0)
	fresh := table.CanonicalPath(vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.2:1")),
		netip.MustParseAddrPort("10.0.0.9:1"), "eth0", 0)

	p.RecordReceive(old, 100)
	p.RecordReceive(fresh, 500)

	if got := p.BestPath(); got != fresh {
		t.Fatalf("BestPath returned the path last active at %d, want the one at 500", got.LastReceiveTicks())
	}
}

func TestPeerForwardNoopWithoutKnownPath(t *testing.T) {
	t.Parallel()

	p, _ := vl1.NewPeer(vl1.GenerateIdentity(), 0)
	host := newFakeHost()
	p.Forward(host, 0, []byte("data"))
	if len(host.sent) != 0 {
		t.Fatal("Forward with no known path should not send anything")
	}
}

func TestPeerTableGetOrUpgradableInsertIsIdempotent(t *testing.T) {
	t.Parallel()

	table := vl1.NewPeerTable()
	id := vl1.GenerateIdentity()
	calls := 0
	construct := func() (*vl1.Peer, bool) {
		calls++
		p, _ := vl1.NewPeer(id, 0)
		return p, true
	}

	p1, ok1 := table.GetOrUpgradableInsert(id.Address(), construct)
	p2, ok2 := table.GetOrUpgradableInsert(id.Address(), construct)
	if !ok1 || !ok2 {
		t.Fatal("GetOrUpgradableInsert unexpectedly failed")
	}
	if p1 != p2 {
		t.Fatal("second call should return the already-inserted peer")
	}
	if calls != 1 {
		// The second call finds the peer already present on its initial
		// shared read and never reaches construct.
		t.Fatalf("construct call count = %d, want 1", calls)
	}
	if table.Len() != 1 {
		t.Fatalf("table length = %d, want 1", table.Len())
	}
}
