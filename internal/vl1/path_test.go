package vl1_test

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// TestPathCanonicalizationStable verifies that repeated, concurrent calls
// to CanonicalPath for the same (endpoint, local socket) yield references
// to the same underlying Path object.
func TestPathCanonicalizationStable(t *testing.T) {
	t.Parallel()

	table := vl1.NewPathTable()
	ep := vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.1:9993"))
	ls := netip.MustParseAddrPort("10.0.0.2:9993")

	const n = 64
	paths := make([]*vl1.Path, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			paths[i] = table.CanonicalPath(ep, ls, "eth0", 1000)
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if paths[i] != paths[0] {
			t.Fatalf("call %d returned a different Path object", i)
		}
	}
	if table.Len() != 1 {
		t.Fatalf("table has %d paths, want 1", table.Len())
	}
}

func TestPathCanonicalizationDistinctKeys(t *testing.T) {
	t.Parallel()

	table := vl1.NewPathTable()
	ep1 := vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.1:9993"))
	ep2 := vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.3:9993"))
	ls := netip.MustParseAddrPort("10.0.0.2:9993")

	p1 := table.CanonicalPath(ep1, ls, "eth0", 0)
	p2 := table.CanonicalPath(ep2, ls, "eth0", 0)
	if p1 == p2 {
		t.Fatal("distinct endpoints produced the same Path object")
	}
	if table.Len() != 2 {
		t.Fatalf("table has %d paths, want 2", table.Len())
	}
}

func TestPathServiceClassification(t *testing.T) {
	t.Parallel()

	p := vl1.NewPathTable().CanonicalPath(
		vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.1:9993")),
		netip.MustParseAddrPort("10.0.0.2:9993"), "eth0", 0)

	if got := p.Service(0); got != vl1.PathOk {
		t.Fatalf("fresh path Service(0) = %v, want PathOk", got)
	}
	if got := p.Service(vl1.PathKeepaliveInterval + 1); got != vl1.PathNeedsKeepalive {
		t.Fatalf("idle path Service() = %v, want PathNeedsKeepalive", got)
	}
	if got := p.Service(vl1.PathAliveTimeout + 1); got != vl1.PathDead {
		t.Fatalf("very idle path Service() = %v, want PathDead", got)
	}

	p.LogReceiveAnything(vl1.PathAliveTimeout + 1)
	if got := p.Service(vl1.PathAliveTimeout + 1); got != vl1.PathOk {
		t.Fatalf("freshly-received path Service() = %v, want PathOk", got)
	}
}
