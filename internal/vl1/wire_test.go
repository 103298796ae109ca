package vl1_test

import (
	"net/netip"
	"testing"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

func TestIsV2Wire(t *testing.T) {
	t.Parallel()

	v2 := make([]byte, 20)
	v2[8] = 0xff
	if !vl1.IsV2Wire(v2) {
		t.Fatal("expected the 0xff discriminator to be recognized as v2")
	}

	v1 := buildV1Packet(1, vl1.Address{1}, vl1.Address{2}, 0, 0, nil)
	if vl1.IsV2Wire(v1) {
		t.Fatal("a legacy v1 packet must not be misidentified as v2")
	}

	if vl1.IsV2Wire([]byte{0x01, 0x02}) {
		t.Fatal("a too-short datagram must not be classified as v2")
	}
}

func TestHandleIncomingPhysicalPacketIgnoresV2Discriminator(t *testing.T) {
	t.Parallel()

	self := vl1.GenerateIdentity()
	n, host := newTestNode(t, self)
	data := make([]byte, 20)
	data[8] = 0xff

	n.HandleIncomingPhysicalPacket(host, vl1.NewIPEndpoint(netip.MustParseAddrPort("10.0.0.1:1")),
		netip.MustParseAddrPort("10.0.0.2:1"), "eth0", data)

	if len(host.sent) != 0 {
		t.Fatal("a v2-discriminated datagram must not trigger any forwarding or reply")
	}
}
