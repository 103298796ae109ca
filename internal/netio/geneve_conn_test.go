package netio_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/dantte-lp/vl1node/internal/netio"
	"github.com/dantte-lp/vl1node/internal/vl1"
)

// memStorage and noopHost are minimal vl1.NodeStorage/vl1.HostSystem
// implementations for constructing a *vl1.Node in tests without any
// real transport or persistence.
type memStorage struct {
	id vl1.Identity
}

func (m memStorage) LoadNodeIdentity() (vl1.Identity, bool) { return m.id, true }
func (m memStorage) SaveNodeIdentity(vl1.Identity)          {}

type noopHost struct{}

func (noopHost) Event(vl1.Event)                                                       {}
func (noopHost) LocalSocketIsValid(vl1.LocalSocket) bool                               { return true }
func (noopHost) WireSend(vl1.Endpoint, vl1.LocalSocket, vl1.LocalInterface, []byte, uint8) {}
func (noopHost) TimeTicks() int64                                                      { return 0 }
func (noopHost) TimeClock() int64                                                      { return 0 }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildGenevePacketRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		vni     uint32
	}{
		{"basic_24_byte", makePayload(24), 100},
		{"vni_4096", makePayload(48), 4096},
		{"max_vni", makePayload(24), 0x00FFFFFF},
		{"large_payload_100_bytes", makePayload(100), 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkt, err := netio.BuildGenevePacket(tt.payload, tt.vni)
			if err != nil {
				t.Fatalf("BuildGenevePacket: %v", err)
			}

			wantLen := netio.GeneveHeaderMinSize + len(tt.payload)
			if len(pkt) != wantLen {
				t.Fatalf("packet length = %d, want %d", len(pkt), wantLen)
			}

			got, hdr, err := netio.ParseGenevePacket(pkt)
			if err != nil {
				t.Fatalf("ParseGenevePacket: %v", err)
			}

			if hdr.VNI != tt.vni {
				t.Errorf("VNI = %d, want %d", hdr.VNI, tt.vni)
			}
			if len(got) != len(tt.payload) {
				t.Fatalf("payload length = %d, want %d", len(got), len(tt.payload))
			}
			for i := range tt.payload {
				if got[i] != tt.payload[i] {
					t.Errorf("payload[%d] = 0x%02x, want 0x%02x", i, got[i], tt.payload[i])
					break
				}
			}
		})
	}
}

func TestBuildGenevePacketHeaderFields(t *testing.T) {
	t.Parallel()

	payload := makePayload(24)
	pkt, err := netio.BuildGenevePacket(payload, 0xABCDEF)
	if err != nil {
		t.Fatalf("BuildGenevePacket: %v", err)
	}

	_, hdr, err := netio.ParseGenevePacket(pkt)
	if err != nil {
		t.Fatalf("ParseGenevePacket: %v", err)
	}

	if hdr.ProtocolType != netio.GeneveProtocolVL1 {
		t.Errorf("ProtocolType = 0x%04x, want 0x%04x", hdr.ProtocolType, netio.GeneveProtocolVL1)
	}
	if hdr.VNI != 0xABCDEF {
		t.Errorf("VNI = 0x%06x, want 0xABCDEF", hdr.VNI)
	}
}

func TestParseGenevePacketTooShort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"header_only_short", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.size)
			_, _, err := netio.ParseGenevePacket(buf)
			if err == nil {
				t.Fatal("expected error for short packet")
			}
		})
	}
}

func TestParseGenevePacketInvalidVersion(t *testing.T) {
	t.Parallel()

	pkt, err := netio.BuildGenevePacket(makePayload(24), 100)
	if err != nil {
		t.Fatalf("BuildGenevePacket: %v", err)
	}

	// Set version to 1 (bits 7-6 of byte 0).
	pkt[0] = (pkt[0] & 0x3F) | 0x40

	_, _, err = netio.ParseGenevePacket(pkt)
	if err == nil {
		t.Fatal("expected error for invalid version")
	}
	if !errors.Is(err, netio.ErrGeneveInvalidVersion) {
		t.Errorf("error = %v, want ErrGeneveInvalidVersion", err)
	}
}

func TestParseGenevePacketUnexpectedProtocol(t *testing.T) {
	t.Parallel()

	pkt, err := netio.BuildGenevePacket(makePayload(24), 100)
	if err != nil {
		t.Fatalf("BuildGenevePacket: %v", err)
	}

	// Corrupt the Protocol Type field (bytes 2-3) away from GeneveProtocolVL1.
	pkt[2], pkt[3] = 0x65, 0x58

	_, _, err = netio.ParseGenevePacket(pkt)
	if err == nil {
		t.Fatal("expected error for unexpected protocol type")
	}
	if !errors.Is(err, netio.ErrGeneveUnexpectedProto) {
		t.Errorf("error = %v, want ErrGeneveUnexpectedProto", err)
	}
}

func TestOverlayMetaFields(t *testing.T) {
	t.Parallel()

	meta := netio.OverlayMeta{
		SrcAddr: netip.MustParseAddr("10.0.0.1"),
		DstAddr: netip.MustParseAddr("10.0.0.2"),
		VNI:     4096,
	}

	if meta.SrcAddr != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("SrcAddr = %s, want 10.0.0.1", meta.SrcAddr)
	}
	if meta.DstAddr != netip.MustParseAddr("10.0.0.2") {
		t.Errorf("DstAddr = %s, want 10.0.0.2", meta.DstAddr)
	}
	if meta.VNI != 4096 {
		t.Errorf("VNI = %d, want 4096", meta.VNI)
	}
}

// mockOverlayConn implements OverlayConn for testing OverlayReceiver. Each
// call to RecvDecapsulated delivers payload once, then blocks on ctx.Done
// so the receiver loop parks instead of spinning.
type mockOverlayConn struct {
	payload   []byte
	meta      netio.OverlayMeta
	delivered chan struct{}
}

func (m *mockOverlayConn) SendEncapsulated(_ context.Context, _ []byte, _ netip.Addr, _ uint32) error {
	return errors.New("mock: not implemented")
}

func (m *mockOverlayConn) RecvDecapsulated(ctx context.Context) ([]byte, netio.OverlayMeta, error) {
	select {
	case <-m.delivered:
		<-ctx.Done()
		return nil, netio.OverlayMeta{}, ctx.Err()
	default:
		close(m.delivered)
		return m.payload, m.meta, nil
	}
}

func (m *mockOverlayConn) Close() error {
	return nil
}

func TestOverlayReceiverDeliversToNode(t *testing.T) {
	t.Parallel()

	id := vl1.GenerateIdentity()
	n, err := vl1.NewNode(noopHost{}, memStorage{id: id}, false)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}

	mock := &mockOverlayConn{
		payload: makePayload(32),
		meta: netio.OverlayMeta{
			SrcAddr: netip.MustParseAddr("10.0.0.1"),
			DstAddr: netip.MustParseAddr("10.0.0.2"),
			VNI:     100,
		},
		delivered: make(chan struct{}),
	}

	recv := netio.NewOverlayReceiver(mock, n, noopHost{}, "vxlan0",
		func(addr netip.Addr, vni uint32) vl1.Endpoint {
			return vl1.NewVXLANEndpoint(netip.AddrPortFrom(addr, netio.VXLANPort), vni)
		},
		testLogger())

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	go func() {
		_ = recv.Run(ctx)
		close(done)
	}()

	<-mock.delivered
	cancel()
	<-done
}
