package netio_test

import (
	"testing"

	"github.com/dantte-lp/vl1node/internal/netio"
)

func makePayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestBuildVXLANPacketRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		vni     uint32
	}{
		{"basic_24_byte", makePayload(24), 100},
		{"vni_4096", makePayload(48), 4096},
		{"max_vni", makePayload(24), 0x00FFFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkt, err := netio.BuildVXLANPacket(tt.payload, tt.vni)
			if err != nil {
				t.Fatalf("BuildVXLANPacket: %v", err)
			}

			wantLen := netio.VXLANHeaderSize + len(tt.payload)
			if len(pkt) != wantLen {
				t.Fatalf("packet length = %d, want %d", len(pkt), wantLen)
			}

			got, gotVNI, err := netio.ParseVXLANPacket(pkt)
			if err != nil {
				t.Fatalf("ParseVXLANPacket: %v", err)
			}

			if gotVNI != tt.vni {
				t.Errorf("VNI = %d, want %d", gotVNI, tt.vni)
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

func TestBuildVXLANPacketHeader(t *testing.T) {
	t.Parallel()

	payload := makePayload(24)
	vni := uint32(0xABCDEF)

	pkt, err := netio.BuildVXLANPacket(payload, vni)
	if err != nil {
		t.Fatalf("BuildVXLANPacket: %v", err)
	}

	if pkt[0]&0x08 == 0 {
		t.Error("VXLAN I flag not set")
	}
	if pkt[4] != 0xAB || pkt[5] != 0xCD || pkt[6] != 0xEF {
		t.Errorf("VNI bytes = [%02x %02x %02x], want [AB CD EF]", pkt[4], pkt[5], pkt[6])
	}
	if pkt[7] != 0 {
		t.Errorf("reserved byte[7] = 0x%02x, want 0x00", pkt[7])
	}
	if string(pkt[netio.VXLANHeaderSize:]) != string(payload) {
		t.Error("payload not appended immediately after the VXLAN header")
	}
}

func TestParseVXLANPacketTooShort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"one_byte_short", netio.VXLANHeaderSize - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.size)
			if tt.size >= 1 {
				buf[0] = 0x08
			}
			_, _, err := netio.ParseVXLANPacket(buf)
			if err == nil {
				t.Fatal("expected error for short packet")
			}
		})
	}
}

func TestParseVXLANPacketInvalidIFlag(t *testing.T) {
	t.Parallel()

	buf := make([]byte, netio.VXLANHeaderSize+24)
	// I flag not set (byte 0 = 0x00).
	_, _, err := netio.ParseVXLANPacket(buf)
	if err == nil {
		t.Fatal("expected error for missing I flag")
	}
}
