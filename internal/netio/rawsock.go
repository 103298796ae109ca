package netio

import (
	"errors"
	"net/netip"
)

// -------------------------------------------------------------------------
// VL1 Port Constants
// -------------------------------------------------------------------------

const (
	// DefaultPort is the conventional VL1 wire UDP port, consistent with
	// the upstream's default. Deployments are free to bind additional
	// ports via ListenConfig.
	DefaultPort uint16 = 9993

	// sourcePortMin is the minimum ephemeral source port used when a
	// sender needs its own socket rather than sharing a listener's.
	sourcePortMin uint16 = 49152

	// sourcePortMax is the maximum ephemeral source port (inclusive).
	sourcePortMax uint16 = 65535

	// defaultTTL is the outer IP TTL used when a caller does not specify
	// one explicitly (HostSystem.WireSend's ttl==0 case).
	defaultTTL uint8 = 64
)

// -------------------------------------------------------------------------
// Transport Metadata
// -------------------------------------------------------------------------

// PacketMeta contains transport-layer metadata extracted from a received
// VL1 packet via ancillary data (IP_PKTINFO). DstAddr and IfIndex/IfName
// identify the local socket and interface a packet arrived on, which the
// receiver surfaces to Node.HandleIncomingPhysicalPacket as the source
// local socket/interface — the basis for vl1's per-(endpoint,local
// socket,local interface) path canonicalization (see internal/vl1/path.go).
type PacketMeta struct {
	// SrcAddr is the source IP address from the IP header.
	SrcAddr netip.Addr

	// SrcPort is the source UDP port.
	SrcPort uint16

	// DstAddr is the destination IP address, obtained from IP_PKTINFO
	// ancillary data.
	DstAddr netip.Addr

	// IfIndex is the interface index on which the packet was received.
	IfIndex int

	// IfName is the interface name on which the packet was received.
	IfName string
}

// -------------------------------------------------------------------------
// PacketConn Interface
// -------------------------------------------------------------------------

// PacketConn abstracts VL1 packet send/receive operations over raw UDP
// sockets. The interface is intentionally minimal to enable mock
// implementations for testing without CAP_NET_RAW.
type PacketConn interface {
	// ReadPacket reads a single VL1 wire packet into buf. Returns the
	// number of bytes read and transport metadata.
	ReadPacket(buf []byte) (n int, meta PacketMeta, err error)

	// WritePacket sends a VL1 wire packet to dst. ttl==0 uses the
	// socket's configured default.
	WritePacket(buf []byte, dst netip.AddrPort, ttl uint8) error

	// Close releases the underlying socket resources.
	Close() error

	// LocalAddr returns the local address and port the socket is bound to.
	LocalAddr() netip.AddrPort
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrPortExhausted indicates no ephemeral source ports are available.
	ErrPortExhausted = errors.New("no source ports available in ephemeral range")

	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrPoolType indicates the packet pool returned an unexpected type.
	ErrPoolType = errors.New("packet pool returned unexpected type")

	// ErrUnexpectedConnType indicates net.ListenConfig.ListenPacket
	// returned a connection type other than *net.UDPConn.
	ErrUnexpectedConnType = errors.New("unexpected packet connection type")
)
