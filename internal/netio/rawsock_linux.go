//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxPacketConn — VL1 wire socket
// -------------------------------------------------------------------------

// LinuxPacketConn implements PacketConn using a UDP socket configured with
// IP_PKTINFO/IPV6_RECVPKTINFO so each read reports the destination address
// and interface it arrived on — the local socket and local interface VL1's
// path canonicalization keys on (internal/vl1/path.go). Per-packet TTL is
// set via the outer send path to support HostSystem.WireSend's optional
// ttl argument rather than a fixed socket-wide value.
type LinuxPacketConn struct {
	conn      *net.UDPConn
	localAddr netip.AddrPort
	ifName    string
	closed    bool
	mu        sync.Mutex
}

// ReadPacket reads a single VL1 wire packet from the UDP socket, returning
// transport metadata extracted from ancillary data.
func (c *LinuxPacketConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	oob := make([]byte, oobSize)

	n, oobn, _, src, err := c.conn.ReadMsgUDP(buf, oob)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("read vl1 packet: %w", err)
	}

	meta := parseMeta(src, oob[:oobn])
	meta.IfName = c.ifName

	return n, meta, nil
}

// WritePacket sends a VL1 wire packet to dst. ttl==0 sends with
// defaultTTL; the TTL/hop limit is set on the socket ahead of every send,
// so one call's value never carries over to the next.
func (c *LinuxPacketConn) WritePacket(buf []byte, dst netip.AddrPort, ttl uint8) error {
	if ttl == 0 {
		ttl = defaultTTL
	}
	if err := c.setPerPacketTTL(dst.Addr().Is6() && !dst.Addr().Is4In6(), ttl); err != nil {
		return fmt.Errorf("set per-packet ttl: %w", err)
	}

	udpAddr := net.UDPAddrFromAddrPort(dst)
	if _, err := c.conn.WriteToUDP(buf, udpAddr); err != nil {
		return fmt.Errorf("write vl1 packet to %s: %w", dst, err)
	}

	return nil
}

// setPerPacketTTL sets the socket's TTL/hop-limit ahead of a single send.
// VL1 varies this per destination for NAT/relay path discovery, the way
// the upstream's WireSend contract allows a caller-chosen ttl.
func (c *LinuxPacketConn) setPerPacketTTL(isIPv6 bool, ttl uint8) error {
	rawConn, err := c.conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	var sockErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		if isIPv6 {
			sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, int(ttl))
		} else {
			sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IP, unix.IP_TTL, int(ttl))
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// Close releases the underlying socket.
func (c *LinuxPacketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close vl1 socket: %w", err)
	}
	return nil
}

// LocalAddr returns the local address and port the socket is bound to.
func (c *LinuxPacketConn) LocalAddr() netip.AddrPort {
	return c.localAddr
}

// -------------------------------------------------------------------------
// Constructors
// -------------------------------------------------------------------------

// newPacketConn creates a PacketConn bound to addr:port, optionally
// restricted to a single interface via SO_BINDTODEVICE. Supports both
// IPv4 and IPv6; the address family is auto-detected.
func newPacketConn(ctx context.Context, addr netip.Addr, port uint16, ifName string) (*LinuxPacketConn, error) {
	laddr := netip.AddrPortFrom(addr, port)

	conn, err := listenUDP(ctx, laddr, ifName)
	if err != nil {
		return nil, fmt.Errorf("listener on %s%%%s: %w", laddr, ifName, err)
	}

	return &LinuxPacketConn{
		conn:      conn,
		localAddr: laddr,
		ifName:    ifName,
	}, nil
}

// -------------------------------------------------------------------------
// Socket creation helpers
// -------------------------------------------------------------------------

// oobSize is the buffer size for ancillary (out-of-band) data, sized to
// fit the largest control message VL1 reads: IPV6_PKTINFO (36 bytes) plus
// slack for alignment.
const oobSize = 64

// listenUDP creates and configures a UDP socket for VL1 wire traffic.
func listenUDP(ctx context.Context, laddr netip.AddrPort, ifName string) (*net.UDPConn, error) {
	isIPv6 := laddr.Addr().Is6() && !laddr.Addr().Is4In6()

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c, ifName, isIPv6)
		},
	}

	network := "udp4"
	if isIPv6 {
		network = "udp6"
	}

	pc, err := lc.ListenPacket(ctx, network, laddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", laddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(
			fmt.Errorf("listen UDP %s: %w", laddr, ErrUnexpectedConnType),
			closeErr,
		)
	}

	return conn, nil
}

// setSocketOpts configures a VL1 listening socket: address reuse, optional
// interface binding, and destination-address/interface-index ancillary
// data (IP_PKTINFO / IPV6_RECVPKTINFO) for local-socket identification.
func setSocketOpts(c syscall.RawConn, ifName string, isIPv6 bool) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		if isIPv6 {
			sockErr = applySockOptsV6(intFD, ifName)
		} else {
			sockErr = applySockOptsV4(intFD, ifName)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}

func applySockOptsCommon(fd int, ifName string) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if ifName != "" {
		if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName); err != nil {
			return fmt.Errorf("set SO_BINDTODEVICE(%s): %w", ifName, err)
		}
	}

	return nil
}

func applySockOptsV4(fd int, ifName string) error {
	if err := applySockOptsCommon(fd, ifName); err != nil {
		return err
	}

	// IP_PKTINFO: receive destination address and interface index, the
	// basis for the local socket/interface reported to HandleIncomingPhysicalPacket.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_PKTINFO, 1); err != nil {
		return fmt.Errorf("set IP_PKTINFO: %w", err)
	}

	return nil
}

func applySockOptsV6(fd int, ifName string) error {
	if err := applySockOptsCommon(fd, ifName); err != nil {
		return err
	}

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
		return fmt.Errorf("set IPV6_RECVPKTINFO: %w", err)
	}

	return nil
}

// parseMeta extracts transport metadata from the source address and
// out-of-band ancillary data, for both IPv4 (IP_PKTINFO) and IPv6
// (IPV6_PKTINFO) control messages.
func parseMeta(src *net.UDPAddr, oob []byte) PacketMeta {
	meta := PacketMeta{}

	if src != nil {
		srcAddr, ok := netip.AddrFromSlice(src.IP)
		if ok {
			meta.SrcAddr = srcAddr.Unmap()
			//nolint:gosec // G115: UDP source ports are always in [0, 65535].
			meta.SrcPort = uint16(src.Port)
		}
	}

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return meta
	}

	parseControlMessages(msgs, &meta)

	return meta
}

func parseControlMessages(msgs []unix.SocketControlMessage, meta *PacketMeta) {
	for i := range msgs {
		switch {
		case msgs[i].Header.Level == unix.IPPROTO_IP && msgs[i].Header.Type == unix.IP_PKTINFO:
			parsePktInfoMessage(msgs[i].Data, meta)
		case msgs[i].Header.Level == unix.IPPROTO_IPV6 && msgs[i].Header.Type == unix.IPV6_PKTINFO:
			parsePktInfo6Message(msgs[i].Data, meta)
		}
	}
}

// parsePktInfoMessage extracts destination address and interface index from
// an IP_PKTINFO control message (struct in_pktinfo).
func parsePktInfoMessage(data []byte, meta *PacketMeta) {
	const pktInfoSize = 12
	if len(data) < pktInfoSize {
		return
	}

	ifIdx := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	meta.IfIndex = int(ifIdx)

	var ip4 [4]byte
	copy(ip4[:], data[8:12])
	meta.DstAddr = netip.AddrFrom4(ip4)
}

// parsePktInfo6Message extracts destination address and interface index from
// an IPV6_PKTINFO control message (struct in6_pktinfo).
func parsePktInfo6Message(data []byte, meta *PacketMeta) {
	const pktInfo6Size = 20
	if len(data) < pktInfo6Size {
		return
	}

	var ip6 [16]byte
	copy(ip6[:], data[0:16])
	meta.DstAddr = netip.AddrFrom16(ip6)

	ifIdx := uint32(data[16]) | uint32(data[17])<<8 | uint32(data[18])<<16 | uint32(data[19])<<24
	meta.IfIndex = int(ifIdx)
}

// -------------------------------------------------------------------------
// SourcePortAllocator
// -------------------------------------------------------------------------

// SourcePortAllocator manages ephemeral source ports for sockets that need
// their own dedicated port rather than sharing a listener's (e.g. a
// multi-homed node opening one socket per configured Listener entry).
type SourcePortAllocator struct {
	mu       sync.Mutex
	inUse    map[uint16]struct{}
	portSpan int
}

// NewSourcePortAllocator creates a new allocator covering the ephemeral
// range [49152, 65535].
func NewSourcePortAllocator() *SourcePortAllocator {
	return &SourcePortAllocator{
		inUse:    make(map[uint16]struct{}),
		portSpan: int(sourcePortMax) - int(sourcePortMin) + 1,
	}
}

// Allocate returns an unused port, probing from a random offset to avoid
// predictable port sequences.
func (a *SourcePortAllocator) Allocate() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.inUse) >= a.portSpan {
		return 0, fmt.Errorf("all %d ports allocated: %w", a.portSpan, ErrPortExhausted)
	}

	//nolint:gosec // G404: port selection does not require cryptographic randomness.
	offset := rand.IntN(a.portSpan)

	for i := range a.portSpan {
		//nolint:gosec // G115: (offset+i)%portSpan is always in [0, 16383], fits uint16 after adding sourcePortMin.
		port := sourcePortMin + uint16((offset+i)%a.portSpan)
		if _, used := a.inUse[port]; !used {
			a.inUse[port] = struct{}{}
			return port, nil
		}
	}

	return 0, fmt.Errorf("all %d ports allocated: %w", a.portSpan, ErrPortExhausted)
}

// Release returns a port to the available pool. Releasing an unallocated
// port is a no-op.
func (a *SourcePortAllocator) Release(port uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.inUse, port)
}
