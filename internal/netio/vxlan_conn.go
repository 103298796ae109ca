package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

// vxlanBufSize is the receive buffer size for VXLAN packets, sized for
// jumbo frames to avoid truncation.
const vxlanBufSize = 9000

// VXLANConn implements OverlayConn for VL1 wire packets carried over
// VXLAN (RFC 7348). The connection binds a UDP socket to localAddr:4789
// and carries the VL1 packet directly as the VXLAN payload — there is
// no inner Ethernet/IP framing, since the VXLAN endpoint here is just
// an additional physical destination form, not a bridged L2 segment.
//
// Thread safety: SendEncapsulated and RecvDecapsulated may be called
// concurrently from separate goroutines. The underlying net.UDPConn is
// safe for concurrent use; mu protects the closed flag only.
type VXLANConn struct {
	conn      *net.UDPConn
	localAddr netip.Addr
	logger    *slog.Logger
	mu        sync.Mutex
	closed    bool
}

// NewVXLANConn creates a VXLAN tunnel connection bound to localAddr:4789.
func NewVXLANConn(localAddr netip.Addr, logger *slog.Logger) (*VXLANConn, error) {
	laddr := &net.UDPAddr{
		IP:   localAddr.AsSlice(),
		Port: int(VXLANPort),
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("vxlan: bind %s:%d: %w", localAddr, VXLANPort, err)
	}

	return &VXLANConn{
		conn:      conn,
		localAddr: localAddr,
		logger: logger.With(
			slog.String("component", "netio.vxlan_conn"),
			slog.String("local", localAddr.String()),
		),
	}, nil
}

// SendEncapsulated wraps a VL1 wire packet in a VXLAN header carrying vni
// and sends it to dstAddr:4789.
func (c *VXLANConn) SendEncapsulated(_ context.Context, payload []byte, dstAddr netip.Addr, vni uint32) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("vxlan send to %s: %w", dstAddr, ErrOverlayRecvClosed)
	}
	c.mu.Unlock()

	buf := make([]byte, VXLANHeaderSize+len(payload))
	if _, err := MarshalVXLANHeader(buf[:VXLANHeaderSize], vni); err != nil {
		return fmt.Errorf("vxlan marshal header: %w", err)
	}
	copy(buf[VXLANHeaderSize:], payload)

	dst := &net.UDPAddr{IP: dstAddr.AsSlice(), Port: int(VXLANPort)}
	if _, err := c.conn.WriteToUDP(buf, dst); err != nil {
		return fmt.Errorf("vxlan send to %s:%d: %w", dstAddr, VXLANPort, err)
	}

	return nil
}

// RecvDecapsulated reads a VXLAN packet and returns the inner VL1 wire
// payload along with overlay metadata.
func (c *VXLANConn) RecvDecapsulated(_ context.Context) ([]byte, OverlayMeta, error) {
	buf := make([]byte, vxlanBufSize)

	n, remoteAddr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, OverlayMeta{}, fmt.Errorf("vxlan recv: %w", ErrOverlayRecvClosed)
		}
		return nil, OverlayMeta{}, fmt.Errorf("vxlan recv: %w", err)
	}

	data := buf[:n]
	if n < VXLANHeaderSize {
		return nil, OverlayMeta{}, fmt.Errorf(
			"vxlan recv: packet %d bytes, need at least %d: %w",
			n, VXLANHeaderSize, ErrVXLANHeaderTooShort)
	}

	hdr, err := UnmarshalVXLANHeader(data[:VXLANHeaderSize])
	if err != nil {
		return nil, OverlayMeta{}, fmt.Errorf("vxlan recv: %w", err)
	}

	srcAddr, ok := netip.AddrFromSlice(remoteAddr.IP)
	if !ok {
		return nil, OverlayMeta{}, fmt.Errorf(
			"vxlan recv: remote address %s: %w", remoteAddr.IP, ErrOverlayInvalidAddr)
	}

	meta := OverlayMeta{
		SrcAddr: srcAddr.Unmap(),
		DstAddr: c.localAddr,
		VNI:     hdr.VNI,
	}

	payload := make([]byte, n-VXLANHeaderSize)
	copy(payload, data[VXLANHeaderSize:])

	return payload, meta, nil
}

// Close releases the underlying UDP socket.
func (c *VXLANConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("vxlan close: %w", err)
	}
	return nil
}

// BuildVXLANPacket assembles a complete VXLAN-encapsulated VL1 packet.
// Exported for unit testing the encapsulation logic without a real socket.
func BuildVXLANPacket(payload []byte, vni uint32) ([]byte, error) {
	buf := make([]byte, VXLANHeaderSize+len(payload))
	if _, err := MarshalVXLANHeader(buf[:VXLANHeaderSize], vni); err != nil {
		return nil, fmt.Errorf("build vxlan packet: header: %w", err)
	}
	copy(buf[VXLANHeaderSize:], payload)
	return buf, nil
}

// ParseVXLANPacket decapsulates a complete VXLAN packet, returning the
// inner VL1 payload and the VNI. Exported for unit testing.
func ParseVXLANPacket(buf []byte) ([]byte, uint32, error) {
	if len(buf) < VXLANHeaderSize {
		return nil, 0, fmt.Errorf(
			"parse vxlan packet: %d bytes too short: %w", len(buf), ErrVXLANHeaderTooShort)
	}

	hdr, err := UnmarshalVXLANHeader(buf[:VXLANHeaderSize])
	if err != nil {
		return nil, 0, fmt.Errorf("parse vxlan packet: %w", err)
	}

	payload := make([]byte, len(buf)-VXLANHeaderSize)
	copy(payload, buf[VXLANHeaderSize:])

	return payload, hdr.VNI, nil
}
