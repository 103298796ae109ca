package netio

// geneve_conn.go: Geneve tunnel connection for the EndpointGeneve
// transport. GeneveConn implements OverlayConn by binding a UDP socket
// to port 6081 and carrying the VL1 wire packet directly as the Geneve
// payload, tagged with GeneveProtocolVL1.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

// geneveBufSize is the receive buffer size for Geneve packets, sized for
// jumbo frames to avoid truncation.
const geneveBufSize = 9000

// ErrGeneveUnexpectedProto indicates the Geneve Protocol Type is not
// GeneveProtocolVL1.
var ErrGeneveUnexpectedProto = errors.New("geneve: unexpected protocol type, expected VL1 payload marker")

// GeneveConn implements OverlayConn for VL1 wire packets carried over
// Geneve (RFC 8926). The connection binds a UDP socket to localAddr:6081.
//
// Thread safety: same model as VXLANConn. SendEncapsulated and
// RecvDecapsulated may be called concurrently. The mu mutex protects
// only the closed flag.
type GeneveConn struct {
	conn      *net.UDPConn
	localAddr netip.Addr
	logger    *slog.Logger
	mu        sync.Mutex
	closed    bool
}

// NewGeneveConn creates a Geneve tunnel connection bound to localAddr:6081.
func NewGeneveConn(localAddr netip.Addr, logger *slog.Logger) (*GeneveConn, error) {
	laddr := &net.UDPAddr{
		IP:   localAddr.AsSlice(),
		Port: int(GenevePort),
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("geneve: bind %s:%d: %w", localAddr, GenevePort, err)
	}

	return &GeneveConn{
		conn:      conn,
		localAddr: localAddr,
		logger: logger.With(
			slog.String("component", "netio.geneve_conn"),
			slog.String("local", localAddr.String()),
		),
	}, nil
}

// SendEncapsulated wraps a VL1 wire packet in a Geneve header carrying vni
// and sends it to dstAddr:6081.
func (c *GeneveConn) SendEncapsulated(_ context.Context, payload []byte, dstAddr netip.Addr, vni uint32) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("geneve send to %s: %w", dstAddr, ErrOverlayRecvClosed)
	}
	c.mu.Unlock()

	buf := make([]byte, GeneveHeaderMinSize+len(payload))
	hdr := GeneveHeader{
		ProtocolType: GeneveProtocolVL1,
		VNI:          vni,
	}
	if _, err := MarshalGeneveHeader(buf[:GeneveHeaderMinSize], hdr); err != nil {
		return fmt.Errorf("geneve marshal header: %w", err)
	}
	copy(buf[GeneveHeaderMinSize:], payload)

	dst := &net.UDPAddr{IP: dstAddr.AsSlice(), Port: int(GenevePort)}
	if _, err := c.conn.WriteToUDP(buf, dst); err != nil {
		return fmt.Errorf("geneve send to %s:%d: %w", dstAddr, GenevePort, err)
	}

	return nil
}

// RecvDecapsulated reads a Geneve packet and returns the inner VL1 wire
// payload along with overlay metadata.
func (c *GeneveConn) RecvDecapsulated(_ context.Context) ([]byte, OverlayMeta, error) {
	buf := make([]byte, geneveBufSize)

	n, remoteAddr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, OverlayMeta{}, fmt.Errorf("geneve recv: %w", ErrOverlayRecvClosed)
		}
		return nil, OverlayMeta{}, fmt.Errorf("geneve recv: %w", err)
	}

	payload, hdr, err := decapGenevePacket(buf[:n])
	if err != nil {
		return nil, OverlayMeta{}, err
	}

	srcAddr, ok := netip.AddrFromSlice(remoteAddr.IP)
	if !ok {
		return nil, OverlayMeta{}, fmt.Errorf(
			"geneve recv: remote address %s: %w", remoteAddr.IP, ErrOverlayInvalidAddr)
	}

	meta := OverlayMeta{
		SrcAddr: srcAddr.Unmap(),
		DstAddr: c.localAddr,
		VNI:     hdr.VNI,
	}

	return payload, meta, nil
}

// decapGenevePacket validates and strips the Geneve header from a received
// packet, returning the VL1 payload and the parsed header.
func decapGenevePacket(data []byte) ([]byte, GeneveHeader, error) {
	if len(data) < GeneveHeaderMinSize {
		return nil, GeneveHeader{}, fmt.Errorf(
			"geneve recv: packet %d bytes, need at least %d: %w",
			len(data), GeneveHeaderMinSize, ErrGeneveHeaderTooShort)
	}

	hdr, err := UnmarshalGeneveHeader(data[:GeneveHeaderMinSize])
	if err != nil {
		return nil, GeneveHeader{}, fmt.Errorf("geneve recv: %w", err)
	}

	total := hdr.TotalHeaderSize()
	if len(data) < total {
		return nil, GeneveHeader{}, fmt.Errorf(
			"geneve recv: packet %d bytes, need at least %d: %w",
			len(data), total, ErrGeneveHeaderTooShort)
	}

	if hdr.ProtocolType != GeneveProtocolVL1 {
		return nil, GeneveHeader{}, fmt.Errorf(
			"geneve recv: protocol type 0x%04x: %w", hdr.ProtocolType, ErrGeneveUnexpectedProto)
	}

	payload := make([]byte, len(data)-total)
	copy(payload, data[total:])

	return payload, hdr, nil
}

// Close releases the underlying UDP socket.
func (c *GeneveConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("geneve close: %w", err)
	}
	return nil
}

// BuildGenevePacket assembles a complete Geneve-encapsulated VL1 packet.
// Exported for unit testing the encapsulation logic without a real socket.
func BuildGenevePacket(payload []byte, vni uint32) ([]byte, error) {
	buf := make([]byte, GeneveHeaderMinSize+len(payload))
	hdr := GeneveHeader{ProtocolType: GeneveProtocolVL1, VNI: vni}
	if _, err := MarshalGeneveHeader(buf[:GeneveHeaderMinSize], hdr); err != nil {
		return nil, fmt.Errorf("build geneve packet: header: %w", err)
	}
	copy(buf[GeneveHeaderMinSize:], payload)
	return buf, nil
}

// ParseGenevePacket decapsulates a complete Geneve packet, returning the
// inner VL1 payload and the parsed Geneve header. Exported for unit testing.
func ParseGenevePacket(buf []byte) ([]byte, GeneveHeader, error) {
	payload, hdr, err := decapGenevePacket(buf)
	if err != nil {
		return nil, GeneveHeader{}, fmt.Errorf("parse geneve packet: %w", err)
	}
	return payload, hdr, nil
}
