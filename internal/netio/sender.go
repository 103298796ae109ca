//go:build linux

package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// UDPSender sends VL1 wire packets over a UDP socket bound to a specific
// local address and source port. Supports both IPv4 and IPv6; the address
// family is auto-detected from the local address.
type UDPSender struct {
	conn       *net.UDPConn
	logger     *slog.Logger
	mu         sync.Mutex
	closed     bool
	srcPort    uint16
	bindDevice string // SO_BINDTODEVICE interface name, for per-interface sockets
}

// SenderOption configures optional UDPSender parameters.
type SenderOption func(*UDPSender)

// WithBindDevice sets SO_BINDTODEVICE on the sender socket, binding it to
// a specific network interface. Used when a ListenConfig entry names an
// Interface explicitly.
func WithBindDevice(ifName string) SenderOption {
	return func(s *UDPSender) {
		s.bindDevice = ifName
	}
}

// NewUDPSender creates a sender bound to localAddr:srcPort.
func NewUDPSender(
	localAddr netip.Addr,
	srcPort uint16,
	logger *slog.Logger,
	opts ...SenderOption,
) (*UDPSender, error) {
	s := &UDPSender{
		srcPort: srcPort,
		logger: logger.With(
			slog.String("component", "netio.sender"),
			slog.String("local", localAddr.String()),
			slog.Uint64("src_port", uint64(srcPort)),
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	isIPv6 := localAddr.Is6() && !localAddr.Is4In6()

	conn, err := dialSenderSocket(localAddr, srcPort, isIPv6, s.bindDevice)
	if err != nil {
		return nil, fmt.Errorf("create UDP sender %s:%d: %w", localAddr, srcPort, err)
	}

	s.conn = conn
	return s, nil
}

func dialSenderSocket(localAddr netip.Addr, srcPort uint16, isIPv6 bool, bindDevice string) (*net.UDPConn, error) {
	laddr := netip.AddrPortFrom(localAddr, srcPort)

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSenderOpts(c, bindDevice)
		},
	}

	network := "udp4"
	if isIPv6 {
		network = "udp6"
	}

	pc, err := lc.ListenPacket(context.Background(), network, laddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", laddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, fmt.Errorf("listen UDP %s: %w: %w", laddr, ErrUnexpectedConnType, closeErr)
	}

	return conn, nil
}

func setSenderOpts(c syscall.RawConn, bindDevice string) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		sockErr = setSenderSockOpts(intFD, bindDevice)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}

func setSenderSockOpts(fd int, bindDevice string) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if bindDevice != "" {
		if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, bindDevice); err != nil {
			return fmt.Errorf("set SO_BINDTODEVICE(%s): %w", bindDevice, err)
		}
	}

	return nil
}

// Send transmits buf to dst. ttl==0 sends with defaultTTL; the TTL is
// applied to this socket ahead of every send, the transport half of
// HostSystem.WireSend's per-call ttl argument.
func (s *UDPSender) Send(dst netip.AddrPort, buf []byte, ttl uint8) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("send to %s: %w", dst, ErrSocketClosed)
	}
	s.mu.Unlock()

	if ttl == 0 {
		ttl = defaultTTL
	}
	if err := s.setTTL(dst.Addr().Is6() && !dst.Addr().Is4In6(), ttl); err != nil {
		return fmt.Errorf("set ttl: %w", err)
	}

	udpDst := net.UDPAddrFromAddrPort(dst)
	if _, err := s.conn.WriteToUDP(buf, udpDst); err != nil {
		return fmt.Errorf("send vl1 packet to %s: %w", dst, err)
	}

	return nil
}

func (s *UDPSender) setTTL(isIPv6 bool, ttl uint8) error {
	rawConn, err := s.conn.SyscallConn()
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

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close sender socket: %w", err)
	}

	return nil
}

// SrcPort returns the allocated source port for this sender.
func (s *UDPSender) SrcPort() uint16 {
	return s.srcPort
}
