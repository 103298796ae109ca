package netio

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
)

// -------------------------------------------------------------------------
// ListenerConfig
// -------------------------------------------------------------------------

// ListenerConfig holds configuration for a VL1 wire listener.
type ListenerConfig struct {
	// Addr is the local IP address to bind to.
	Addr netip.Addr

	// Port is the local UDP port to bind to. Zero uses DefaultPort.
	Port uint16

	// IfName optionally restricts the listener to a single interface via
	// SO_BINDTODEVICE.
	IfName string
}

// -------------------------------------------------------------------------
// Listener — high-level VL1 packet receive loop
// -------------------------------------------------------------------------

// packetPool pools 2048-byte receive buffers, enough for a VL1 wire packet
// on a standard-MTU path (no jumbo-frame margin); oversized reads are
// simply truncated by the kernel, which is fine since VL1 validates its
// own header length.
var packetPool = sync.Pool{
	New: func() any {
		b := make([]byte, 2048)
		return &b
	},
}

// Listener wraps a PacketConn and provides a context-aware receive loop
// for VL1 wire packets.
type Listener struct {
	conn PacketConn
}

// NewListener creates a Listener from the given configuration.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	conn, err := newPacketConn(context.Background(), cfg.Addr, port, cfg.IfName)
	if err != nil {
		return nil, err
	}

	return &Listener{conn: conn}, nil
}

// NewListenerFromConn creates a Listener from an existing PacketConn. Used
// for testing with mock connections.
func NewListenerFromConn(conn PacketConn) *Listener {
	return &Listener{conn: conn}
}

// Recv blocks until a VL1 wire packet is received or ctx is cancelled.
// Returns the raw packet bytes (from an internal pool) and transport
// metadata. The caller must call ReleaseBuffer(buf) once done with it.
func (l *Listener) Recv(ctx context.Context) ([]byte, PacketMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, PacketMeta{}, fmt.Errorf("listener recv: %w", err)
	}

	bufp, ok := packetPool.Get().(*[]byte)
	if !ok {
		return nil, PacketMeta{}, fmt.Errorf("listener recv: %w", ErrPoolType)
	}

	n, meta, err := l.conn.ReadPacket(*bufp)
	if err != nil {
		packetPool.Put(bufp)
		return nil, PacketMeta{}, fmt.Errorf("listener read: %w", err)
	}

	return (*bufp)[:n], meta, nil
}

// ReleaseBuffer returns a buffer obtained from Recv to the pool.
func ReleaseBuffer(buf []byte) {
	b := buf[:cap(buf)]
	packetPool.Put(&b)
}

// Close closes the underlying PacketConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// LocalAddr returns the address the listener is bound to.
func (l *Listener) LocalAddr() netip.AddrPort {
	return l.conn.LocalAddr()
}
