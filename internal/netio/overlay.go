package netio

// overlay.go: Shared abstractions for VL1 wire packets carried over a
// tunnel encapsulation (VXLAN or Geneve) rather than bare UDP.
//
//	                OverlayConn (interface)
//	               /                      \
//	        VXLANConn                  GeneveConn
//	     (vxlan_conn.go)            (geneve_conn.go)
//
// OverlayReceiver reads from an OverlayConn and feeds decapsulated
// packets to a vl1.Node's ingress dispatcher, mirroring the plain
// UDP Receiver/Listener pair.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// OverlayConn abstracts a tunnel connection carrying VL1 wire packets.
// Implementations handle the tunnel-specific header marshaling and
// own a UDP socket bound to the tunnel port (4789 for VXLAN, 6081 for
// Geneve).
type OverlayConn interface {
	// SendEncapsulated wraps payload in the tunnel encapsulation tagged
	// with vni and sends it to dstAddr.
	SendEncapsulated(ctx context.Context, payload []byte, dstAddr netip.Addr, vni uint32) error

	// RecvDecapsulated reads a tunnel packet from the socket, strips the
	// tunnel header, and returns the inner VL1 payload along with overlay
	// metadata (source address, VNI).
	RecvDecapsulated(ctx context.Context) ([]byte, OverlayMeta, error)

	// Close releases the underlying UDP socket.
	Close() error
}

// OverlayMeta holds metadata extracted from a received tunnel packet.
type OverlayMeta struct {
	// SrcAddr is the source VTEP (VXLAN) or NVE (Geneve) IP address
	// from the outer UDP packet.
	SrcAddr netip.Addr

	// DstAddr is the destination VTEP/NVE IP address from the outer
	// UDP packet (the local system's tunnel endpoint).
	DstAddr netip.Addr

	// VNI is the tunnel's Virtual Network Identifier (24-bit).
	VNI uint32
}

// Overlay tunnel errors.
var (
	// ErrOverlayVNIMismatch indicates the received packet's VNI does not
	// match the VNI a connection was configured to expect.
	ErrOverlayVNIMismatch = errors.New("overlay: VNI mismatch")

	// ErrOverlayRecvClosed indicates the overlay connection was closed
	// during a send or receive operation.
	ErrOverlayRecvClosed = errors.New("overlay: connection closed")

	// ErrOverlayInvalidAddr indicates the remote address from the outer
	// UDP packet could not be parsed.
	ErrOverlayInvalidAddr = errors.New("overlay: invalid remote address")
)

// OverlayReceiver reads tunnel-encapsulated packets from an OverlayConn,
// strips the tunnel header, and delivers the inner VL1 wire packet to a
// Node's ingress dispatcher (C8), tagging the source as an
// EndpointVXLAN or EndpointGeneve depending on what conn produces.
//
// This is the tunnel equivalent of netio.Receiver.
type OverlayReceiver struct {
	conn     OverlayConn
	node     *vl1.Node
	host     vl1.HostSystem
	endpoint func(addr netip.Addr, vni uint32) vl1.Endpoint
	ifName   string
	logger   *slog.Logger
}

// NewOverlayReceiver creates a receiver that strips tunnel encapsulation
// and delivers inner VL1 packets to node. endpoint builds the concrete
// Endpoint (VXLAN or Geneve) to report as the packet's source, using the
// VTEP/NVE address and VNI from the decapsulated packet's metadata.
func NewOverlayReceiver(
	conn OverlayConn,
	node *vl1.Node,
	host vl1.HostSystem,
	ifName string,
	endpoint func(addr netip.Addr, vni uint32) vl1.Endpoint,
	logger *slog.Logger,
) *OverlayReceiver {
	return &OverlayReceiver{
		conn:     conn,
		node:     node,
		host:     host,
		endpoint: endpoint,
		ifName:   ifName,
		logger:   logger.With(slog.String("component", "netio.overlay_receiver")),
	}
}

// Run reads from the overlay connection in a loop until ctx is cancelled.
// Errors from individual packets are logged but do not stop the receiver.
// Only context cancellation terminates the loop.
func (r *OverlayReceiver) Run(ctx context.Context) error {
	r.logger.Info("overlay receiver started")

	for {
		if ctx.Err() != nil {
			r.logger.Info("overlay receiver stopped")
			return nil
		}

		if err := r.recvOne(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("overlay receiver stopped")
				return nil
			}
			r.logger.Warn("overlay recv error", slog.String("error", err.Error()))
		}
	}
}

func (r *OverlayReceiver) recvOne(ctx context.Context) error {
	payload, ometa, err := r.conn.RecvDecapsulated(ctx)
	if err != nil {
		return fmt.Errorf("overlay recv: %w", err)
	}

	ep := r.endpoint(ometa.SrcAddr, ometa.VNI)
	localSocket := netip.AddrPortFrom(ometa.DstAddr, 0)

	r.node.HandleIncomingPhysicalPacket(r.host, ep, localSocket, r.ifName, payload)
	return nil
}
