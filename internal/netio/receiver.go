package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// ErrNoListeners indicates that Run was called without any listeners.
var ErrNoListeners = errors.New("receiver run: no listeners provided")

// Receiver reads VL1 wire packets from one or more Listeners and feeds
// them to a Node's ingress dispatcher (C8).
//
// The Receiver handles:
//   - Buffer management via the shared packet pool
//   - Metadata conversion from netio.PacketMeta to vl1's Endpoint/
//     LocalSocket/LocalInterface triple
//   - Context-aware graceful shutdown
type Receiver struct {
	node   *vl1.Node
	host   vl1.HostSystem
	logger *slog.Logger
}

// NewReceiver creates a Receiver that feeds packets to node's ingress
// dispatcher, using host for timestamps and any host-level bookkeeping
// HandleIncomingPhysicalPacket performs along the way.
func NewReceiver(node *vl1.Node, host vl1.HostSystem, logger *slog.Logger) *Receiver {
	return &Receiver{
		node:   node,
		host:   host,
		logger: logger.With(slog.String("component", "netio.receiver")),
	}
}

// Run reads from all listeners concurrently until ctx is cancelled. Each
// listener gets its own goroutine; Run blocks until all of them return.
//
// Errors from individual packet reads are logged but do not stop the
// receiver. Only context cancellation terminates the loop.
func (r *Receiver) Run(ctx context.Context, listeners ...*Listener) error {
	if len(listeners) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoListeners)
	}

	done := make(chan struct{}, len(listeners))

	for _, ln := range listeners {
		go func(l *Listener) {
			r.recvLoop(ctx, l)
			done <- struct{}{}
		}(ln)
	}

	for range len(listeners) {
		<-done
	}

	return nil
}

func (r *Receiver) recvLoop(ctx context.Context, ln *Listener) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(ctx, ln); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
		}
	}
}

// recvOne performs a single receive-dispatch cycle. The pooled read buffer
// is copied and released immediately: HandleIncomingPhysicalPacket's
// fragment reassembler may retain the slice it is given across multiple
// calls, so the pool's backing array must not be reused underneath it.
func (r *Receiver) recvOne(ctx context.Context, ln *Listener) error {
	raw, meta, err := ln.Recv(ctx)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}

	owned := make([]byte, len(raw))
	copy(owned, raw)
	ReleaseBuffer(raw)

	endpoint := vl1.NewIPEndpoint(netip.AddrPortFrom(meta.SrcAddr, meta.SrcPort))
	localSocket := netip.AddrPortFrom(meta.DstAddr, 0)

	r.node.HandleIncomingPhysicalPacket(r.host, endpoint, localSocket, meta.IfName, owned)
	return nil
}
