package netio

// host.go: Host implements vl1.HostSystem on top of this package's UDP
// senders, overlay tunnel connections, and interface monitor. It is the
// seam between the VL1 core and the concrete transport a daemon runs.

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// Host is a vl1.HostSystem backed by one UDP sender per bound local
// address, optional VXLAN/Geneve overlay connections, and an
// InterfaceMonitor for liveness checks.
type Host struct {
	logger *slog.Logger
	ifmon  InterfaceMonitor

	mu       sync.RWMutex
	senders  map[netip.Addr]*UDPSender
	vxlan    *VXLANConn
	geneve   *GeneveConn
}

// NewHost creates a Host with no senders or overlay connections attached.
// Call AddSender/SetVXLANConn/SetGeneveConn to wire transports before
// passing the Host to vl1.NewNode.
func NewHost(ifmon InterfaceMonitor, logger *slog.Logger) *Host {
	return &Host{
		logger:  logger.With(slog.String("component", "netio.host")),
		ifmon:   ifmon,
		senders: make(map[netip.Addr]*UDPSender),
	}
}

// AddSender registers a UDPSender as the transmit path for its bound
// local address, keyed by localAddr. WireSend picks the sender registered
// under the destination's own address if there is one, else any sender
// whose local address has the destination's address family; WireSend's
// LocalSocket argument is not consulted.
func (h *Host) AddSender(s *UDPSender, localAddr netip.Addr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders[localAddr] = s
}

// SetVXLANConn attaches the VXLAN overlay connection used for
// vl1.EndpointVXLAN destinations.
func (h *Host) SetVXLANConn(conn *VXLANConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vxlan = conn
}

// SetGeneveConn attaches the Geneve overlay connection used for
// vl1.EndpointGeneve destinations.
func (h *Host) SetGeneveConn(conn *GeneveConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.geneve = conn
}

// Event logs a VL1-level notification. A daemon embedding Host can wrap
// it (or replace it outright) to also update metrics or admin-API state.
func (h *Host) Event(e vl1.Event) {
	switch ev := e.(type) {
	case vl1.EventIdentityAutoGenerated:
		h.logger.Info("identity auto-generated", slog.String("address", ev.Identity.Address().String()))
	case vl1.EventIdentityAutoUpgraded:
		h.logger.Info("identity auto-upgraded")
	case vl1.EventOnline:
		h.logger.Info("online state changed", slog.Bool("online", ev.Online))
	case vl1.EventUpdatedRoots:
		h.logger.Info("root set updated", slog.Int("old_count", len(ev.Old)), slog.Int("new_count", len(ev.New)))
	case vl1.EventSecurityWarning:
		h.logger.Warn("security warning", slog.String("text", ev.Text))
	default:
		h.logger.Debug("event", slog.Any("event", ev))
	}
}

// LocalSocketIsValid reports whether ls is still usable. A LocalSocket is
// just a bound address:port with no attached interface name, so the only
// thing Host can say about it without the name an operation's
// localInterface parameter carries is whether the socket itself parses;
// interface-level liveness is enforced via localInterface at WireSend time
// instead, through the attached InterfaceMonitor.
func (h *Host) LocalSocketIsValid(ls vl1.LocalSocket) bool {
	return netip.AddrPort(ls).IsValid()
}

// WireSend transmits data to endpoint. IP endpoints go out a plain UDP
// sender; VXLAN/Geneve endpoints are wrapped by the attached overlay
// connection. Errors are logged, not returned, per HostSystem's
// best-effort contract.
func (h *Host) WireSend(endpoint vl1.Endpoint, _ vl1.LocalSocket, localInterface vl1.LocalInterface, data []byte, ttl uint8) {
	if localInterface != "" && h.ifmon != nil && !h.ifmon.IsUp(string(localInterface)) {
		h.logger.Debug("wire send skipped: interface down",
			slog.String("interface", string(localInterface)), slog.String("endpoint", endpoint.String()))
		return
	}

	switch endpoint.Kind() {
	case vl1.EndpointIP:
		h.sendIP(endpoint.AddrPort(), data, ttl)
	case vl1.EndpointVXLAN:
		h.sendVXLAN(endpoint, data)
	case vl1.EndpointGeneve:
		h.sendGeneve(endpoint, data)
	case vl1.EndpointSymbolic:
		h.logger.Debug("wire send to symbolic endpoint has no local transport",
			slog.String("endpoint", endpoint.String()))
	default:
		h.logger.Warn("wire send to endpoint of unknown kind", slog.String("endpoint", endpoint.String()))
	}
}

func (h *Host) sendIP(dst netip.AddrPort, data []byte, ttl uint8) {
	s := h.pickSender(dst.Addr())
	if s == nil {
		h.logger.Warn("wire send: no sender for address family", slog.String("dst", dst.String()))
		return
	}
	if err := s.Send(dst, data, ttl); err != nil {
		h.logger.Warn("wire send failed", slog.String("dst", dst.String()), slog.String("error", err.Error()))
	}
}

func (h *Host) sendVXLAN(endpoint vl1.Endpoint, data []byte) {
	h.mu.RLock()
	conn := h.vxlan
	h.mu.RUnlock()
	if conn == nil {
		h.logger.Warn("wire send: no vxlan connection attached")
		return
	}
	if err := conn.SendEncapsulated(bgCtx, data, endpoint.AddrPort().Addr(), endpoint.VNI()); err != nil {
		h.logger.Warn("vxlan send failed", slog.String("error", err.Error()))
	}
}

func (h *Host) sendGeneve(endpoint vl1.Endpoint, data []byte) {
	h.mu.RLock()
	conn := h.geneve
	h.mu.RUnlock()
	if conn == nil {
		h.logger.Warn("wire send: no geneve connection attached")
		return
	}
	if err := conn.SendEncapsulated(bgCtx, data, endpoint.AddrPort().Addr(), endpoint.VNI()); err != nil {
		h.logger.Warn("geneve send failed", slog.String("error", err.Error()))
	}
}

func (h *Host) pickSender(addr netip.Addr) *UDPSender {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if s, ok := h.senders[addr]; ok {
		return s
	}
	// Fall back to any sender whose local address has the destination's
	// address family.
	for local, s := range h.senders {
		if local.Is4() == addr.Is4() {
			return s
		}
	}
	return nil
}

// tickBase anchors TimeTicks; time.Since measures from it on the
// monotonic clock reading time.Now records.
var tickBase = time.Now()

// TimeTicks returns a monotonic millisecond clock, counted from process
// start.
func (h *Host) TimeTicks() int64 {
	return time.Since(tickBase).Milliseconds()
}

// TimeClock returns wall-clock milliseconds since epoch.
func (h *Host) TimeClock() int64 {
	return time.Now().UnixMilli()
}

var bgCtx = context.Background()
