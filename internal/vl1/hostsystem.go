package vl1

import "net/netip"

// LocalSocket is an opaque handle to a local send/receive socket, supplied
// by the embedding runtime. It is hashable, equality-comparable, and
// displayable by virtue of being a concrete, comparable type.
type LocalSocket = netip.AddrPort

// LocalInterface is an opaque handle to a local network interface, supplied
// by the embedding runtime.
type LocalInterface = string

// Event is a VL1-level notification delivered asynchronously to the host
// system.
type Event interface {
	// vl1Event is unexported so Event is a closed set of concrete types.
	vl1Event()
}

// EventIdentityAutoGenerated fires when the node had no stored identity and
// generated one.
type EventIdentityAutoGenerated struct{ Identity Identity }

// EventIdentityAutoUpgraded fires when the node's identity was upgraded.
type EventIdentityAutoUpgraded struct{ Old, New Identity }

// EventOnline fires exactly once per online/offline transition.
type EventOnline struct{ Online bool }

// EventUpdatedRoots fires when the root-sync sweep installs a new roots
// map, carrying the old and new sorted sets of root addresses.
type EventUpdatedRoots struct{ Old, New []Address }

// EventSecurityWarning fires for security-relevant conditions: root-set
// address collisions, invalid root identities, and similar.
type EventSecurityWarning struct{ Text string }

func (EventIdentityAutoGenerated) vl1Event() {}
func (EventIdentityAutoUpgraded) vl1Event()  {}
func (EventOnline) vl1Event()                {}
func (EventUpdatedRoots) vl1Event()          {}
func (EventSecurityWarning) vl1Event()       {}

// HostSystem is the capability set the embedding runtime provides to a
// Node. It is the node's only interaction with the outside world: physical
// transmission, clocks, and event delivery.
type HostSystem interface {
	// Event delivers an asynchronous VL1-level notification.
	Event(e Event)

	// LocalSocketIsValid reports whether a local socket handle is still
	// usable (its interface/port has not disappeared).
	LocalSocketIsValid(ls LocalSocket) bool

	// WireSend is a best-effort physical transmission. If localSocket is
	// the zero value, the implementation may choose any socket on
	// localInterface (or any socket at all, if that too is empty). ttl==0
	// means "use the default TTL."
	WireSend(endpoint Endpoint, localSocket LocalSocket, localInterface LocalInterface, data []byte, ttl uint8)

	// TimeTicks returns a monotonic millisecond clock, resolution <= 250ms.
	TimeTicks() int64

	// TimeClock returns wall-clock milliseconds since epoch, resolution
	// <= 1s.
	TimeClock() int64
}

// NodeStorage provides persistence for the node's long-lived identity. Root
// sets are explicitly not persisted by the core.
type NodeStorage interface {
	LoadNodeIdentity() (Identity, bool)
	SaveNodeIdentity(id Identity)
}

// PathFilter gates physical-path admission and supplies path hints. The
// "should this packet be forwarded" decision left unresolved in the
// upstream source is expressed here via CheckPath: C8 forwarding consults
// the configured PathFilter before invoking Peer.Forward.
type PathFilter interface {
	// CheckPath reports whether endpoint should be used for VL1 traffic
	// to id, arriving/departing via the given local socket and interface.
	CheckPath(id Identity, endpoint Endpoint, localSocket LocalSocket, localInterface LocalInterface) bool

	// GetPathHints returns any statically defined or memorized paths to a
	// known identity, or nil if there are none.
	GetPathHints(id Identity) []PathHint
}

// PathHint is a candidate physical path surfaced by a PathFilter.
type PathHint struct {
	Endpoint      Endpoint
	LocalSocket   LocalSocket
	LocalInterface LocalInterface
}

// PacketHandlerResult is the three-valued outcome of an InnerProtocol
// handler invocation.
type PacketHandlerResult uint8

const (
	// HandlerOK indicates the packet was handled successfully.
	HandlerOK PacketHandlerResult = iota
	// HandlerError indicates the packet was handled and an error occurred
	// (malformed, authentication failure, etc).
	HandlerError
	// HandlerNotHandled indicates the packet was not recognized by this
	// handler.
	HandlerNotHandled
)

// InnerProtocol is the interface between VL1 and the upper protocol layer
// that interprets packet verbs. VL1 is agnostic to what it carries; this is
// the seam at which a concrete upper protocol attaches.
type InnerProtocol interface {
	// HandlePacket handles a non-OK, non-ERROR verb.
	HandlePacket(source *Peer, sourcePath *Path, verb uint8, payload []byte) PacketHandlerResult

	// HandleError handles an ERROR reply to a previously sent verb.
	HandleError(source *Peer, sourcePath *Path, inReVerb uint8, inReMessageID uint64, errorCode uint8, payload []byte) PacketHandlerResult

	// HandleOK handles an OK reply to a previously sent verb.
	HandleOK(source *Peer, sourcePath *Path, inReVerb uint8, inReMessageID uint64, payload []byte) PacketHandlerResult

	// ShouldCommunicateWith reports whether this node should talk to id
	// at all.
	ShouldCommunicateWith(id Identity) bool
}

// NoopInnerProtocol is a no-op InnerProtocol for standalone use of VL1
// without an upper-layer protocol, mirroring the upstream DummyInnerProtocol
// used for debugging and "off-label" use of VL1 to carry other protocols.
type NoopInnerProtocol struct{}

func (NoopInnerProtocol) HandlePacket(*Peer, *Path, uint8, []byte) PacketHandlerResult {
	return HandlerNotHandled
}

func (NoopInnerProtocol) HandleError(*Peer, *Path, uint8, uint64, uint8, []byte) PacketHandlerResult {
	return HandlerNotHandled
}

func (NoopInnerProtocol) HandleOK(*Peer, *Path, uint8, uint64, []byte) PacketHandlerResult {
	return HandlerNotHandled
}

func (NoopInnerProtocol) ShouldCommunicateWith(Identity) bool { return true }

// AllowAllPathFilter is a no-op PathFilter that admits every path and
// supplies no hints, mirroring the upstream DummyPathFilter.
type AllowAllPathFilter struct{}

func (AllowAllPathFilter) CheckPath(Identity, Endpoint, LocalSocket, LocalInterface) bool {
	return true
}

func (AllowAllPathFilter) GetPathHints(Identity) []PathHint { return nil }
