package vl1

import (
	"errors"
	"log/slog"
	"sync"
)

// BackgroundTaskInterval is the fixed cadence at which DoBackgroundTasks
// should be invoked by the embedding runtime (§4.7).
const BackgroundTaskInterval = 1000 // milliseconds

// ErrNoIdentity is returned by NewNode when no identity was found in
// storage and auto-generation was not requested.
var ErrNoIdentity = errors.New("vl1: no identity found and auto-generate not enabled")

// intervalGate is a monotone, period-gated latch: Gate reports true at most
// once per period, based on elapsed ticks since it last fired.
type intervalGate struct {
	period int64
	last   int64
	armed  bool
}

func newIntervalGate(period int64) intervalGate {
	return intervalGate{period: period}
}

func (g *intervalGate) gate(now int64) bool {
	if !g.armed {
		g.armed = true
		g.last = now
		return true
	}
	if now-g.last >= g.period {
		g.last = now
		return true
	}
	return false
}

// backgroundTaskIntervals bundles the six C7 interval gates behind a single
// short-lived lock, polled once per tick (§4.7).
type backgroundTaskIntervals struct {
	mu            sync.Mutex
	rootSync      intervalGate
	rootHello     intervalGate
	rootSpamHello intervalGate
	peerService   intervalGate
	pathService   intervalGate
	whoisRetry    intervalGate
}

func newBackgroundTaskIntervals() *backgroundTaskIntervals {
	return &backgroundTaskIntervals{
		rootSync:      newIntervalGate(RootSyncInterval),
		rootHello:     newIntervalGate(RootHelloInterval),
		rootSpamHello: newIntervalGate(RootHelloSpamInterval),
		peerService:   newIntervalGate(PeerServiceInterval),
		pathService:   newIntervalGate(PathServiceInterval),
		whoisRetry:    newIntervalGate(WhoisRetryInterval),
	}
}

// Node is a VL1 node: the control plane that maintains peers, physical
// paths, root membership, online status, background servicing, and packet
// ingress dispatch (C1-C9 composed together).
type Node struct {
	// InstanceID identifies this particular running instance, allowing
	// remote nodes to distinguish instances that share an identity
	// (multi-homing). Generated once at construction.
	InstanceID [16]byte

	Identity Identity

	storage     NodeStorage
	pathFilter  PathFilter
	inner       InnerProtocol
	whoisSender WhoisSender
	logger      *slog.Logger

	intervals *backgroundTaskIntervals

	Paths *PathTable
	Peers *PeerTable
	Roots *RootManager
	Whois *WhoisQueue
}

// NodeOption configures optional Node behavior at construction.
type NodeOption func(*Node)

// WithPathFilter overrides the default AllowAllPathFilter.
func WithPathFilter(f PathFilter) NodeOption {
	return func(n *Node) { n.pathFilter = f }
}

// WithInnerProtocol overrides the default NoopInnerProtocol.
func WithInnerProtocol(p InnerProtocol) NodeOption {
	return func(n *Node) { n.inner = p }
}

// WithWhoisSender overrides the default no-op WHOIS sender.
func WithWhoisSender(s WhoisSender) NodeOption {
	return func(n *Node) { n.whoisSender = s }
}

// WithLogger overrides the default discard logger.
func WithLogger(l *slog.Logger) NodeOption {
	return func(n *Node) { n.logger = l }
}

// noopWhoisSender is installed when no WhoisSender is supplied: WHOIS
// requests are silently dropped rather than sent, since the wire format for
// send_whois is an Open Question left to the embedding protocol (§9).
type noopWhoisSender struct{}

func (noopWhoisSender) SendWhois(HostSystem, *Peer, []Address) {}

// NewNode constructs a Node. It loads the node's identity from storage,
// auto-generating and persisting one if none is found and
// autoGenerateIdentity is true; otherwise it returns ErrNoIdentity.
func NewNode(host HostSystem, storage NodeStorage, autoGenerateIdentity bool, opts ...NodeOption) (*Node, error) {
	id, ok := storage.LoadNodeIdentity()
	if !ok {
		if !autoGenerateIdentity {
			return nil, ErrNoIdentity
		}
		id = GenerateIdentity()
		storage.SaveNodeIdentity(id)
		host.Event(EventIdentityAutoGenerated{Identity: id})
	}

	n := &Node{
		Identity:    id,
		storage:     storage,
		pathFilter:  AllowAllPathFilter{},
		inner:       NoopInnerProtocol{},
		whoisSender: noopWhoisSender{},
		logger:      discardLogger(),
		intervals:   newBackgroundTaskIntervals(),
		Paths:       NewPathTable(),
		Peers:       NewPeerTable(),
		Roots:       NewRootManager(),
		Whois:       NewWhoisQueue(),
	}
	for i := 0; i < 2; i++ {
		binary64(n.InstanceID[i*8:], xorshift64Random())
	}
	for _, opt := range opts {
		opt(n)
	}

	n.logger.Debug("vl1 node constructed", "address", n.Identity.Address().String())
	return n, nil
}

func binary64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Peer returns the peer at address, if known.
func (n *Node) Peer(address Address) (*Peer, bool) {
	return n.Peers.Get(address)
}

// IsOnline reports whether this node can currently reach at least one root.
func (n *Node) IsOnline() bool { return n.Roots.IsOnline() }

// BestRoot returns the current best root peer, or nil.
func (n *Node) BestRoot() *Peer { return n.Roots.BestRoot() }

// HasRootsDefined reports whether any trusted root set has members.
func (n *Node) HasRootsDefined() bool { return n.Roots.HasRootsDefined() }

// InitDefaultRoots adds a starter root set if, and only if, no roots are
// currently defined. It returns whether it made a change.
func (n *Node) InitDefaultRoots(defaultSet RootSet) bool {
	if n.HasRootsDefined() {
		return false
	}
	return n.Roots.AddUpdateRootSet(defaultSet)
}

// ThisNodeIsRoot reports whether this node is itself a member of a trusted
// root set.
func (n *Node) ThisNodeIsRoot() bool { return n.Roots.ThisNodeIsRoot() }

// IsPeerRoot reports whether peer is a trusted root.
func (n *Node) IsPeerRoot(peer *Peer) bool { return n.Roots.IsPeerRoot(peer) }

// RootSets returns the root sets this node trusts.
func (n *Node) RootSets() []RootSet { return n.Roots.RootSets() }

// AddUpdateRootSet adds or replaces a trusted root set (administrative
// operation; see spec.md §7 propagation policy).
func (n *Node) AddUpdateRootSet(rs RootSet) bool { return n.Roots.AddUpdateRootSet(rs) }

// RemoteUpdateRootSet applies a root-set update received over the wire.
func (n *Node) RemoteUpdateRootSet(from Identity, rs RootSet) {
	n.Roots.RemoteUpdateRootSet(from, rs)
}

// CanonicalPath returns the shared Path object for (ep, ls), creating it if
// necessary (C3).
func (n *Node) CanonicalPath(host HostSystem, ep Endpoint, ls LocalSocket, li LocalInterface) *Path {
	return n.Paths.CanonicalPath(ep, ls, li, host.TimeTicks())
}

// Whois enqueues an identity lookup for address, optionally attaching a
// waiting packet (C6).
func (n *Node) whois(host HostSystem, address Address, waitingPacket []byte) {
	n.Whois.Whois(host, n.whoisSender, n.Roots.BestRoot(), address, waitingPacket)
}
