package vl1

// keepaliveByte is the arbitrary single-byte payload sent to paths that
// need a keepalive; its content carries no meaning (§4.3).
const keepaliveByte = 0

// DoBackgroundTasks runs one scheduler tick (C7, §4.7): it polls all six
// interval gates under one short-lived lock, releases it, and then
// executes only the gated actions without holding the scheduler lock
// across any of them. It returns the fixed interval the caller should wait
// before calling again.
func (n *Node) DoBackgroundTasks(host HostSystem) int64 {
	nowTicks := host.TimeTicks()

	n.intervals.mu.Lock()
	rootSync := n.intervals.rootSync.gate(nowTicks)
	rootHello := n.intervals.rootHello.gate(nowTicks)
	rootSpamHello := n.intervals.rootSpamHello.gate(nowTicks)
	peerService := n.intervals.peerService.gate(nowTicks)
	pathService := n.intervals.pathService.gate(nowTicks)
	whoisRetry := n.intervals.whoisRetry.gate(nowTicks)
	n.intervals.mu.Unlock()

	// root_spam_hello only fires while offline: we "spam" roots to
	// re-establish contact faster, but only when contact is actually lost.
	if rootSpamHello {
		rootSpamHello = !n.IsOnline()
	}

	if rootSync {
		n.Roots.rootSync(host, n.Peers, n.Identity, n.inner, nowTicks)
	}

	if rootHello || rootSpamHello {
		n.Roots.sendRootHellos(host, n.helloPayload(nowTicks))
	}

	if peerService {
		n.serviceTickPeers(nowTicks)
	}

	if pathService {
		n.serviceTickPaths(host, nowTicks)
	}

	if whoisRetry {
		n.Whois.RetrySweep(host, n.whoisSender, n.Roots.BestRoot())
	}

	return BackgroundTaskInterval
}

// helloPayload builds the payload sent with a HELLO. The HELLO verb body
// itself belongs to the upper/legacy wire protocol, out of this core's
// scope; a single timestamp byte stands in for it here, mirroring the
// arbitrary keepalive payload used for path service.
func (n *Node) helloPayload(nowTicks int64) []byte {
	return []byte{byte(nowTicks)}
}

// serviceTickPeers implements the §4.4 peer-service sweep: roots read
// access is held while peers are iterated under their own read access
// (lock-ordering discipline §5 rule 1), collecting addresses whose
// Service() call failed and that are not pinned as roots; those addresses
// are then removed under peers' exclusive access.
func (n *Node) serviceTickPeers(nowTicks int64) {
	n.Roots.mu.RLock()
	dead := n.Peers.serviceSweep(nowTicks, n.Roots.isRootLocked)
	n.Roots.mu.RUnlock()

	for _, addr := range dead {
		n.Peers.Remove(addr)
	}
}

// serviceTickPaths implements the §4.3 path-service sweep: classify under
// read access, remove dead paths under a brief exclusive lock, then send
// keepalives without holding any lock.
func (n *Node) serviceTickPaths(host HostSystem, nowTicks int64) {
	res := n.Paths.serviceSweep(host, nowTicks)
	for _, p := range res.needKeepalive {
		host.WireSend(p.Endpoint, p.LocalSocket, p.LocalInterface, []byte{keepaliveByte}, 0)
	}
}
