package vl1

// HandleIncomingPhysicalPacket is the ingress dispatcher (C8, §4.8). It
// classifies an inbound datagram by its wire discriminator, canonicalizes
// its arrival path, reassembles fragments if needed, and either delivers
// the result to a local peer (resolving the source address via WHOIS if
// necessary) or forwards it toward another peer with a decremented hop
// budget.
//
// Arrival-path canonicalization strictly precedes any reassembler action,
// because the reassembler belongs to the path (§4.8 Ordering).
func (n *Node) HandleIncomingPhysicalPacket(host HostSystem, sourceEndpoint Endpoint, sourceLocalSocket LocalSocket, sourceLocalInterface LocalInterface, data []byte) {
	if IsV2Wire(data) {
		// The forward-secure v2 transport is out of core scope; only its
		// discriminator is recognized here (spec.md §1, §9).
		n.logger.Debug("vl1 ingress: v2/ZSSP packet discriminator seen, dropping (out of core scope)")
		return
	}

	header, ok := parseV1Header(data)
	if !ok {
		return
	}
	dest, ok := header.Dest()
	if !ok {
		return
	}

	nowTicks := host.TimeTicks()
	path := n.CanonicalPath(host, sourceEndpoint, sourceLocalSocket, sourceLocalInterface)
	path.LogReceiveAnything(nowTicks)

	if dest == n.Identity.Address() {
		n.deliverLocal(host, path, header, data, nowTicks)
		return
	}

	n.forward(host, dest, sourceEndpoint, sourceLocalSocket, sourceLocalInterface, header, nowTicks)
}

// deliverLocal handles a datagram addressed to this node: either it
// completes (or continues) fragment reassembly, or it is delivered
// directly.
func (n *Node) deliverLocal(host HostSystem, path *Path, header v1Header, data []byte, nowTicks int64) {
	if header.IsFragment() {
		assembled, complete := path.ReceiveFragment(header.PacketID(), header.FragmentNo(), header.FragmentCount(), data)
		if !complete {
			return
		}
		frags := assembled.Fragments()
		frag0, ok := parseV1Header(frags[0])
		if !ok {
			return
		}
		source, ok := frag0.Source()
		if !ok {
			return
		}
		trailing := make([][]byte, 0, len(frags)-1)
		for _, f := range frags[1:] {
			trailing = append(trailing, f)
		}
		n.deliverResolved(host, path, frag0, source, frags[0], trailing, nowTicks)
		return
	}

	source, ok := header.Source()
	if !ok {
		return
	}
	n.deliverResolved(host, path, header, source, data, nil, nowTicks)
}

// deliverResolved looks up the source peer and either delivers the packet
// or, if the source is unknown, enqueues a WHOIS lookup carrying the
// packet for re-delivery once the identity resolves.
func (n *Node) deliverResolved(host HostSystem, path *Path, header v1Header, source Address, data []byte, trailing [][]byte, nowTicks int64) {
	peer, found := n.Peers.Get(source)
	if !found {
		n.whois(host, source, data)
		return
	}
	peer.RecordReceive(path, nowTicks)
	n.dispatch(host, peer, path, header.Verb(), header.Payload())
	for _, frag := range trailing {
		if h, ok := parseV1Header(frag); ok {
			n.dispatch(host, peer, path, h.Verb(), h.Payload())
		}
	}
}

// dispatch routes one verb's payload to the appropriate handler. OK and
// ERROR handling is separated from generic packet handling (§4.9/C9): OK
// replies to an outstanding WHOIS are resolved by VL1 core itself (C6 is
// core's responsibility, not the upper protocol's), every other OK and
// every ERROR go to the InnerProtocol's dedicated handlers, and all
// remaining verbs go to HandlePacket.
func (n *Node) dispatch(host HostSystem, peer *Peer, path *Path, verb uint8, payload []byte) {
	switch verb {
	case VerbOK:
		inReVerb, inReMessageID, body, ok := parseOKPayload(payload)
		if !ok {
			return
		}
		if inReVerb == VerbWhoisRequest {
			n.handleWhoisResponse(host, path, body)
			return
		}
		n.inner.HandleOK(peer, path, inReVerb, inReMessageID, body)
	case VerbError:
		inReVerb, inReMessageID, errorCode, body, ok := parseErrorPayload(payload)
		if !ok {
			return
		}
		n.inner.HandleError(peer, path, inReVerb, inReMessageID, errorCode, body)
	default:
		n.inner.HandlePacket(peer, path, verb, payload)
	}
}

// handleWhoisResponse admits every (address, identity) pair in a WHOIS OK
// reply body as a peer — subject to the InnerProtocol's
// ShouldCommunicateWith veto — and re-injects that address's queued
// packets as though freshly received on path (§4.6).
func (n *Node) handleWhoisResponse(host HostSystem, path *Path, body []byte) {
	nowTicks := host.TimeTicks()
	for _, entry := range parseWhoisResponseBody(body) {
		if !n.inner.ShouldCommunicateWith(entry.identity) {
			continue
		}
		if _, ok := n.Peers.GetOrUpgradableInsert(entry.address, func() (*Peer, bool) {
			return NewPeer(entry.identity, nowTicks)
		}); !ok {
			continue
		}
		n.DeliverWhoisResolved(host, entry.address, path)
	}
}

// DeliverWhoisResolved re-injects the packets that were queued while
// address was unresolved, as though they were freshly received on path,
// once a WHOIS response resolves that address to a peer. Called from
// handleWhoisResponse once the resolved identity clears
// ShouldCommunicateWith and is admitted to the peer table.
func (n *Node) DeliverWhoisResolved(host HostSystem, address Address, path *Path) {
	waiting, ok := n.Whois.Resolve(address)
	if !ok {
		return
	}
	peer, found := n.Peers.Get(address)
	if !found {
		return
	}
	nowTicks := host.TimeTicks()
	for _, data := range waiting {
		header, ok := parseV1Header(data)
		if !ok {
			continue
		}
		peer.RecordReceive(path, nowTicks)
		n.dispatch(host, peer, path, header.Verb(), header.Payload())
	}
}

// forward handles a datagram addressed to another node: increment its hop
// count, drop it if the hop budget is exhausted, and otherwise emit it
// toward the destination peer's best path if one is known and the
// configured PathFilter admits it. Forwarding never consults the
// reassembler — fragments are forwarded verbatim (§4.8 Ordering).
func (n *Node) forward(host HostSystem, dest Address, sourceEndpoint Endpoint, sourceLocalSocket LocalSocket, sourceLocalInterface LocalInterface, header v1Header, nowTicks int64) {
	if header.IncrementHops() > ForwardMaxHops {
		return
	}
	peer, found := n.Peers.Get(dest)
	if !found {
		return
	}
	if !n.pathFilter.CheckPath(peer.Identity, sourceEndpoint, sourceLocalSocket, sourceLocalInterface) {
		return
	}
	peer.Forward(host, nowTicks, header.data)
}
