package vl1

import "sync"

// WHOIS tuning constants (§4.6, §4.7).
const (
	// WhoisRetryInterval is how often the background scheduler retries
	// outstanding WHOIS lookups.
	WhoisRetryInterval = 1000 // milliseconds

	// WhoisRetryCountMax is the maximum number of retry sweeps an
	// outstanding WHOIS entry survives before it, and its waiting packets,
	// are discarded.
	WhoisRetryCountMax = 10

	// WhoisMaxWaitingPackets bounds the ring of packets held per pending
	// WHOIS entry; the oldest is dropped on overflow.
	WhoisMaxWaitingPackets = 16
)

// whoisQueueItem tracks one outstanding identity lookup: the packets
// received while the address was unresolved, and how many retry sweeps
// have elapsed.
type whoisQueueItem struct {
	waiting    [][]byte
	retryCount uint16
}

// push appends data to the item's bounded ring, dropping the oldest entry
// on overflow.
func (qi *whoisQueueItem) push(data []byte) {
	qi.waiting = append(qi.waiting, data)
	if len(qi.waiting) > WhoisMaxWaitingPackets {
		qi.waiting = qi.waiting[len(qi.waiting)-WhoisMaxWaitingPackets:]
	}
}

// WhoisSender issues WHOIS requests to the current best root. Its wire
// format is an Open Question in spec.md §9 ("The send_whois path in source
// is empty"); this repo resolves it with a minimal verb (see
// internal/vl1/wire.go) sufficient to exercise the queue end-to-end.
type WhoisSender interface {
	SendWhois(host HostSystem, root *Peer, addresses []Address)
}

// WhoisQueue is the queue of identities being looked up (C6).
type WhoisQueue struct {
	mu    sync.Mutex
	items map[Address]*whoisQueueItem
}

// NewWhoisQueue constructs an empty WHOIS queue.
func NewWhoisQueue() *WhoisQueue {
	return &WhoisQueue{items: make(map[Address]*whoisQueueItem)}
}

// Whois enqueues a lookup for address, attaching an optional pending
// packet. If this is a brand-new (or previously-resolved) entry, a WHOIS
// request is sent immediately to the best root; if a lookup is already in
// flight, the packet is merely enqueued (§4.6).
func (q *WhoisQueue) Whois(host HostSystem, sender WhoisSender, bestRoot *Peer, address Address, waitingPacket []byte) {
	send := false
	q.mu.Lock()
	qi, ok := q.items[address]
	if !ok {
		qi = &whoisQueueItem{}
		q.items[address] = qi
	}
	if waitingPacket != nil {
		qi.push(waitingPacket)
	}
	if qi.retryCount == 0 {
		qi.retryCount++
		send = true
	}
	q.mu.Unlock()

	if send && bestRoot != nil {
		sender.SendWhois(host, bestRoot, []Address{address})
	}
}

// Resolve removes and returns the waiting packets queued for address, for
// re-injection into the ingress dispatcher as though freshly received. It
// reports false if there was no pending entry for address.
func (q *WhoisQueue) Resolve(address Address) ([][]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	qi, ok := q.items[address]
	if !ok {
		return nil, false
	}
	delete(q.items, address)
	return qi.waiting, true
}

// RetrySweep implements the §4.6 retry sweep: entries whose retry count has
// exceeded WhoisRetryCountMax are dropped along with their waiting packets;
// every surviving entry's retry count is incremented; a batched WHOIS is
// then issued for every surviving address.
func (q *WhoisQueue) RetrySweep(host HostSystem, sender WhoisSender, bestRoot *Peer) {
	q.mu.Lock()
	var need []Address
	for addr, qi := range q.items {
		if qi.retryCount > WhoisRetryCountMax {
			delete(q.items, addr)
			continue
		}
		qi.retryCount++
		need = append(need, addr)
	}
	q.mu.Unlock()

	if len(need) > 0 && bestRoot != nil {
		sender.SendWhois(host, bestRoot, need)
	}
}

// Len returns the number of outstanding WHOIS entries.
func (q *WhoisQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
