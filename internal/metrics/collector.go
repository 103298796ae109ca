package vl1metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "vl1"
	subsystem = "node"
)

// Label names for VL1 metrics.
const (
	labelEndpointKind = "endpoint_kind"
)

// -------------------------------------------------------------------------
// Collector — Prometheus VL1 Metrics
// -------------------------------------------------------------------------

// Collector holds all VL1 Prometheus metrics.
//
//   - Peers/Paths gauges track live C4/C3 table sizes; Roots counts the
//     C5 trusted root sets.
//   - Online is a 0/1 gauge mirroring RootManager.IsOnline.
//   - WhoisOutstanding tracks C6 queue depth.
//   - Packet counters track ingress classification outcomes.
type Collector struct {
	// Peers tracks the number of known peers (C4).
	Peers prometheus.Gauge

	// Paths tracks the number of canonicalized physical paths (C3), labeled
	// by endpoint kind.
	Paths *prometheus.GaugeVec

	// Roots tracks the number of currently trusted root sets (C5).
	Roots prometheus.Gauge

	// Online is 1 if the node currently considers itself online, else 0.
	Online prometheus.Gauge

	// WhoisOutstanding tracks the number of pending WHOIS lookups (C6).
	WhoisOutstanding prometheus.Gauge

	// PacketsDelivered counts packets dispatched to the inner protocol.
	PacketsDelivered prometheus.Counter

	// PacketsForwarded counts packets forwarded toward another peer.
	PacketsForwarded prometheus.Counter

	// PacketsDropped counts packets dropped by ingress (hop limit, unknown
	// destination, malformed header, disallowed path).
	PacketsDropped prometheus.Counter

	// SecurityWarnings counts EventSecurityWarning occurrences (address
	// collisions, bad root identities).
	SecurityWarnings prometheus.Counter
}

// NewCollector creates a Collector with all VL1 metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Peers,
		c.Paths,
		c.Roots,
		c.Online,
		c.WhoisOutstanding,
		c.PacketsDelivered,
		c.PacketsForwarded,
		c.PacketsDropped,
		c.SecurityWarnings,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of known peers.",
		}),

		Paths: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "paths",
			Help:      "Number of canonicalized physical paths, by endpoint kind.",
		}, []string{labelEndpointKind}),

		Roots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "roots",
			Help:      "Number of currently trusted root sets.",
		}),

		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "online",
			Help:      "1 if the node currently considers itself online, else 0.",
		}),

		WhoisOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "whois_outstanding",
			Help:      "Number of outstanding WHOIS lookups.",
		}),

		PacketsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_delivered_total",
			Help:      "Total packets dispatched to the inner protocol.",
		}),

		PacketsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_forwarded_total",
			Help:      "Total packets forwarded toward another peer.",
		}),

		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped by ingress.",
		}),

		SecurityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "security_warnings_total",
			Help:      "Total security-relevant events (address collisions, bad root identities).",
		}),
	}
}

// -------------------------------------------------------------------------
// Snapshot
// -------------------------------------------------------------------------

// Observe updates the table-size and online gauges from a live node. It is
// meant to be called on the same cadence as the node's background scheduler,
// or on demand immediately before a /metrics scrape.
func (c *Collector) Observe(n *vl1.Node) {
	c.Peers.Set(float64(n.Peers.Len()))
	c.Roots.Set(float64(len(n.RootSets())))
	c.WhoisOutstanding.Set(float64(n.Whois.Len()))
	if n.IsOnline() {
		c.Online.Set(1)
	} else {
		c.Online.Set(0)
	}
}

// -------------------------------------------------------------------------
// Event Recording
// -------------------------------------------------------------------------

// RecordEvent updates counters from a VL1 host-delivered event. It is
// intended to be wired as (part of) a HostSystem.Event implementation.
func (c *Collector) RecordEvent(e vl1.Event) {
	if _, ok := e.(vl1.EventSecurityWarning); ok {
		c.SecurityWarnings.Inc()
	}
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsDelivered increments the delivered-packet counter.
func (c *Collector) IncPacketsDelivered() { c.PacketsDelivered.Inc() }

// IncPacketsForwarded increments the forwarded-packet counter.
func (c *Collector) IncPacketsForwarded() { c.PacketsForwarded.Inc() }

// IncPacketsDropped increments the dropped-packet counter.
func (c *Collector) IncPacketsDropped() { c.PacketsDropped.Inc() }

// SetPathCount sets the path gauge for a given endpoint kind.
func (c *Collector) SetPathCount(kind vl1.EndpointKind, n int) {
	c.Paths.WithLabelValues(kind.String()).Set(float64(n))
}
