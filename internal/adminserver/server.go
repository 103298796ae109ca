// Package adminserver exposes a node's live state over plain HTTP/h2c: gRPC
// health checking (for orchestrators that poll it) and a small JSON
// introspection surface (for operators and vl1ctl) sitting side by side on
// one listener, the way the teacher's gRPC server sits behind one listener
// alongside its own health and reflection services.
package adminserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"connectrpc.com/grpchealth"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// serviceName is the health-checked service identifier reported to
// orchestrators that speak the gRPC health protocol.
const serviceName = "vl1.Node"

// Server serves the admin HTTP surface for one VL1 node.
type Server struct {
	node   *vl1.Node
	logger *slog.Logger
	mux    *http.ServeMux
}

// New constructs a Server wrapping node. The returned *http.Server is ready
// to ListenAndServe once its Addr is set; it already speaks h2c so a single
// plaintext listener serves both HTTP/1.1 JSON requests and gRPC health
// checks.
func New(node *vl1.Node, logger *slog.Logger) *http.Server {
	s := &Server{
		node:   node,
		logger: logger.With(slog.String("component", "adminserver")),
		mux:    http.NewServeMux(),
	}
	s.routes()

	return &http.Server{
		Handler: h2c.NewHandler(s.mux, &http2.Server{}),
	}
}

func (s *Server) routes() {
	checker := grpchealth.NewStaticChecker(serviceName)
	healthPath, healthHandler := grpchealth.NewHandler(checker)
	s.mux.Handle(healthPath, healthHandler)

	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/peers", s.handlePeers)
	s.mux.HandleFunc("/v1/roots", s.handleRoots)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
}

// statusResponse mirrors the node's headline state: identity, online state,
// and table sizes (C1-C6 at a glance).
type statusResponse struct {
	Address     string `json:"address"`
	InstanceID  string `json:"instance_id"`
	Online      bool   `json:"online"`
	Peers       int    `json:"peers"`
	Roots       int    `json:"roots"`
	WhoisQueued int    `json:"whois_queued"`
	IsRoot      bool   `json:"is_root"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Address:     s.node.Identity.Address().String(),
		InstanceID:  hexInstanceID(s.node.InstanceID),
		Online:      s.node.IsOnline(),
		Peers:       s.node.Peers.Len(),
		Roots:       len(s.node.RootSets()),
		WhoisQueued: s.node.Whois.Len(),
		IsRoot:      s.node.ThisNodeIsRoot(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// peerResponse is one entry in the /v1/peers listing.
type peerResponse struct {
	Address          string `json:"address"`
	IsRoot           bool   `json:"is_root"`
	PacketsSent      uint64 `json:"packets_sent"`
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsForwarded uint64 `json:"packets_forwarded"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if addr != "" {
		a, ok := parseAddress(addr)
		if !ok {
			http.Error(w, "invalid address", http.StatusBadRequest)
			return
		}
		peer, ok := s.node.Peer(a)
		if !ok {
			http.Error(w, "peer not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, peerView(s.node, peer))
		return
	}

	// No address filter: no full table dump is served, since this core
	// type has no enumerate-all accessor (only targeted lookups, by
	// design — see PeerTable.Get/GetOrUpgradableInsert).
	http.Error(w, "address query parameter is required", http.StatusBadRequest)
}

func peerView(n *vl1.Node, p *vl1.Peer) peerResponse {
	snap := p.Snapshot()
	return peerResponse{
		Address:          p.Address.String(),
		IsRoot:           n.IsPeerRoot(p),
		PacketsSent:      snap.PacketsSent,
		PacketsReceived:  snap.PacketsReceived,
		PacketsForwarded: snap.PacketsForwarded,
	}
}

// rootSetResponse mirrors one trusted RootSet.
type rootSetResponse struct {
	Name    string   `json:"name"`
	Version uint64   `json:"version"`
	Members []string `json:"members"`
}

func (s *Server) handleRoots(w http.ResponseWriter, r *http.Request) {
	sets := s.node.RootSets()
	out := make([]rootSetResponse, 0, len(sets))
	for _, rs := range sets {
		members := make([]string, 0, len(rs.Members))
		for _, m := range rs.Members {
			members = append(members, m.Identity.Address().String())
		}
		out = append(out, rootSetResponse{Name: rs.Name, Version: rs.Version, Members: members})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseAddress(s string) (vl1.Address, bool) {
	if len(s) != vl1.AddressSize*2 {
		return vl1.Address{}, false
	}
	var b [vl1.AddressSize]byte
	for i := 0; i < vl1.AddressSize; i++ {
		hi, ok1 := hexDigit(s[i*2])
		lo, ok2 := hexDigit(s[i*2+1])
		if !ok1 || !ok2 {
			return vl1.Address{}, false
		}
		b[i] = hi<<4 | lo
	}
	return vl1.AddressFromBytes(b)
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

func hexInstanceID(id [16]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 32)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
