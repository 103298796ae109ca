package vl1

import (
	"fmt"
	"net/netip"
)

// EndpointKind discriminates the physical destination forms an Endpoint can
// take.
type EndpointKind uint8

const (
	// EndpointIP is a plain IP/UDP destination.
	EndpointIP EndpointKind = iota
	// EndpointVXLAN is a VXLAN-encapsulated destination (RFC 7348 framing,
	// see internal/netio).
	EndpointVXLAN
	// EndpointGeneve is a Geneve-encapsulated destination (RFC 8926 framing,
	// see internal/netio).
	EndpointGeneve
	// EndpointSymbolic is a non-IP, human-assigned symbolic destination
	// (e.g. a relay name resolved by the embedding runtime).
	EndpointSymbolic
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointIP:
		return "ip"
	case EndpointVXLAN:
		return "vxlan"
	case EndpointGeneve:
		return "geneve"
	case EndpointSymbolic:
		return "symbolic"
	default:
		return "unknown"
	}
}

// symbolicSize bounds the symbolic-name payload so Endpoint stays a
// comparable, fixed-size value usable directly as a map key component.
const symbolicSize = 64

// Endpoint is a tagged union over physical destination forms. It is
// hashable and equality-comparable by construction (a plain struct of
// comparable fields), so it can be used directly as part of a map key.
type Endpoint struct {
	kind     EndpointKind
	addr     netip.AddrPort
	vni      uint32       // VXLAN VNI / Geneve VNI, when kind is VXLAN or Geneve
	symbolic [symbolicSize]byte
	symLen   uint8
}

// NewIPEndpoint constructs an Endpoint for a plain IP/UDP destination.
func NewIPEndpoint(addr netip.AddrPort) Endpoint {
	return Endpoint{kind: EndpointIP, addr: addr}
}

// NewVXLANEndpoint constructs an Endpoint for a VXLAN-encapsulated
// destination identified by its outer UDP address and VNI.
func NewVXLANEndpoint(outer netip.AddrPort, vni uint32) Endpoint {
	return Endpoint{kind: EndpointVXLAN, addr: outer, vni: vni}
}

// NewGeneveEndpoint constructs an Endpoint for a Geneve-encapsulated
// destination identified by its outer UDP address and VNI.
func NewGeneveEndpoint(outer netip.AddrPort, vni uint32) Endpoint {
	return Endpoint{kind: EndpointGeneve, addr: outer, vni: vni}
}

// NewSymbolicEndpoint constructs an Endpoint for a symbolic, non-IP
// destination name resolved by the embedding runtime. Names longer than
// symbolicSize are truncated.
func NewSymbolicEndpoint(name string) Endpoint {
	var e Endpoint
	e.kind = EndpointSymbolic
	n := copy(e.symbolic[:], name)
	e.symLen = uint8(n)
	return e
}

// Kind reports the endpoint's physical destination form.
func (e Endpoint) Kind() EndpointKind { return e.kind }

// AddrPort returns the outer IP/UDP address for IP, VXLAN, and Geneve
// endpoints. It is the zero value for symbolic endpoints.
func (e Endpoint) AddrPort() netip.AddrPort { return e.addr }

// VNI returns the tunnel network identifier for VXLAN/Geneve endpoints.
func (e Endpoint) VNI() uint32 { return e.vni }

// Symbolic returns the symbolic name for EndpointSymbolic endpoints.
func (e Endpoint) Symbolic() string { return string(e.symbolic[:e.symLen]) }

// String renders the endpoint for logs.
func (e Endpoint) String() string {
	switch e.kind {
	case EndpointIP:
		return fmt.Sprintf("ip:%s", e.addr)
	case EndpointVXLAN:
		return fmt.Sprintf("vxlan:%s/vni=%d", e.addr, e.vni)
	case EndpointGeneve:
		return fmt.Sprintf("geneve:%s/vni=%d", e.addr, e.vni)
	case EndpointSymbolic:
		return fmt.Sprintf("sym:%s", e.Symbolic())
	default:
		return "endpoint:invalid"
	}
}
