// Package rootset loads a trusted RootSet from a bootstrap YAML file: the
// initial set of roots a node trusts before it has learned anything from
// the network itself (node.rs's "bootstrap" concept, carried forward here
// since Node.InitDefaultRoots needs a RootSet to install).
package rootset

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// File is the on-disk shape of a root-set bootstrap file.
type File struct {
	Name    string       `yaml:"name"`
	Version uint64       `yaml:"version"`
	Members []MemberFile `yaml:"members"`
}

// MemberFile is one root member's on-disk representation: a hex-encoded
// public key plus a list of endpoint strings, each in the form produced by
// vl1.Endpoint.String (e.g. "ip:203.0.113.1:9993", "vxlan:host:port/vni=N").
type MemberFile struct {
	PublicKey string   `yaml:"public_key"`
	Endpoints []string `yaml:"endpoints"`
}

// Load reads and parses a root-set bootstrap file at path, returning the
// vl1.RootSet it describes.
func Load(path string) (vl1.RootSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vl1.RootSet{}, fmt.Errorf("rootset: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return vl1.RootSet{}, fmt.Errorf("rootset: parse %s: %w", path, err)
	}

	return f.toRootSet()
}

func (f File) toRootSet() (vl1.RootSet, error) {
	if f.Name == "" {
		return vl1.RootSet{}, fmt.Errorf("rootset: missing name")
	}
	if len(f.Members) == 0 {
		return vl1.RootSet{}, fmt.Errorf("rootset: %s has no members", f.Name)
	}

	members := make([]vl1.RootMember, 0, len(f.Members))
	for i, mf := range f.Members {
		m, err := mf.toRootMember()
		if err != nil {
			return vl1.RootSet{}, fmt.Errorf("rootset: %s member %d: %w", f.Name, i, err)
		}
		members = append(members, m)
	}

	return vl1.RootSet{
		Name:    f.Name,
		Version: f.Version,
		Members: members,
	}, nil
}

func (mf MemberFile) toRootMember() (vl1.RootMember, error) {
	pub, err := parsePublicKey(mf.PublicKey)
	if err != nil {
		return vl1.RootMember{}, err
	}
	if len(mf.Endpoints) == 0 {
		return vl1.RootMember{}, fmt.Errorf("no endpoints")
	}

	endpoints := make([]vl1.Endpoint, 0, len(mf.Endpoints))
	for _, raw := range mf.Endpoints {
		ep, err := parseEndpoint(raw)
		if err != nil {
			return vl1.RootMember{}, fmt.Errorf("endpoint %q: %w", raw, err)
		}
		endpoints = append(endpoints, ep)
	}

	return vl1.RootMember{
		Identity:  vl1.IdentityFromPublicKey(pub),
		Endpoints: endpoints,
	}, nil
}

func parsePublicKey(s string) ([32]byte, error) {
	var pub [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return pub, fmt.Errorf("invalid public_key hex: %w", err)
	}
	if len(b) != len(pub) {
		return pub, fmt.Errorf("public_key must be %d bytes, got %d", len(pub), len(b))
	}
	copy(pub[:], b)
	return pub, nil
}

// parseEndpoint parses the "kind:rest" strings produced by
// vl1.Endpoint.String. Symbolic endpoints are the only kind not round-
// tripped from wire VNI-bearing forms, since "sym:" names can contain
// colons themselves; everything after the first colon is taken verbatim.
func parseEndpoint(s string) (vl1.Endpoint, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return vl1.Endpoint{}, fmt.Errorf("missing kind prefix")
	}

	switch kind {
	case "ip":
		addr, err := netip.ParseAddrPort(rest)
		if err != nil {
			return vl1.Endpoint{}, err
		}
		return vl1.NewIPEndpoint(addr), nil

	case "vxlan", "geneve":
		addr, vni, err := parseAddrVNI(rest)
		if err != nil {
			return vl1.Endpoint{}, err
		}
		if kind == "vxlan" {
			return vl1.NewVXLANEndpoint(addr, vni), nil
		}
		return vl1.NewGeneveEndpoint(addr, vni), nil

	case "sym":
		return vl1.NewSymbolicEndpoint(rest), nil

	default:
		return vl1.Endpoint{}, fmt.Errorf("unknown endpoint kind %q", kind)
	}
}

// parseAddrVNI splits "host:port/vni=N" as produced by Endpoint.String for
// VXLAN/Geneve endpoints.
func parseAddrVNI(s string) (netip.AddrPort, uint32, error) {
	addrPart, vniPart, ok := strings.Cut(s, "/vni=")
	if !ok {
		return netip.AddrPort{}, 0, fmt.Errorf("missing /vni= suffix")
	}
	addr, err := netip.ParseAddrPort(addrPart)
	if err != nil {
		return netip.AddrPort{}, 0, err
	}
	vni, err := strconv.ParseUint(vniPart, 10, 32)
	if err != nil {
		return netip.AddrPort{}, 0, fmt.Errorf("invalid vni: %w", err)
	}
	return addr, uint32(vni), nil
}
