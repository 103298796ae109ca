package netio

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"

	"github.com/ovn-org/libovsdb/cache"
	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/model"

	"github.com/dantte-lp/vl1node/internal/vl1"
)

// ovsInterface mirrors the subset of Open vSwitch's Interface table rows
// this package reads. Port operators annotate an interface's external_ids
// with vl1-address/vl1-endpoint when they know in advance which VL1
// identity sits behind a given OVS port, letting the node skip the usual
// discovery path for that peer.
type ovsInterface struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

const (
	hintKeyAddress  = "vl1-address"
	hintKeyEndpoint = "vl1-endpoint"
)

func ovsdbModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel("Open_vSwitch", map[string]model.Model{
		"Interface": &ovsInterface{},
	})
}

// OVSPathHintProvider implements vl1.PathFilter's GetPathHints by reading
// statically configured peer-to-port bindings out of a local Open vSwitch
// instance's Interface table. CheckPath always admits; this provider only
// supplies hints, it never gates traffic.
type OVSPathHintProvider struct {
	logger *slog.Logger

	mu    sync.RWMutex
	hints map[vl1.Address][]vl1.PathHint

	conn client.Client
}

// NewOVSPathHintProvider connects to the OVSDB server at endpoint (e.g.
// "unix:/var/run/openvswitch/db.sock" or "tcp:127.0.0.1:6640") and begins
// monitoring the Interface table for vl1-address/vl1-endpoint external_ids.
func NewOVSPathHintProvider(ctx context.Context, endpoint string, logger *slog.Logger) (*OVSPathHintProvider, error) {
	dbModel, err := ovsdbModel()
	if err != nil {
		return nil, fmt.Errorf("build ovsdb model: %w", err)
	}

	conn, err := client.NewOVSDBClient(dbModel, client.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create ovsdb client: %w", err)
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to ovsdb at %s: %w", endpoint, err)
	}

	p := &OVSPathHintProvider{
		logger: logger,
		hints:  make(map[vl1.Address][]vl1.PathHint),
		conn:   conn,
	}

	if _, err := conn.MonitorAll(ctx); err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("monitor ovsdb tables: %w", err)
	}

	conn.Cache().AddEventHandler(&cache.EventHandlerFuncs{
		AddFunc:    func(table string, model model.Model) { p.refresh() },
		UpdateFunc: func(table string, old, new model.Model) { p.refresh() },
		DeleteFunc: func(table string, model model.Model) { p.refresh() },
	})

	p.refresh()

	return p, nil
}

// Close disconnects from OVSDB.
func (p *OVSPathHintProvider) Close() {
	p.conn.Disconnect()
}

func (p *OVSPathHintProvider) refresh() {
	hints := make(map[vl1.Address][]vl1.PathHint)

	for _, row := range p.conn.Cache().Table("Interface").Rows() {
		iface, ok := row.(*ovsInterface)
		if !ok {
			continue
		}

		addr, endpoint, ok := parseHintRow(iface)
		if !ok {
			continue
		}

		hints[addr] = append(hints[addr], vl1.PathHint{Endpoint: endpoint})
	}

	p.mu.Lock()
	p.hints = hints
	p.mu.Unlock()

	p.logger.Debug("ovs path hints refreshed", "peers", len(hints))
}

func parseHintRow(iface *ovsInterface) (vl1.Address, vl1.Endpoint, bool) {
	addrStr, ok := iface.ExternalIDs[hintKeyAddress]
	if !ok {
		return vl1.Address{}, vl1.Endpoint{}, false
	}
	endpointStr, ok := iface.ExternalIDs[hintKeyEndpoint]
	if !ok {
		return vl1.Address{}, vl1.Endpoint{}, false
	}

	addr, ok := parseHintAddress(addrStr)
	if !ok {
		return vl1.Address{}, vl1.Endpoint{}, false
	}

	ap, err := netip.ParseAddrPort(endpointStr)
	if err != nil {
		return vl1.Address{}, vl1.Endpoint{}, false
	}

	return addr, vl1.NewIPEndpoint(ap), true
}

func parseHintAddress(s string) (vl1.Address, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 2*vl1.AddressSize {
		return vl1.Address{}, false
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return vl1.Address{}, false
	}

	var b [vl1.AddressSize]byte
	copy(b[:], raw)
	return vl1.AddressFromBytes(b)
}

// GetPathHints implements vl1.PathFilter.
func (p *OVSPathHintProvider) GetPathHints(id vl1.Identity) []vl1.PathHint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hints := p.hints[id.Address()]
	if len(hints) == 0 {
		return nil
	}

	out := make([]vl1.PathHint, len(hints))
	copy(out, hints)
	return out
}

// CheckPath implements vl1.PathFilter. This provider never restricts
// traffic; it only surfaces hints discovered via OVSDB.
func (p *OVSPathHintProvider) CheckPath(vl1.Identity, vl1.Endpoint, vl1.LocalSocket, vl1.LocalInterface) bool {
	return true
}
