package netio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// -------------------------------------------------------------------------
// Interface Monitor — network interface state change detection
// -------------------------------------------------------------------------

// InterfaceEvent represents a network interface state change. These
// events back HostSystem.LocalSocketIsValid and drive path invalidation:
// a path bound to an interface that has gone down is no longer a
// candidate for the best-path selection in C3 until it reports Up again.
type InterfaceEvent struct {
	// IfName is the network interface name (e.g., "eth0", "bond0").
	IfName string

	// IfIndex is the kernel interface index.
	IfIndex int

	// Up indicates whether the interface transitioned to Up (true) or
	// Down (false).
	Up bool
}

// InterfaceMonitor watches for network interface state changes and emits
// events when interfaces go up or down.
type InterfaceMonitor interface {
	// Run starts monitoring interface state changes. It blocks until ctx
	// is cancelled. Detected events are sent to the channel returned by
	// Events(). Run must be called at most once.
	Run(ctx context.Context) error

	// Events returns a read-only channel that receives interface state
	// change events. The channel is closed when Run returns.
	Events() <-chan InterfaceEvent

	// IsUp reports the last known state of ifName, or false if the
	// monitor has never observed it.
	IsUp(ifName string) bool

	// Close releases any resources held by the monitor.
	Close() error
}

// -------------------------------------------------------------------------
// DBusInterfaceMonitor — NetworkManager-backed implementation
// -------------------------------------------------------------------------

// nmDeviceStateActivated is NM_DEVICE_STATE_ACTIVATED from NetworkManager's
// D-Bus API (org.freedesktop.NetworkManager.Device "State" property).
const nmDeviceStateActivated = 100

// DBusInterfaceMonitor tracks interface liveness via NetworkManager's
// system D-Bus API (org.freedesktop.NetworkManager), subscribing to each
// device's StateChanged signal rather than polling. systemd-networkd
// exposes an equivalent org.freedesktop.network1 API; NetworkManager is
// used here since it is the more commonly available of the two.
type DBusInterfaceMonitor struct {
	conn   *dbus.Conn
	logger *slog.Logger
	events chan InterfaceEvent

	mu    sync.RWMutex
	state map[string]bool // interface name -> up
}

// NewDBusInterfaceMonitor connects to the system bus and prepares to watch
// NetworkManager device state. The connection is established eagerly so
// configuration errors surface at startup rather than on first Run.
func NewDBusInterfaceMonitor(logger *slog.Logger) (*DBusInterfaceMonitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("ifmon: connect system bus: %w", err)
	}

	return &DBusInterfaceMonitor{
		conn:   conn,
		logger: logger.With(slog.String("component", "ifmon.dbus")),
		events: make(chan InterfaceEvent, 16),
		state:  make(map[string]bool),
	}, nil
}

// Run subscribes to NetworkManager's Device.StateChanged signal and
// translates it into InterfaceEvents until ctx is cancelled.
func (m *DBusInterfaceMonitor) Run(ctx context.Context) error {
	defer close(m.events)

	matchRule := "type='signal',interface='org.freedesktop.NetworkManager.Device',member='StateChanged'"
	if err := m.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		return fmt.Errorf("ifmon: add match: %w", err)
	}
	defer func() {
		_ = m.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, matchRule).Err
	}()

	if err := m.seedInitialState(); err != nil {
		m.logger.Warn("initial device enumeration failed", slog.String("error", err.Error()))
	}

	signals := make(chan *dbus.Signal, 16)
	m.conn.Signal(signals)
	defer m.conn.RemoveSignal(signals)

	m.logger.Info("dbus interface monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("dbus interface monitor stopped")
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			m.handleSignal(sig)
		}
	}
}

// seedInitialState enumerates existing devices so IsUp reflects reality
// immediately, rather than only after the first state transition.
func (m *DBusInterfaceMonitor) seedInitialState() error {
	nm := m.conn.Object("org.freedesktop.NetworkManager", dbus.ObjectPath("/org/freedesktop/NetworkManager"))

	var devicePaths []dbus.ObjectPath
	if err := nm.Call("org.freedesktop.NetworkManager.GetDevices", 0).Store(&devicePaths); err != nil {
		return fmt.Errorf("get devices: %w", err)
	}

	for _, path := range devicePaths {
		ifName, up, ok := m.deviceState(path)
		if !ok {
			continue
		}
		m.mu.Lock()
		m.state[ifName] = up
		m.mu.Unlock()
	}
	return nil
}

func (m *DBusInterfaceMonitor) deviceState(path dbus.ObjectPath) (ifName string, up bool, ok bool) {
	dev := m.conn.Object("org.freedesktop.NetworkManager", path)

	ifaceVariant, err := dev.GetProperty("org.freedesktop.NetworkManager.Device.Interface")
	if err != nil {
		return "", false, false
	}
	name, ok := ifaceVariant.Value().(string)
	if !ok || name == "" {
		return "", false, false
	}

	stateVariant, err := dev.GetProperty("org.freedesktop.NetworkManager.Device.State")
	if err != nil {
		return name, false, true
	}
	state, ok := stateVariant.Value().(uint32)
	if !ok {
		return name, false, true
	}

	return name, state == nmDeviceStateActivated, true
}

func (m *DBusInterfaceMonitor) handleSignal(sig *dbus.Signal) {
	if sig.Name != "org.freedesktop.NetworkManager.Device.StateChanged" {
		return
	}
	if len(sig.Body) < 1 {
		return
	}
	newState, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	ifName, _, ok := m.deviceState(sig.Path)
	if !ok {
		return
	}

	up := newState == nmDeviceStateActivated

	m.mu.Lock()
	prev, known := m.state[ifName]
	m.state[ifName] = up
	m.mu.Unlock()

	if known && prev == up {
		return
	}

	select {
	case m.events <- InterfaceEvent{IfName: ifName, Up: up}:
	default:
		m.logger.Warn("interface event dropped, channel full", slog.String("interface", ifName))
	}
}

// Events returns the interface state change event channel.
func (m *DBusInterfaceMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// IsUp reports the last known state of ifName.
func (m *DBusInterfaceMonitor) IsUp(ifName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state[ifName]
}

// Close closes the underlying D-Bus connection.
func (m *DBusInterfaceMonitor) Close() error {
	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("ifmon: close dbus conn: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// StubInterfaceMonitor — no-op implementation
// -------------------------------------------------------------------------

// StubInterfaceMonitor is a no-op InterfaceMonitor that always reports
// every interface up. It backs HostSystem implementations running outside
// a NetworkManager-managed environment (containers, tests).
type StubInterfaceMonitor struct {
	events chan InterfaceEvent
	logger *slog.Logger
}

// NewStubInterfaceMonitor creates a no-op interface monitor.
func NewStubInterfaceMonitor(logger *slog.Logger) *StubInterfaceMonitor {
	return &StubInterfaceMonitor{
		events: make(chan InterfaceEvent, 16),
		logger: logger.With(slog.String("component", "ifmon.stub")),
	}
}

// Run blocks until ctx is cancelled, emitting no events.
func (m *StubInterfaceMonitor) Run(ctx context.Context) error {
	m.logger.Info("stub interface monitor started (no-op)")
	<-ctx.Done()
	close(m.events)
	m.logger.Info("stub interface monitor stopped")
	return nil
}

// Events returns the (always empty) event channel.
func (m *StubInterfaceMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// IsUp always reports true for the stub monitor.
func (m *StubInterfaceMonitor) IsUp(string) bool { return true }

// Close is a no-op for the stub monitor.
func (m *StubInterfaceMonitor) Close() error {
	return nil
}
