// Package config manages vl1d daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete vl1d configuration.
type Config struct {
	Admin    AdminConfig    `koanf:"admin"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Identity IdentityConfig `koanf:"identity"`
	Node     NodeConfig     `koanf:"node"`
	Listen   []ListenConfig `koanf:"listen"`
	Overlay  OverlayConfig  `koanf:"overlay"`
}

// AdminConfig holds the admin-surface (health checks, introspection) server
// configuration.
type AdminConfig struct {
	// Addr is the HTTP/h2c listen address (e.g., ":9993").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// IdentityConfig controls where the node's long-lived identity is stored.
type IdentityConfig struct {
	// Path is the filesystem path to the identity's persisted state.
	Path string `koanf:"path"`
	// AutoGenerate allows the daemon to mint a new identity if Path does not
	// yet hold one.
	AutoGenerate bool `koanf:"auto_generate"`
}

// NodeConfig holds node-wide behavior not specific to any one subsystem.
type NodeConfig struct {
	// RootSetPath is the filesystem path to the bootstrap root-set YAML
	// document loaded at startup (see internal/rootset).
	RootSetPath string `koanf:"root_set_path"`
	// OVSDBEndpoint, when set, points at a local Open vSwitch database
	// (e.g. "unix:/var/run/openvswitch/db.sock") the daemon queries for
	// static peer path hints (see internal/netio/ovshints.go). Empty
	// disables OVSDB-backed path hints; the node falls back to
	// vl1.AllowAllPathFilter.
	OVSDBEndpoint string `koanf:"ovsdb_endpoint"`
}

// ListenConfig describes one physical socket the daemon should bind and
// service as a VL1 path.
type ListenConfig struct {
	// Addr is the local bind address (e.g., "0.0.0.0:9993").
	Addr string `koanf:"addr"`
	// Interface optionally pins this listener to a specific network
	// interface.
	Interface string `koanf:"interface"`
}

// OverlayConfig controls the optional VXLAN/Geneve tunnel transports that
// back vl1.EndpointVXLAN/EndpointGeneve destinations. A local address left
// empty disables that transport entirely.
type OverlayConfig struct {
	// VXLANAddr is the local address to bind for VXLAN-encapsulated VL1
	// traffic (port netio.VXLANPort). Empty disables VXLAN.
	VXLANAddr string `koanf:"vxlan_addr"`
	// GeneveAddr is the local address to bind for Geneve-encapsulated VL1
	// traffic (port netio.GenevePort). Empty disables Geneve.
	GeneveAddr string `koanf:"geneve_addr"`
}

// BindAddr parses Addr as a netip.AddrPort.
func (lc ListenConfig) BindAddr() (netip.AddrPort, error) {
	if lc.Addr == "" {
		return netip.AddrPort{}, fmt.Errorf("listen addr: %w", ErrEmptyListenAddr)
	}
	ap, err := netip.ParseAddrPort(lc.Addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse listen addr %q: %w", lc.Addr, err)
	}
	return ap, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":9994",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Identity: IdentityConfig{
			Path:         "/var/lib/vl1d/identity",
			AutoGenerate: true,
		},
		Node: NodeConfig{
			RootSetPath: "/etc/vl1d/rootset.yaml",
		},
		Listen: []ListenConfig{
			{Addr: "0.0.0.0:9993"},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for vl1d configuration.
// Variables are named VL1D_<section>_<key>, e.g., VL1D_ADMIN_ADDR.
const envPrefix = "VL1D_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (VL1D_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	VL1D_ADMIN_ADDR      -> admin.addr
//	VL1D_METRICS_ADDR    -> metrics.addr
//	VL1D_METRICS_PATH    -> metrics.path
//	VL1D_LOG_LEVEL       -> log.level
//	VL1D_LOG_FORMAT      -> log.format
//	VL1D_IDENTITY_PATH   -> identity.path
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms VL1D_ADMIN_ADDR -> admin.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":             defaults.Admin.Addr,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"identity.path":          defaults.Identity.Path,
		"identity.auto_generate": defaults.Identity.AutoGenerate,
		"node.root_set_path":     defaults.Node.RootSetPath,
		"node.ovsdb_endpoint":    defaults.Node.OVSDBEndpoint,
		"overlay.vxlan_addr":     defaults.Overlay.VXLANAddr,
		"overlay.geneve_addr":    defaults.Overlay.GeneveAddr,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	for i, l := range defaults.Listen {
		if err := k.Set(fmt.Sprintf("listen.%d.addr", i), l.Addr); err != nil {
			return fmt.Errorf("set default listen[%d].addr: %w", i, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin-surface listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyIdentityPath indicates no identity storage path was configured.
	ErrEmptyIdentityPath = errors.New("identity.path must not be empty")

	// ErrEmptyListenAddr indicates a listen entry has no bind address.
	ErrEmptyListenAddr = errors.New("listen addr must not be empty")

	// ErrNoListeners indicates the daemon was configured with no physical
	// sockets to bind.
	ErrNoListeners = errors.New("at least one listen entry is required")

	// ErrDuplicateListenAddr indicates two listen entries share a bind
	// address.
	ErrDuplicateListenAddr = errors.New("duplicate listen addr")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Identity.Path == "" {
		return ErrEmptyIdentityPath
	}

	if err := validateListeners(cfg.Listen); err != nil {
		return err
	}

	return nil
}

// validateListeners checks each configured physical socket for correctness.
func validateListeners(listeners []ListenConfig) error {
	if len(listeners) == 0 {
		return ErrNoListeners
	}

	seen := make(map[string]struct{}, len(listeners))
	for i, lc := range listeners {
		if _, err := lc.BindAddr(); err != nil {
			return fmt.Errorf("listen[%d]: %w", i, err)
		}
		if _, dup := seen[lc.Addr]; dup {
			return fmt.Errorf("listen[%d] addr %q: %w", i, lc.Addr, ErrDuplicateListenAddr)
		}
		seen[lc.Addr] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
