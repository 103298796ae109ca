package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/vl1node/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != ":9994" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":9994")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if !cfg.Identity.AutoGenerate {
		t.Error("Identity.AutoGenerate = false, want true")
	}

	if len(cfg.Listen) != 1 {
		t.Fatalf("Listen count = %d, want 1", len(cfg.Listen))
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
identity:
  path: "/tmp/identity"
  auto_generate: false
listen:
  - addr: "0.0.0.0:9994"
  - addr: "[::]:9994"
    interface: "eth0"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Identity.Path != "/tmp/identity" {
		t.Errorf("Identity.Path = %q, want %q", cfg.Identity.Path, "/tmp/identity")
	}

	if cfg.Identity.AutoGenerate {
		t.Error("Identity.AutoGenerate = true, want false (overridden)")
	}

	if len(cfg.Listen) != 2 {
		t.Fatalf("Listen count = %d, want 2", len(cfg.Listen))
	}
	if cfg.Listen[1].Interface != "eth0" {
		t.Errorf("Listen[1].Interface = %q, want %q", cfg.Listen[1].Interface, "eth0")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override admin.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
admin:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Admin.Addr != ":55555" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Identity.Path != "/var/lib/vl1d/identity" {
		t.Errorf("Identity.Path = %q, want default", cfg.Identity.Path)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin addr",
			modify: func(cfg *config.Config) {
				cfg.Admin.Addr = ""
			},
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name: "empty identity path",
			modify: func(cfg *config.Config) {
				cfg.Identity.Path = ""
			},
			wantErr: config.ErrEmptyIdentityPath,
		},
		{
			name: "no listeners",
			modify: func(cfg *config.Config) {
				cfg.Listen = nil
			},
			wantErr: config.ErrNoListeners,
		},
		{
			name: "empty listen addr",
			modify: func(cfg *config.Config) {
				cfg.Listen = []config.ListenConfig{{Addr: ""}}
			},
			wantErr: config.ErrEmptyListenAddr,
		},
		{
			name: "invalid listen addr",
			modify: func(cfg *config.Config) {
				cfg.Listen = []config.ListenConfig{{Addr: "not-an-addr"}}
			},
			wantErr: nil, // wrapped parse error, checked separately below
		},
		{
			name: "duplicate listen addr",
			modify: func(cfg *config.Config) {
				cfg.Listen = []config.ListenConfig{
					{Addr: "0.0.0.0:9993"},
					{Addr: "0.0.0.0:9993"},
				}
			},
			wantErr: config.ErrDuplicateListenAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadOverlayConfig(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":9994"
overlay:
  vxlan_addr: "0.0.0.0"
  geneve_addr: "0.0.0.0"
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Overlay.VXLANAddr != "0.0.0.0" {
		t.Errorf("Overlay.VXLANAddr = %q, want %q", cfg.Overlay.VXLANAddr, "0.0.0.0")
	}
	if cfg.Overlay.GeneveAddr != "0.0.0.0" {
		t.Errorf("Overlay.GeneveAddr = %q, want %q", cfg.Overlay.GeneveAddr, "0.0.0.0")
	}
}

func TestDefaultConfigOverlayDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	if cfg.Overlay.VXLANAddr != "" {
		t.Errorf("Overlay.VXLANAddr default = %q, want empty (disabled)", cfg.Overlay.VXLANAddr)
	}
	if cfg.Overlay.GeneveAddr != "" {
		t.Errorf("Overlay.GeneveAddr default = %q, want empty (disabled)", cfg.Overlay.GeneveAddr)
	}
}

func TestDefaultConfigOVSDBDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	if cfg.Node.OVSDBEndpoint != "" {
		t.Errorf("Node.OVSDBEndpoint default = %q, want empty (disabled)", cfg.Node.OVSDBEndpoint)
	}
}

func TestLoadOVSDBEndpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vl1d.yaml")
	yaml := "node:\n  ovsdb_endpoint: \"unix:/var/run/openvswitch/db.sock\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.OVSDBEndpoint != "unix:/var/run/openvswitch/db.sock" {
		t.Errorf("Node.OVSDBEndpoint = %q, want %q", cfg.Node.OVSDBEndpoint, "unix:/var/run/openvswitch/db.sock")
	}
}

func TestListenConfigBindAddr(t *testing.T) {
	t.Parallel()

	lc := config.ListenConfig{Addr: "10.0.0.1:9993"}
	ap, err := lc.BindAddr()
	if err != nil {
		t.Fatalf("BindAddr() error: %v", err)
	}
	if ap.String() != "10.0.0.1:9993" {
		t.Errorf("BindAddr() = %s, want 10.0.0.1:9993", ap)
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
admin:
  addr: ":9994"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("VL1D_ADMIN_ADDR", ":60000")
	t.Setenv("VL1D_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q (from env)", cfg.Admin.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
admin:
  addr: ":9994"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("VL1D_METRICS_ADDR", ":9200")
	t.Setenv("VL1D_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "vl1d.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
