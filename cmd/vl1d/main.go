// vl1d -- VL1 layer-1 peer-to-peer overlay node daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/vl1node/internal/adminserver"
	"github.com/dantte-lp/vl1node/internal/config"
	vl1metrics "github.com/dantte-lp/vl1node/internal/metrics"
	"github.com/dantte-lp/vl1node/internal/netio"
	"github.com/dantte-lp/vl1node/internal/rootset"
	appversion "github.com/dantte-lp/vl1node/internal/version"
	"github.com/dantte-lp/vl1node/internal/vl1"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// GitCommit is the git commit hash, set at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is the build timestamp, set at build time via ldflags.
var BuildDate = "unknown"

func main() {
	os.Exit(runCLI())
}

func runCLI() int {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "vl1d",
		Short:         "VL1 layer-1 peer-to-peer overlay node daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configValidateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the vl1d daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemonFromConfig(*configPath)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print vl1d build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("vl1d %s\n", appversion.Version)
			fmt.Printf("  commit:  %s\n", GitCommit)
			fmt.Printf("  built:   %s\n", BuildDate)
		},
	}
}

func configValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config-validate",
		Short: "Load and validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Println("configuration OK")
			return nil
		},
	}
}

func runDaemonFromConfig(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return err
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("vl1d starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := vl1metrics.NewCollector(reg)

	if err := runDaemon(cfg, collector, reg, logger, configPath, logLevel); err != nil {
		logger.Error("vl1d exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("vl1d stopped")
	return nil
}

// eventHost wraps *netio.Host so node events also update the metrics
// collector, without Host itself needing to know metrics exist.
type eventHost struct {
	*netio.Host
	collector *vl1metrics.Collector
}

func (h eventHost) Event(e vl1.Event) {
	h.Host.Event(e)
	h.collector.RecordEvent(e)
}

func runDaemon(
	cfg *config.Config,
	collector *vl1metrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	ifmon, err := newInterfaceMonitor(logger)
	if err != nil {
		return fmt.Errorf("create interface monitor: %w", err)
	}
	g.Go(func() error { return ifmon.Run(gCtx) })
	defer func() {
		if err := ifmon.Close(); err != nil {
			logger.Warn("failed to close interface monitor", slog.String("error", err.Error()))
		}
	}()

	host := eventHost{Host: netio.NewHost(ifmon, logger), collector: collector}

	listeners, senders, err := createListenersAndSenders(cfg, host.Host, logger)
	if err != nil {
		return fmt.Errorf("create vl1 listeners: %w", err)
	}
	defer closeListeners(listeners, logger)
	defer closeSenders(senders, logger)

	store := newFileIdentityStore(cfg.Identity.Path)
	nodeOpts := []vl1.NodeOption{vl1.WithLogger(logger)}

	var hints *netio.OVSPathHintProvider
	if cfg.Node.OVSDBEndpoint != "" {
		hints, err = netio.NewOVSPathHintProvider(gCtx, cfg.Node.OVSDBEndpoint, logger)
		if err != nil {
			logger.Warn("failed to connect to ovsdb, path hints disabled",
				slog.String("endpoint", cfg.Node.OVSDBEndpoint), slog.String("error", err.Error()))
		} else {
			defer hints.Close()
			nodeOpts = append(nodeOpts, vl1.WithPathFilter(hints))
		}
	}

	node, err := vl1.NewNode(host, store, cfg.Identity.AutoGenerate, nodeOpts...)
	if err != nil {
		return fmt.Errorf("construct vl1 node: %w", err)
	}

	if cfg.Node.RootSetPath != "" {
		if rs, err := rootset.Load(cfg.Node.RootSetPath); err != nil {
			logger.Warn("failed to load bootstrap root set, starting with no roots",
				slog.String("path", cfg.Node.RootSetPath), slog.String("error", err.Error()))
		} else if node.InitDefaultRoots(rs) {
			logger.Info("bootstrap root set installed",
				slog.String("name", rs.Name), slog.Int("members", len(rs.Members)))
		}
	}

	if len(listeners) > 0 {
		recv := netio.NewReceiver(node, host, logger)
		g.Go(func() error { return recv.Run(gCtx, listeners...) })
	}

	overlayConns, err := startOverlayTransports(gCtx, g, cfg.Overlay, node, host, logger)
	if err != nil {
		return fmt.Errorf("start overlay transports: %w", err)
	}
	defer closeOverlayConns(overlayConns, logger)

	g.Go(func() error { return runScheduler(gCtx, node, host, collector) })

	adminSrv := adminserver.New(node, logger)
	adminSrv.Addr = cfg.Admin.Addr
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	startHTTPServers(gCtx, g, adminSrv, metricsSrv, cfg, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run vl1d: %w", err)
	}
	return nil
}

// runScheduler drives vl1.Node's C7 background servicing loop at the
// cadence DoBackgroundTasks itself reports, and samples table-size metrics
// on the same cadence.
func runScheduler(ctx context.Context, node *vl1.Node, host vl1.HostSystem, collector *vl1metrics.Collector) error {
	interval := time.Duration(node.DoBackgroundTasks(host)) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			node.DoBackgroundTasks(host)
			collector.Observe(node)
		}
	}
}

func newInterfaceMonitor(logger *slog.Logger) (netio.InterfaceMonitor, error) {
	mon, err := netio.NewDBusInterfaceMonitor(logger)
	if err != nil {
		logger.Warn("D-Bus interface monitor unavailable, interface liveness checks disabled",
			slog.String("error", err.Error()))
		return netio.NewStubInterfaceMonitor(logger), nil
	}
	return mon, nil
}

// createListenersAndSenders binds one physical socket per cfg.Listen
// entry, wiring a receiver-side Listener and a transmit-side UDPSender
// into host for each.
func createListenersAndSenders(
	cfg *config.Config,
	host *netio.Host,
	logger *slog.Logger,
) ([]*netio.Listener, []*netio.UDPSender, error) {
	var listeners []*netio.Listener
	var senders []*netio.UDPSender

	for _, lc := range cfg.Listen {
		addrPort, err := lc.BindAddr()
		if err != nil {
			return listeners, senders, fmt.Errorf("listen config: %w", err)
		}

		ln, err := netio.NewListener(netio.ListenerConfig{
			Addr:   addrPort.Addr(),
			Port:   addrPort.Port(),
			IfName: lc.Interface,
		})
		if err != nil {
			return listeners, senders, fmt.Errorf("create listener on %s: %w", addrPort, err)
		}
		listeners = append(listeners, ln)

		var senderOpts []netio.SenderOption
		if lc.Interface != "" {
			senderOpts = append(senderOpts, netio.WithBindDevice(lc.Interface))
		}
		sender, err := netio.NewUDPSender(addrPort.Addr(), addrPort.Port(), logger, senderOpts...)
		if err != nil {
			return listeners, senders, fmt.Errorf("create sender on %s: %w", addrPort, err)
		}
		senders = append(senders, sender)
		host.AddSender(sender, addrPort.Addr())

		logger.Info("vl1 listener started",
			slog.String("addr", addrPort.String()), slog.String("interface", lc.Interface))
	}

	return listeners, senders, nil
}

// startOverlayTransports binds the VXLAN/Geneve tunnel connections named in
// cfg, attaches them to host for outbound traffic, and launches an
// OverlayReceiver goroutine for each to deliver decapsulated packets into
// node. A transport with an empty bind address is left disabled.
func startOverlayTransports(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.OverlayConfig,
	node *vl1.Node,
	host eventHost,
	logger *slog.Logger,
) ([]io.Closer, error) {
	var closers []io.Closer

	if cfg.VXLANAddr != "" {
		addr, err := netip.ParseAddr(cfg.VXLANAddr)
		if err != nil {
			return closers, fmt.Errorf("parse overlay.vxlan_addr %q: %w", cfg.VXLANAddr, err)
		}
		conn, err := netio.NewVXLANConn(addr, logger)
		if err != nil {
			return closers, fmt.Errorf("bind vxlan overlay: %w", err)
		}
		closers = append(closers, conn)
		host.SetVXLANConn(conn)

		recv := netio.NewOverlayReceiver(conn, node, host, "vxlan0", vxlanEndpoint, logger)
		g.Go(func() error { return recv.Run(ctx) })
		logger.Info("vxlan overlay transport started", slog.String("addr", cfg.VXLANAddr))
	}

	if cfg.GeneveAddr != "" {
		addr, err := netip.ParseAddr(cfg.GeneveAddr)
		if err != nil {
			return closers, fmt.Errorf("parse overlay.geneve_addr %q: %w", cfg.GeneveAddr, err)
		}
		conn, err := netio.NewGeneveConn(addr, logger)
		if err != nil {
			return closers, fmt.Errorf("bind geneve overlay: %w", err)
		}
		closers = append(closers, conn)
		host.SetGeneveConn(conn)

		recv := netio.NewOverlayReceiver(conn, node, host, "geneve0", geneveEndpoint, logger)
		g.Go(func() error { return recv.Run(ctx) })
		logger.Info("geneve overlay transport started", slog.String("addr", cfg.GeneveAddr))
	}

	return closers, nil
}

func vxlanEndpoint(addr netip.Addr, vni uint32) vl1.Endpoint {
	return vl1.NewVXLANEndpoint(netip.AddrPortFrom(addr, netio.VXLANPort), vni)
}

func geneveEndpoint(addr netip.Addr, vni uint32) vl1.Endpoint {
	return vl1.NewGeneveEndpoint(netip.AddrPortFrom(addr, netio.GenevePort), vni)
}

func closeOverlayConns(conns []io.Closer, logger *slog.Logger) {
	for _, c := range conns {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close overlay transport", slog.String("error", err.Error()))
		}
	}
}

func closeListeners(listeners []*netio.Listener, logger *slog.Logger) {
	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			logger.Warn("failed to close vl1 listener", slog.String("error", err.Error()))
		}
	}
}

func closeSenders(senders []*netio.UDPSender, logger *slog.Logger) {
	for _, s := range senders {
		if err := s.Close(); err != nil {
			logger.Warn("failed to close vl1 sender", slog.String("error", err.Error()))
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error { return runWatchdog(ctx, logger) })

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

// reloadConfig reloads the log level from a fresh read of configPath.
// Listener/sender topology is fixed for the process lifetime; changing it
// requires a restart.
func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()), slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// HTTP servers
// -------------------------------------------------------------------------

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	cfg *config.Config,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
