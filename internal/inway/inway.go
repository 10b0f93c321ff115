package inway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/config"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
	"github.com/nlx-io/nlx-gateway/internal/poller"
	"github.com/nlx-io/nlx-gateway/internal/proxy"
	"github.com/nlx-io/nlx-gateway/internal/rpc"
	"github.com/nlx-io/nlx-gateway/internal/rpc/directory"
	"github.com/nlx-io/nlx-gateway/internal/rpc/management"
	"github.com/nlx-io/nlx-gateway/internal/routing"
	"github.com/nlx-io/nlx-gateway/internal/tlsconfig"
)

// PollInterval is the fixed 10-second configuration poll tick, per spec.md
// §5 Timeouts.
const PollInterval = 10 * time.Second

// Version is surfaced in RegisterInway calls and the health endpoint. It is
// a build-time constant in the absence of a version-injection mechanism in
// spec.md's out-of-scope CLI layer.
var Version = "dev"

// Gateway is the inway role's orchestrator: it owns the poller,
// broadcaster, routing table, and mesh-facing listener, and runs them
// under a shared errgroup so that any task's permanent failure cancels the
// others. Grounded on the teacher's agent.Agent lifecycle shape, adapted
// from watcher/queue/transport wiring to poller/broadcaster/routing-table
// wiring.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger
	reg    *metrics.Registry

	internalTLS *tlsconfig.Pair
	orgTLS      *tlsconfig.Pair

	managementConn *management.Client
	directoryConn  *directory.Client

	table *routing.InwayTable
}

// New loads both TLS pairs and dials the management and directory RPC
// connections. It does not start any long-running task; call Run for that.
func New(cfg *config.Config, logger *slog.Logger, reg *metrics.Registry) (*Gateway, error) {
	internalTLS, err := tlsconfig.Load(cfg.Internal.RootCert, cfg.Internal.Cert, cfg.Internal.Key)
	if err != nil {
		return nil, fmt.Errorf("inway: load internal TLS pair: %w", err)
	}
	orgTLS, err := tlsconfig.Load(cfg.Organization.RootCert, cfg.Organization.Cert, cfg.Organization.Key)
	if err != nil {
		return nil, fmt.Errorf("inway: load organization TLS pair: %w", err)
	}

	managementConn, err := rpc.Dial(cfg.ManagementAPIAddress, internalTLS.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("inway: dial management API: %w", err)
	}
	directoryConn, err := rpc.Dial(cfg.DirectoryAddress, orgTLS.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("inway: dial directory: %w", err)
	}

	return &Gateway{
		cfg:            cfg,
		logger:         logger,
		reg:            reg,
		internalTLS:    internalTLS,
		orgTLS:         orgTLS,
		managementConn: management.New(managementConn),
		directoryConn:  directory.New(directoryConn),
		table:          routing.NewInwayTable(logger),
	}, nil
}

// Run starts the poller, broadcaster, routing-table writer, and mesh
// listener, and blocks until ctx is cancelled or one of them fails
// permanently (the listener's ListenAndServeTLS returning is the only
// task that does not retry forever).
func (g *Gateway) Run(ctx context.Context) error {
	bus := broadcast.New[model.InwayConfig](10)
	defer bus.Close()

	pollSub := bus.Subscribe()
	broadcastSub := bus.Subscribe()

	cfgPoll := &ConfigPoll{
		Name:      g.cfg.Name,
		Client:    g.managementConn,
		Publisher: bus,
		Metrics:   g.reg,
	}
	p := poller.New(cfgPoll, PollInterval, g.logger)

	b := &Broadcaster{
		Name:        g.cfg.Name,
		Version:     Version,
		SelfAddress: g.cfg.SelfAddress,
		Management:  g.managementConn,
		Directory:   g.directoryConn,
		Sub:         broadcastSub,
		Metrics:     g.reg,
		Logger:      g.logger,
	}

	proxyClient := proxy.New(&http.Client{})
	proxyClient.OnRetry = func() { g.reg.ProxyRetries.WithLabelValues("inway").Inc() }

	listener := &Listener{
		Version: Version,
		Table:   g.table,
		Proxy:   proxyClient,
		Metrics: g.reg,
		Logger:  g.logger,
	}

	serverTLSConfig, err := g.orgTLS.ServerConfig()
	if err != nil {
		return fmt.Errorf("inway: build server TLS config: %w", err)
	}

	server := &http.Server{
		Addr:      g.cfg.ListenAddress,
		Handler:   listener.Router(),
		TLSConfig: serverTLSConfig,
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error { return p.Run(egCtx) })
	eg.Go(func() error { return b.Run(egCtx) })
	eg.Go(func() error { g.table.Run(egCtx, pollSub, g.reg); return nil })
	eg.Go(func() error {
		go func() {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		g.logger.Info("inway: listening", slog.String("addr", g.cfg.ListenAddress))
		if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("inway: listener: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

// RoutingTableSize reports the inway's current routing-table size, for the
// process health endpoint.
func (g *Gateway) RoutingTableSize() int { return g.table.Len() }
