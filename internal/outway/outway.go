package outway

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

// Version is surfaced in RegisterOutway calls. See inway.Version's doc
// comment for why this is a build-time constant rather than a CLI flag.
var Version = "dev"

// Gateway is the outway role's orchestrator, mirroring inway.Gateway:
// poller, broadcaster, routing table, and a plaintext local listener that
// proxies out over mesh-facing mTLS.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger
	reg    *metrics.Registry

	internalTLS *tlsconfig.Pair
	orgTLS      *tlsconfig.Pair

	managementConn *management.Client
	directoryConn  *directory.Client

	table *routing.OutwayTable
}

// New loads both TLS pairs and dials the management and directory RPC
// connections.
func New(cfg *config.Config, logger *slog.Logger, reg *metrics.Registry) (*Gateway, error) {
	internalTLS, err := tlsconfig.Load(cfg.Internal.RootCert, cfg.Internal.Cert, cfg.Internal.Key)
	if err != nil {
		return nil, fmt.Errorf("outway: load internal TLS pair: %w", err)
	}
	orgTLS, err := tlsconfig.Load(cfg.Organization.RootCert, cfg.Organization.Cert, cfg.Organization.Key)
	if err != nil {
		return nil, fmt.Errorf("outway: load organization TLS pair: %w", err)
	}

	managementConn, err := rpc.Dial(cfg.ManagementAPIAddress, internalTLS.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("outway: dial management API: %w", err)
	}
	directoryConn, err := rpc.Dial(cfg.DirectoryAddress, orgTLS.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("outway: dial directory: %w", err)
	}

	return &Gateway{
		cfg:            cfg,
		logger:         logger,
		reg:            reg,
		internalTLS:    internalTLS,
		orgTLS:         orgTLS,
		managementConn: management.New(managementConn),
		directoryConn:  directory.New(directoryConn),
		table:          routing.NewOutwayTable(logger),
	}, nil
}

// Run starts the poller, broadcaster, routing-table writer, and the
// plaintext local listener, and blocks until ctx is cancelled or one of
// them fails permanently.
func (g *Gateway) Run(ctx context.Context) error {
	bus := broadcast.New[model.OutwayConfig](10)
	defer bus.Close()

	pollSub := bus.Subscribe()

	cfgPoll := &ConfigPoll{
		Client:    g.directoryConn,
		Publisher: bus,
		Metrics:   g.reg,
	}
	p := poller.New(cfgPoll, PollInterval, g.logger)

	b := &Broadcaster{
		Name:           g.cfg.Name,
		Version:        Version,
		SelfAddressAPI: "",
		OrgTLS:         g.orgTLS,
		Management:     g.managementConn,
		Directory:      g.directoryConn,
		Logger:         g.logger,
		Metrics:        g.reg,
	}

	meshClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: g.orgTLS.ClientConfig(),
		},
	}
	proxyClient := proxy.New(meshClient)
	proxyClient.OnRetry = func() { g.reg.ProxyRetries.WithLabelValues("outway").Inc() }

	listener := &Listener{
		Table:   g.table,
		Proxy:   proxyClient,
		Metrics: g.reg,
		Logger:  g.logger,
	}

	server := &http.Server{
		Addr:    g.cfg.ListenAddress,
		Handler: listener.Router(),
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
		g.logger.Info("outway: listening", slog.String("addr", g.cfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("outway: listener: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

// OrganizationCount reports the outway's current routing-table organization
// count, for the process health endpoint.
func (g *Gateway) OrganizationCount() int { return g.table.OrganizationCount() }
