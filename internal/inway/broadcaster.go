package inway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
	"github.com/nlx-io/nlx-gateway/internal/poller"
	"github.com/nlx-io/nlx-gateway/internal/rpc"
	"github.com/nlx-io/nlx-gateway/internal/rpc/directory"
	"github.com/nlx-io/nlx-gateway/internal/rpc/management"
)

// AnnounceInterval is the fixed 10-second tick on which the inway
// broadcaster re-announces its services to the directory, per spec.md
// §4.2.
const AnnounceInterval = 10 * time.Second

// Broadcaster keeps this inway registered with the management API and
// announces its services to the directory, gated on having observed at
// least one configuration event. Grounded on
// original_source/src/inway/broadcast.rs's register_inway and the
// teacher's connectLoop retry shape.
type Broadcaster struct {
	Name        string
	Version     string
	SelfAddress string
	Management  *management.Client
	Directory   *directory.Client
	Sub         *broadcast.Subscription[model.InwayConfig]
	Metrics     *metrics.Registry
	Logger      *slog.Logger

	// announceInterval overrides AnnounceInterval when non-zero, so tests
	// can drive the announce ticker without a real 10-second wait.
	announceInterval time.Duration
}

// Run registers with the management API and then loops announcing this
// inway's services to the directory every AnnounceInterval, until ctx is
// cancelled. A failure at any step causes the whole cycle (including the
// initial management registration) to restart from scratch after an
// exponential backoff wait, per spec.md §4.2's "loop restarts from its
// initial state" rule.
func (b *Broadcaster) Run(ctx context.Context) error {
	bo := poller.NewBackOff()

	for {
		err := b.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// runOnce only returns nil when ctx is cancelled; reaching here
			// with a nil error is unreachable in practice, but treat it as
			// a clean exit rather than looping forever on nothing.
			return nil
		}

		wait := bo.NextBackOff()
		b.Logger.Warn("inway broadcaster: cycle failed, restarting after backoff",
			slog.Any("error", err),
			slog.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (b *Broadcaster) runOnce(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("inway broadcaster: resolve hostname: %w", err)
	}

	if err := b.Management.RegisterInway(ctx, &management.Inway{
		Name:        b.Name,
		Version:     b.Version,
		Hostname:    hostname,
		SelfAddress: b.SelfAddress,
		Services:    []string{},
		IPAddress:   "",
	}); err != nil {
		b.Metrics.BroadcastTotal.WithLabelValues("inway", "error").Inc()
		return fmt.Errorf("inway broadcaster: RegisterInway: %w", err)
	}
	b.Metrics.BroadcastTotal.WithLabelValues("inway", "ok").Inc()

	interval := b.announceInterval
	if interval == 0 {
		interval = AnnounceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bo := poller.NewBackOff()
	var cfg model.InwayConfig
	haveConfig := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case env, ok := <-b.Sub.C():
			if !ok {
				return fmt.Errorf("inway broadcaster: configuration subscription closed")
			}
			if env.Lagged > 0 {
				b.Logger.Warn("inway broadcaster: missed configuration events, pausing announcements",
					slog.Int("lagged", env.Lagged))
				haveConfig = false
				continue
			}
			cfg = env.Value
			haveConfig = true

		case <-ticker.C:
			if !haveConfig {
				continue
			}
			if err := b.announce(ctx, cfg); err != nil {
				return err
			}
			bo.Reset()
		}
	}
}

func (b *Broadcaster) announce(ctx context.Context, cfg model.InwayConfig) error {
	services := make([]directory.RegisterInwayService, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		services = append(services, directory.RegisterInwayService{
			Name:             svc.Name,
			DocumentationURL: svc.DocumentationURL,
			Costs: directory.Costs{
				OneTime: svc.OneTimeCosts,
				Monthly: svc.MonthlyCosts,
				Request: svc.RequestCosts,
			},
		})
	}

	announceCtx := rpc.WithComponentMetadata(ctx, "inway", b.Version)
	_, err := b.Directory.RegisterInway(announceCtx, &directory.RegisterInwayRequest{
		InwayAddress:              b.SelfAddress,
		Services:                  services,
		InwayName:                 b.Name,
		IsOrganizationInway:       true,
		ManagementAPIProxyAddress: "",
	})
	if err != nil {
		b.Metrics.BroadcastTotal.WithLabelValues("inway", "error").Inc()
		return fmt.Errorf("inway broadcaster: directory RegisterInway: %w", err)
	}
	b.Metrics.BroadcastTotal.WithLabelValues("inway", "ok").Inc()
	return nil
}
