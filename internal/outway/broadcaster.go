package outway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/poller"
	"github.com/nlx-io/nlx-gateway/internal/rpc/directory"
	"github.com/nlx-io/nlx-gateway/internal/rpc/management"
	"github.com/nlx-io/nlx-gateway/internal/tlsconfig"
)

// AnnounceInterval is the fixed 10-second re-registration tick, per
// spec.md §4.2.
const AnnounceInterval = 10 * time.Second

// Broadcaster keeps the outway registered with both the management API and
// the directory, announcing to each in parallel every AnnounceInterval.
// Grounded on the teacher's connectLoop retry shape; the parallel
// management/directory calls are new, following spec.md §4.2's "in
// parallel" instruction with golang.org/x/sync/errgroup.
type Broadcaster struct {
	Name           string
	Version        string
	SelfAddressAPI string
	OrgTLS         *tlsconfig.Pair
	Management     *management.Client
	Directory      *directory.Client
	Logger         *slog.Logger
	Metrics        *metrics.Registry

	// announceInterval overrides AnnounceInterval when non-zero, so tests
	// can drive the announce ticker without a real 10-second wait.
	announceInterval time.Duration
}

// Run announces on a fixed tick until ctx is cancelled. A failed
// announcement round causes the whole loop to restart after an
// exponential backoff wait.
func (b *Broadcaster) Run(ctx context.Context) error {
	bo := poller.NewBackOff()
	interval := b.announceInterval
	if interval == 0 {
		interval = AnnounceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := b.announce(ctx); err != nil {
			wait := bo.NextBackOff()
			b.Logger.Warn("outway broadcaster: announce failed, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", wait),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

func (b *Broadcaster) announce(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		pubKey, err := b.OrgTLS.PublicKeyPEM()
		if err != nil {
			return fmt.Errorf("outway broadcaster: public key PEM: %w", err)
		}
		if err := b.Management.RegisterOutway(egCtx, &management.RegisterOutwayRequest{
			Name:           b.Name,
			PublicKeyPEM:   string(pubKey),
			Version:        b.Version,
			SelfAddressAPI: b.SelfAddressAPI,
		}); err != nil {
			b.Metrics.BroadcastTotal.WithLabelValues("outway-management", "error").Inc()
			return fmt.Errorf("outway broadcaster: management RegisterOutway: %w", err)
		}
		b.Metrics.BroadcastTotal.WithLabelValues("outway-management", "ok").Inc()
		return nil
	})

	eg.Go(func() error {
		if err := b.Directory.RegisterOutway(egCtx, &directory.RegisterOutwayRequest{Name: b.Name}); err != nil {
			b.Metrics.BroadcastTotal.WithLabelValues("outway-directory", "error").Inc()
			return fmt.Errorf("outway broadcaster: directory RegisterOutway: %w", err)
		}
		b.Metrics.BroadcastTotal.WithLabelValues("outway-directory", "ok").Inc()
		return nil
	})

	return eg.Wait()
}
