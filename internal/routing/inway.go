// Package routing holds the single-writer/many-reader routing tables
// consumed by the inway and outway data planes. The writer is the
// dedicated goroutine started by Run; readers call Lookup, holding the
// read lock only long enough to clone the small value they need.
package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
)

// InwayTable is the routing table consumed by the inway's request handler:
// service name -> backend service definition.
type InwayTable struct {
	mu     sync.RWMutex
	config model.InwayConfig
	logger *slog.Logger
}

// NewInwayTable creates an empty InwayTable. Lookups fail until the writer
// goroutine (Run) has applied at least one published snapshot.
func NewInwayTable(logger *slog.Logger) *InwayTable {
	return &InwayTable{
		config: model.InwayConfig{Services: map[string]model.InwayService{}},
		logger: logger,
	}
}

// Lookup returns the service registered under name and whether it exists.
// The lock is held only for the duration of the map read and value copy.
func (t *InwayTable) Lookup(name string) (model.InwayService, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	svc, ok := t.config.Services[name]
	return svc, ok
}

// Len returns the number of currently-routable services, for health/metrics
// reporting.
func (t *InwayTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.config.Services)
}

// Run consumes published InwayConfig snapshots from sub and swaps them into
// the table. It returns when ctx is cancelled or the subscription's channel
// is closed (the poller ended), at which point the table is frozen at its
// last value. Lag is logged and otherwise ignored: a stale route is
// preferable to no route, per spec.md §4.3.
func (t *InwayTable) Run(ctx context.Context, sub *broadcast.Subscription[model.InwayConfig], reg *metrics.Registry) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if env.Lagged > 0 {
				t.logger.Warn("routing: missed inway config events", slog.Int("lagged", env.Lagged))
			}
			t.mu.Lock()
			t.config = env.Value
			t.mu.Unlock()
			if reg != nil {
				reg.RoutingTableSize.WithLabelValues("inway").Set(float64(len(env.Value.Services)))
			}
		}
	}
}
