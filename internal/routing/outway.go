package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
)

// OutwayTable is the routing table consumed by the outway's request
// handler: organization serial -> the services that organization exposes.
type OutwayTable struct {
	mu     sync.RWMutex
	config model.OutwayConfig
	logger *slog.Logger
}

// NewOutwayTable creates an empty OutwayTable.
func NewOutwayTable(logger *slog.Logger) *OutwayTable {
	return &OutwayTable{
		config: model.OutwayConfig{Services: map[string][]model.DirectoryService{}},
		logger: logger,
	}
}

// Resolved is the upstream selected for a (organization, service) pair.
type Resolved struct {
	// InwayAddress is the normalized base URL of the selected inway.
	InwayAddress string
	// ServiceName is the service name to append to InwayAddress when
	// composing the upstream URL (see proxy.ComposeOutwayURL).
	ServiceName string
}

// Lookup resolves (organizationSerial, serviceName) to an upstream inway.
// Selection is "first matching service, first inway" as spec.md §3
// currently requires (health-based filtering is a documented future
// change, not implemented here).
func (t *OutwayTable) Lookup(organizationSerial, serviceName string) (Resolved, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	services, ok := t.config.Services[organizationSerial]
	if !ok {
		return Resolved{}, false
	}
	for _, svc := range services {
		if svc.Name != serviceName {
			continue
		}
		if len(svc.Inways) == 0 {
			return Resolved{}, false
		}
		return Resolved{
			InwayAddress: svc.Inways[0].Address,
			ServiceName:  svc.Name,
		}, true
	}
	return Resolved{}, false
}

// OrganizationCount returns the number of known organizations, for
// health/metrics reporting.
func (t *OutwayTable) OrganizationCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.config.Services)
}

// Run consumes published OutwayConfig snapshots from sub and swaps them
// into the table, identically to InwayTable.Run.
func (t *OutwayTable) Run(ctx context.Context, sub *broadcast.Subscription[model.OutwayConfig], reg *metrics.Registry) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if env.Lagged > 0 {
				t.logger.Warn("routing: missed outway config events", slog.Int("lagged", env.Lagged))
			}
			t.mu.Lock()
			t.config = env.Value
			t.mu.Unlock()
			if reg != nil {
				reg.RoutingTableSize.WithLabelValues("outway").Set(float64(len(env.Value.Services)))
			}
		}
	}
}
