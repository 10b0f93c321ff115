// Package inway wires the poller, broadcaster, routing table, and listener
// into the inway role, per spec.md §4 and §2's "role glue" component.
package inway

import (
	"context"
	"fmt"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
	"github.com/nlx-io/nlx-gateway/internal/rpc/management"
)

// ConfigPoll implements poller.Poll: it calls the management API's
// GetInwayConfig RPC, maps the response into a model.InwayConfig, and
// publishes it to subscribers when its content hash changes from the last
// published one. Grounded on
// original_source/src/inway/config_poller.rs's map_config +
// DefaultHasher-then-compare-then-publish shape.
type ConfigPoll struct {
	Name      string
	Client    *management.Client
	Publisher *broadcast.Broadcaster[model.InwayConfig]
	Metrics   *metrics.Registry

	lastHash    uint64
	hasLastHash bool
}

// Do fetches the current configuration and publishes it if its content
// differs from the last published snapshot.
func (p *ConfigPoll) Do(ctx context.Context) error {
	resp, err := p.Client.GetInwayConfig(ctx, &management.GetInwayConfigRequest{Name: p.Name})
	if err != nil {
		p.Metrics.PollTotal.WithLabelValues("inway", "error").Inc()
		return fmt.Errorf("inway: poll: %w", err)
	}

	cfg := mapConfig(resp)
	hash := cfg.Hash()

	p.Metrics.PollTotal.WithLabelValues("inway", "ok").Inc()

	if p.hasLastHash && hash == p.lastHash {
		return nil
	}

	p.Publisher.Publish(cfg)
	p.lastHash = hash
	p.hasLastHash = true
	p.Metrics.PollPublishTotal.WithLabelValues("inway").Inc()
	return nil
}

func mapConfig(resp *management.GetInwayConfigResponse) model.InwayConfig {
	services := make(map[string]model.InwayService, len(resp.Services))
	for _, s := range resp.Services {
		services[s.Name] = model.InwayService{
			Name:                 s.Name,
			EndpointURL:          s.EndpointURL,
			Internal:             s.Internal,
			DocumentationURL:     s.DocumentationURL,
			TechSupportContact:   s.TechSupportContact,
			PublicSupportContact: s.PublicSupportContact,
			OneTimeCosts:         s.OneTimeCosts,
			MonthlyCosts:         s.MonthlyCosts,
			RequestCosts:         s.RequestCosts,
		}
	}
	return model.InwayConfig{Services: services}
}
