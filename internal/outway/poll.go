// Package outway wires the poller, broadcaster, routing table, and
// listener into the outway role, per spec.md §4 and §2's "role glue"
// component.
package outway

import (
	"context"
	"fmt"

	"github.com/nlx-io/nlx-gateway/internal/broadcast"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/model"
	"github.com/nlx-io/nlx-gateway/internal/rpc/directory"
)

// ConfigPoll implements poller.Poll: it calls the directory's ListServices
// RPC, groups the result by organization serial number, normalizes inway
// addresses, and publishes a model.OutwayConfig when its content hash
// changes. Grounded on original_source/src/outway/config_poller.rs's
// group_by + map_config shape.
type ConfigPoll struct {
	Client    *directory.Client
	Publisher *broadcast.Broadcaster[model.OutwayConfig]
	Metrics   *metrics.Registry

	lastHash    uint64
	hasLastHash bool
}

// Do fetches every known service and publishes the grouped-by-organization
// snapshot if it differs from the last published one.
func (p *ConfigPoll) Do(ctx context.Context) error {
	resp, err := p.Client.ListServices(ctx, &directory.ListServicesRequest{})
	if err != nil {
		p.Metrics.PollTotal.WithLabelValues("outway", "error").Inc()
		return fmt.Errorf("outway: poll: %w", err)
	}

	cfg := mapConfig(resp)
	hash := cfg.Hash()

	p.Metrics.PollTotal.WithLabelValues("outway", "ok").Inc()

	if p.hasLastHash && hash == p.lastHash {
		return nil
	}

	p.Publisher.Publish(cfg)
	p.lastHash = hash
	p.hasLastHash = true
	p.Metrics.PollPublishTotal.WithLabelValues("outway").Inc()
	return nil
}

func mapConfig(resp *directory.ListServicesResponse) model.OutwayConfig {
	services := make(map[string][]model.DirectoryService)
	for _, svc := range resp.Services {
		mapped := model.DirectoryService{
			Name:                 svc.Name,
			DocumentationURL:     svc.DocumentationURL,
			APISpecificationType: svc.APISpecificationType,
			Internal:             svc.Internal,
			PublicSupportContact: svc.PublicSupportContact,
			Costs: model.Costs{
				OneTime: svc.Costs.OneTime,
				Monthly: svc.Costs.Monthly,
				Request: svc.Costs.Request,
			},
			Organization: model.Organization{
				Name:         svc.Organization.Name,
				SerialNumber: svc.Organization.SerialNumber,
			},
		}
		mapped.Inways = make([]model.DirectoryInway, 0, len(svc.Inways))
		for _, inway := range svc.Inways {
			mapped.Inways = append(mapped.Inways, model.DirectoryInway{
				Address: model.NormalizeAddress(inway.Address),
				State:   model.DirectoryInwayState(inway.State),
			})
		}

		serial := svc.Organization.SerialNumber
		services[serial] = append(services[serial], mapped)
	}
	return model.OutwayConfig{Services: services}
}
