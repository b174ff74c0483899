package hcloud

import (
	"context"
	"fmt"

	"github.com/imamik/ebookcast/internal/provisioning"
	"github.com/imamik/ebookcast/internal/util/retry"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// Name implements provisioning.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

// ListZones returns the location names in API order.
func (p *Provider) ListZones(ctx context.Context) ([]string, error) {
	locations, err := p.client.Location.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	zones := make([]string, 0, len(locations))
	for _, loc := range locations {
		zones = append(zones, loc.Name)
	}
	return zones, nil
}

// CreateInstance creates a server in the location named zone and waits for
// the create action to finish.
func (p *Provider) CreateInstance(ctx context.Context, zone string, spec provisioning.InstanceSpec) (*provisioning.Instance, error) {
	opts, err := p.buildCreateOpts(ctx, zone, spec)
	if err != nil {
		return nil, provisioning.NewCreateError(provisioning.KindOther, zone, err)
	}

	var result hcloud.ServerCreateResult
	err = retry.WithExponentialBackoff(ctx, func() error {
		res, _, err := p.client.Server.Create(ctx, opts)
		if err != nil {
			if isResourceLocked(err) {
				return err
			}
			return retry.Fatal(err)
		}
		result = res
		return nil
	}, retry.WithMaxRetries(p.retries), retry.WithInitialDelay(p.retryDelay))
	if err != nil {
		return nil, provisioning.NewCreateError(classify(err), zone, fmt.Errorf("failed to create server: %w", err))
	}

	actions := append([]*hcloud.Action{result.Action}, result.NextActions...)
	if err := p.client.Action.WaitFor(ctx, actions...); err != nil {
		return nil, provisioning.NewCreateError(classify(err), zone, fmt.Errorf("failed to wait for server creation: %w", err))
	}

	inst := &provisioning.Instance{Name: spec.Name, Zone: zone}
	if result.Server != nil && result.Server.PublicNet.IPv4.IP != nil {
		inst.Host = result.Server.PublicNet.IPv4.IP.String()
	}
	if inst.Host == "" {
		return nil, provisioning.NewCreateError(provisioning.KindOther, zone, fmt.Errorf("server %s has no public IPv4", spec.Name))
	}
	return inst, nil
}

func (p *Provider) buildCreateOpts(ctx context.Context, zone string, spec provisioning.InstanceSpec) (hcloud.ServerCreateOpts, error) {
	keys, err := p.resolveSSHKeys(ctx)
	if err != nil {
		return hcloud.ServerCreateOpts{}, err
	}

	return hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: &hcloud.ServerType{Name: p.shape.ServerType},
		Image:      &hcloud.Image{Name: p.shape.Image},
		Location:   &hcloud.Location{Name: zone},
		SSHKeys:    keys,
		Labels:     p.labels,
	}, nil
}
