package gce

import (
	"context"
	"fmt"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/provisioning"

	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ProviderName is stored in the connection record for Compute Engine instances.
const ProviderName = config.ProviderGCE

const operationDone = "DONE"

// Provider creates instances in one Compute Engine project.
type Provider struct {
	svc     *compute.Service
	project string
	shape   config.VMShape
}

// NewProvider creates a Provider. Without options the client uses
// Application Default Credentials.
func NewProvider(ctx context.Context, project string, shape config.VMShape, opts ...option.ClientOption) (*Provider, error) {
	svc, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	return &Provider{svc: svc, project: project, shape: shape}, nil
}

// Name implements provisioning.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

// ListZones returns every zone of the project in API order.
func (p *Provider) ListZones(ctx context.Context) ([]string, error) {
	var zones []string
	err := p.svc.Zones.List(p.project).Pages(ctx, func(page *compute.ZoneList) error {
		for _, z := range page.Items {
			zones = append(zones, z.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	return zones, nil
}

// CreateInstance inserts the instance and waits for the zone operation.
func (p *Provider) CreateInstance(ctx context.Context, zone string, spec provisioning.InstanceSpec) (*provisioning.Instance, error) {
	op, err := p.svc.Instances.Insert(p.project, zone, p.instance(zone, spec.Name)).Context(ctx).Do()
	if err != nil {
		return nil, provisioning.NewCreateError(classify(err), zone, err)
	}

	if err := p.wait(ctx, zone, op); err != nil {
		return nil, provisioning.NewCreateError(classify(err), zone, err)
	}

	return &provisioning.Instance{Name: spec.Name, Zone: zone}, nil
}

// wait blocks until op is done. ZoneOperations.Wait returns early on
// its own deadline, so it is called until the status is DONE.
func (p *Provider) wait(ctx context.Context, zone string, op *compute.Operation) error {
	for op.Status != operationDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := p.svc.ZoneOperations.Wait(p.project, zone, op.Name).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to wait for operation %s: %w", op.Name, err)
		}
		op = next
	}

	if op.Error != nil && len(op.Error.Errors) > 0 {
		return &OperationError{Operation: op.Name, Errors: op.Error.Errors}
	}
	return nil
}

func (p *Provider) instance(zone, name string) *compute.Instance {
	return &compute.Instance{
		Name:        name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", zone, p.shape.MachineType),
		GuestAccelerators: []*compute.AcceleratorConfig{{
			AcceleratorType:  fmt.Sprintf("zones/%s/acceleratorTypes/%s", zone, p.shape.GPUType),
			AcceleratorCount: p.shape.GPUCount,
		}},
		Disks: []*compute.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &compute.AttachedDiskInitializeParams{
				SourceImage: fmt.Sprintf("projects/%s/global/images/family/%s", p.shape.ImageProject, p.shape.ImageFamily),
				DiskSizeGb:  p.shape.DiskSizeGB,
			},
		}},
		NetworkInterfaces: []*compute.NetworkInterface{{
			Network: "global/networks/default",
			AccessConfigs: []*compute.AccessConfig{{
				Name: "External NAT",
				Type: "ONE_TO_ONE_NAT",
			}},
		}},
		ServiceAccounts: []*compute.ServiceAccount{{
			Email:  "default",
			Scopes: p.shape.Scopes,
		}},
		Scheduling: &compute.Scheduling{
			OnHostMaintenance: p.shape.MaintenancePolicy,
			AutomaticRestart:  googleapi.Bool(true),
		},
		Labels: map[string]string{"managed-by": "ebookcast"},
	}
}
