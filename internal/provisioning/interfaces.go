package provisioning

import "context"

// InstanceSpec is the provider-independent part of a creation request.
// Machine shape lives in the provider's own configuration.
type InstanceSpec struct {
	Name string
}

// Instance describes a created VM.
type Instance struct {
	Name string
	Zone string
	// Host is the public address, when the provider reports one.
	Host string
}

// Provider creates VMs in a cloud.
type Provider interface {
	// Name returns the provider identifier stored in the connection record.
	Name() string

	// ListZones returns the candidate zones in the provider's order.
	ListZones(ctx context.Context) ([]string, error)

	// CreateInstance creates the VM in zone and waits until the provider
	// reports the creation as finished. Failures are returned as *CreateError.
	CreateInstance(ctx context.Context, zone string, spec InstanceSpec) (*Instance, error)
}
