package hcloud

import (
	"time"

	"github.com/imamik/ebookcast/internal/config"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ProviderName is stored in the connection record for Hetzner servers.
const ProviderName = config.ProviderHCloud

// Provider creates servers through the Hetzner Cloud API.
type Provider struct {
	client *hcloud.Client
	shape  config.HCloudShape
	labels map[string]string

	keyName   string
	publicKey []byte

	retries    int
	retryDelay time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) Option {
	return func(p *Provider) {
		p.client = hc
	}
}

// WithRetry sets how often a locked create request is retried.
func WithRetry(retries int, delay time.Duration) Option {
	return func(p *Provider) {
		p.retries = retries
		p.retryDelay = delay
	}
}

// WithAuthorizedKey registers publicKey (authorized_keys format) under name
// when the account does not already know it, and installs it on every
// created server in addition to the shape's named keys.
func WithAuthorizedKey(name string, publicKey []byte) Option {
	return func(p *Provider) {
		p.keyName = name
		p.publicKey = publicKey
	}
}

// NewProvider creates a Provider for the given API token and server shape.
func NewProvider(token string, shape config.HCloudShape, opts ...Option) *Provider {
	p := &Provider{
		client:     hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("ebookcast", "")),
		shape:      shape,
		labels:     map[string]string{"managed-by": "ebookcast"},
		retries:    3,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
