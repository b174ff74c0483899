package hcloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"golang.org/x/crypto/ssh"
)

func (p *Provider) resolveSSHKeys(ctx context.Context) ([]*hcloud.SSHKey, error) {
	keys := make([]*hcloud.SSHKey, 0, len(p.shape.SSHKeys)+1)
	for _, name := range p.shape.SSHKeys {
		key, _, err := p.client.SSHKey.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get ssh key %s: %w", name, err)
		}
		if key == nil {
			return nil, fmt.Errorf("ssh key not found: %s", name)
		}
		keys = append(keys, key)
	}

	if len(p.publicKey) > 0 {
		key, err := p.ensureAuthorizedKey(ctx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ensureAuthorizedKey looks the local public key up by fingerprint and
// uploads it when Hetzner does not have it yet.
func (p *Provider) ensureAuthorizedKey(ctx context.Context) (*hcloud.SSHKey, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey(p.publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	fingerprint := ssh.FingerprintLegacyMD5(pub)

	key, _, err := p.client.SSHKey.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ssh key %s: %w", fingerprint, err)
	}
	if key != nil {
		return key, nil
	}

	key, _, err = p.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{
		Name:      p.keyName,
		PublicKey: strings.TrimSpace(string(p.publicKey)),
		Labels:    p.labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload ssh key %s: %w", p.keyName, err)
	}
	return key, nil
}
