package keygen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// DefaultBits is the RSA key size used for generated keys.
const DefaultBits = 4096

// KeyPair holds an RSA key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKey is the private key in PEM format.
	PrivateKey []byte
	// PublicKey is the public key in OpenSSH authorized_keys format.
	PublicKey []byte
}

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size.
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}

	if err := privateKey.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate RSA private key: %w", err)
	}

	privBlock := pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}

	return &KeyPair{
		PrivateKey: pem.EncodeToMemory(&privBlock),
		PublicKey:  ssh.MarshalAuthorizedKey(publicKey),
	}, nil
}

// LoadOrCreate returns the key pair stored at path. When no file exists a
// new RSA key is generated and written to path (0600) and path+".pub".
// created reports whether a new key was written.
func LoadOrCreate(path string, bits int) (kp *KeyPair, created bool, err error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		kp, err := FromPrivateKey(data)
		if err != nil {
			return nil, false, fmt.Errorf("invalid private key %s: %w", path, err)
		}
		return kp, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("failed to read private key: %w", err)
	}

	kp, err = GenerateRSAKeyPair(bits)
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, kp.PrivateKey, 0o600); err != nil {
		return nil, false, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(path+".pub", kp.PublicKey, 0o644); err != nil {
		return nil, false, fmt.Errorf("failed to write public key: %w", err)
	}
	return kp, true, nil
}

// FromPrivateKey derives the public half of an existing PEM private key.
func FromPrivateKey(privateKey []byte) (*KeyPair, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  ssh.MarshalAuthorizedKey(signer.PublicKey()),
	}, nil
}
