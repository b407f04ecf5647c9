package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"slices"
)

// Provider is the signing capability handed to the log engine. Backends may
// live in memory, on disk or behind a hardware module; Sign may be slow.
type Provider interface {
	// VerificationKeyMultibase returns the public key as an Ed25519 multikey
	// ("z6Mk...").
	VerificationKeyMultibase() string
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	IsKeyInSet(keys []string) bool
}

// Algorithm is the only signature algorithm the providers in this package
// produce, named the way JOSE names it.
const Algorithm = "EdDSA"

type Ed25519Provider struct {
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
	multibase string
}

func NewEd25519Provider(priv ed25519.PrivateKey) (*Ed25519Provider, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keys: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}

	pub := priv.Public().(ed25519.PublicKey)
	mb, err := MultikeyFromPublic(pub)
	if err != nil {
		return nil, err
	}

	return &Ed25519Provider{
		priv:      priv,
		pub:       pub,
		multibase: mb,
	}, nil
}

func GenerateEd25519Provider() (*Ed25519Provider, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate Ed25519 key: %w", err)
	}
	return NewEd25519Provider(priv)
}

func Ed25519ProviderFromSeed(seed []byte) (*Ed25519Provider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewEd25519Provider(ed25519.NewKeyFromSeed(seed))
}

func (p *Ed25519Provider) VerificationKeyMultibase() string {
	return p.multibase
}

func (p *Ed25519Provider) Sign(_ context.Context, msg []byte) ([]byte, error) {
	return ed25519.Sign(p.priv, msg), nil
}

func (p *Ed25519Provider) IsKeyInSet(keys []string) bool {
	return slices.Contains(keys, p.multibase)
}

func (p *Ed25519Provider) PublicKey() ed25519.PublicKey {
	return p.pub
}
