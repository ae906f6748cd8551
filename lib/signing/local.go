package signing

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// LocalSigner holds a raw secret key in memory and signs synchronously.
type LocalSigner struct {
	secretKey string
	publicKey string
}

// NewLocalSigner creates a signer from a hex or nsec-encoded secret key.
func NewLocalSigner(secret string) (*LocalSigner, error) {
	sk := secret
	if strings.HasPrefix(secret, "nsec") {
		prefix, decoded, err := nip19.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secret key: %w", err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("unexpected bech32 prefix %q", prefix)
		}
		sk = decoded.(string)
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &LocalSigner{secretKey: sk, publicKey: pk}, nil
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return NewLocalSigner(hex.EncodeToString(privateKey.Serialize()))
}

// PublicKey returns the hex public key.
func (s *LocalSigner) PublicKey(_ context.Context) (string, error) {
	return s.publicKey, nil
}

// SignEvent signs the event in place.
func (s *LocalSigner) SignEvent(_ context.Context, ev *nostr.Event) error {
	ev.PubKey = s.publicKey
	return ev.Sign(s.secretKey)
}

// SecretKey exposes the raw secret for session persistence.
func (s *LocalSigner) SecretKey() string {
	return s.secretKey
}

// Npub returns the bech32 form of the public key.
func (s *LocalSigner) Npub() (string, error) {
	return nip19.EncodePublicKey(s.publicKey)
}
