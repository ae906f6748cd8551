package signing

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip46"
)

// BunkerSigner proxies signing to a remote agent over a NIP-46 session.
// The session requires a handshake before first use and may fail if the
// remote signer is unreachable.
type BunkerSigner struct {
	bunker *nip46.BunkerClient
	cancel context.CancelFunc
}

// ConnectBunker performs the handshake with a remote signer. clientSecret is
// the throwaway key identifying this client to the bunker; bunkerURL is a
// bunker:// URI (or NIP-05 alias) naming the remote signer.
func ConnectBunker(ctx context.Context, clientSecret string, bunkerURL string) (*BunkerSigner, error) {
	// The pool outlives the handshake context so the session stays usable
	// until Close.
	poolCtx, cancel := context.WithCancel(context.Background())
	pool := nostr.NewSimplePool(poolCtx)

	bunker, err := nip46.ConnectBunker(ctx, clientSecret, bunkerURL, pool, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to remote signer: %w", err)
	}

	return &BunkerSigner{bunker: bunker, cancel: cancel}, nil
}

// PublicKey asks the remote signer for its public key.
func (s *BunkerSigner) PublicKey(ctx context.Context) (string, error) {
	pk, err := s.bunker.GetPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("remote signer unreachable: %w", err)
	}
	return pk, nil
}

// SignEvent sends the template to the remote signer and applies the result.
func (s *BunkerSigner) SignEvent(ctx context.Context, ev *nostr.Event) error {
	if err := s.bunker.SignEvent(ctx, ev); err != nil {
		return fmt.Errorf("remote signer refused to sign: %w", err)
	}
	return nil
}

// Close releases the underlying relay session.
func (s *BunkerSigner) Close() {
	s.cancel()
}
