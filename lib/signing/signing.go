// Event signing capability with interchangeable backends.
package signing

import (
	"context"
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

// ErrNoSigner is returned when a signing operation is attempted with no
// configured signer. This is a precondition violation, not a retryable
// network failure.
var ErrNoSigner = errors.New("no signer configured")

// Method identifies how a signer credential is interpreted.
type Method string

const (
	// MethodLocal is a raw secret key held in memory.
	MethodLocal Method = "local"
	// MethodBunker is a NIP-46 remote signer session.
	MethodBunker Method = "bunker"
)

// Signer is the uniform signing capability. Callers depend only on this
// surface and never on the concrete backend.
type Signer interface {
	// PublicKey returns the hex public key events will be attributed to.
	PublicKey(ctx context.Context) (string, error)
	// SignEvent fills in pubkey, id and signature on the template.
	SignEvent(ctx context.Context, ev *nostr.Event) error
}
