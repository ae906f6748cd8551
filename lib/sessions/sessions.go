// Session persistence over an external secret store.
package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/signing"
)

// SecretStore is the external secure store holding the session credential.
// Implementations live outside this layer (OS keychain, encrypted file).
type SecretStore interface {
	// Load returns the persisted (method, credential) pair. A store with
	// no session returns ("", "", nil).
	Load(ctx context.Context) (method signing.Method, credential string, err error)
	Save(ctx context.Context, method signing.Method, credential string) error
	Clear(ctx context.Context) error
}

// Manager owns the active signer and its persisted credential. Restoration
// is guarded: concurrent Restore calls collapse into a single in-flight
// attempt that all callers await.
type Manager struct {
	store SecretStore

	mu         sync.Mutex
	signer     signing.Signer
	bunker     *signing.BunkerSigner
	inflight   chan struct{}
	restoreErr error

	onLogout []func()
}

// NewManager creates a session manager backed by the given secret store.
func NewManager(store SecretStore) *Manager {
	return &Manager{store: store}
}

// OnLogout registers a callback invoked whenever the session ends. Used to
// invalidate per-session state such as the liked-track membership cache.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// Signer returns the active signer, or ErrNoSigner when logged out.
func (m *Manager) Signer() (signing.Signer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signer == nil {
		return nil, signing.ErrNoSigner
	}
	return m.signer, nil
}

// Login activates a signer for the given credential and persists it.
func (m *Manager) Login(ctx context.Context, method signing.Method, credential string) (signing.Signer, error) {
	signer, bunker, err := m.buildSigner(ctx, method, credential)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(ctx, method, credential); err != nil {
		// Session still works for this process; it just won't survive
		// a restart.
		logging.Warnf("Failed to persist session credential: %v", err)
	}

	m.mu.Lock()
	m.signer = signer
	m.bunker = bunker
	m.mu.Unlock()

	return signer, nil
}

// Restore rebuilds the signer from the persisted credential. It is
// idempotent; with no stored session it returns ErrNoSigner. Concurrent
// callers share one restoration attempt and its outcome.
func (m *Manager) Restore(ctx context.Context) (signing.Signer, error) {
	m.mu.Lock()
	if m.signer != nil {
		signer := m.signer
		m.mu.Unlock()
		return signer, nil
	}
	if m.inflight != nil {
		done := m.inflight
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.restoreErr != nil {
			return nil, m.restoreErr
		}
		return m.signer, nil
	}
	done := make(chan struct{})
	m.inflight = done
	m.mu.Unlock()

	signer, bunker, err := m.restore(ctx)

	m.mu.Lock()
	if err == nil {
		m.signer = signer
		m.bunker = bunker
	}
	m.restoreErr = err
	m.inflight = nil
	close(done)
	m.mu.Unlock()

	return signer, err
}

func (m *Manager) restore(ctx context.Context) (signing.Signer, *signing.BunkerSigner, error) {
	method, credential, err := m.store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session credential: %w", err)
	}
	if credential == "" {
		return nil, nil, signing.ErrNoSigner
	}

	return m.buildSigner(ctx, method, credential)
}

func (m *Manager) buildSigner(ctx context.Context, method signing.Method, credential string) (signing.Signer, *signing.BunkerSigner, error) {
	switch method {
	case signing.MethodLocal:
		signer, err := signing.NewLocalSigner(credential)
		if err != nil {
			return nil, nil, err
		}
		return signer, nil, nil

	case signing.MethodBunker:
		// Credential is "clientSecret|bunkerURL"; the handshake is
		// async and may fail if the remote agent is offline.
		clientSecret, bunkerURL, err := splitBunkerCredential(credential)
		if err != nil {
			return nil, nil, err
		}
		bunker, err := signing.ConnectBunker(ctx, clientSecret, bunkerURL)
		if err != nil {
			return nil, nil, err
		}
		return bunker, bunker, nil

	default:
		return nil, nil, fmt.Errorf("unknown signing method %q", method)
	}
}

// Logout clears the persisted credential and releases any open remote
// signer session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	bunker := m.bunker
	callbacks := append([]func(){}, m.onLogout...)
	m.signer = nil
	m.bunker = nil
	m.restoreErr = nil
	m.mu.Unlock()

	if bunker != nil {
		bunker.Close()
	}

	for _, fn := range callbacks {
		fn()
	}

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session credential: %w", err)
	}
	return nil
}
