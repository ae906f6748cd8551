// Package client assembles the data layer into one explicitly-owned root
// object. There are no ambient globals: the application constructs a
// Client, passes it where needed and tears it down at exit.
package client

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/tunegraph-io/tunegraph/lib/cache"
	"github.com/tunegraph-io/tunegraph/lib/gossip"
	"github.com/tunegraph-io/tunegraph/lib/pending"
	"github.com/tunegraph-io/tunegraph/lib/reactions"
	"github.com/tunegraph-io/tunegraph/lib/relays"
	"github.com/tunegraph-io/tunegraph/lib/sessions"
	"github.com/tunegraph-io/tunegraph/lib/signing"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// ErrNotFound is returned when no relay in the queried set has the entity.
// It means "not observed", never "does not exist".
var ErrNotFound = errors.New("entity not found on any queried relay")

// Client is the application root of the decentralized data layer.
type Client struct {
	cfg *types.Config

	Cache     *cache.Store
	Pool      *relays.Pool
	Resolver  *gossip.Resolver
	Pending   *pending.Queue
	Reactions *reactions.Manager
	Sessions  *sessions.Manager

	now func() time.Time
}

// New wires up the full client. secrets is the external secure store for
// session credentials.
func New(cfg *types.Config, secrets sessions.SecretStore) (*Client, error) {
	store, err := cache.InitStore(filepath.Join(cfg.Client.DataPath, "cache"))
	if err != nil {
		return nil, err
	}

	queue, err := pending.InitQueue(
		filepath.Join(cfg.Client.DataPath, "pending"),
		time.Duration(cfg.Pending.MaxAgeDays)*24*time.Hour,
		cfg.Pending.MaxRetries,
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	pool := relays.NewPool(time.Duration(cfg.Relays.QueryTimeoutSeconds) * time.Second)
	resolver := gossip.NewResolver(pool, cfg.Relays.Bootstrap,
		time.Duration(cfg.Relays.GossipTTLSeconds)*time.Second)

	reactionManager := reactions.NewManager(pool, resolver, queue, cfg.Reactions.LikeMarkers)

	sessionManager := sessions.NewManager(secrets)
	sessionManager.OnLogout(reactionManager.Invalidate)

	return &Client{
		cfg:       cfg,
		Cache:     store,
		Pool:      pool,
		Resolver:  resolver,
		Pending:   queue,
		Reactions: reactionManager,
		Sessions:  sessionManager,
		now:       time.Now,
	}, nil
}

// Close tears down every owned resource.
func (c *Client) Close() error {
	c.Resolver.Stop()
	c.Pool.Close()

	var result error
	result = multierr.Append(result, c.Cache.Close())
	result = multierr.Append(result, c.Pending.Close())
	return result
}

// Login activates and persists a session.
func (c *Client) Login(ctx context.Context, method signing.Method, credential string) (signing.Signer, error) {
	signer, err := c.Sessions.Login(ctx, method, credential)
	if err != nil {
		return nil, err
	}

	// Preload is best-effort; liked state self-heals on first use.
	if pubkey, err := signer.PublicKey(ctx); err == nil {
		_ = c.Reactions.Preload(ctx, pubkey)
	}
	return signer, nil
}

// Restore rebuilds the session from the persisted credential.
func (c *Client) Restore(ctx context.Context) (signing.Signer, error) {
	return c.Sessions.Restore(ctx)
}

// Logout ends the session and invalidates per-session state.
func (c *Client) Logout(ctx context.Context) error {
	return c.Sessions.Logout(ctx)
}

// Like marks a track or playlist as liked by the current user.
func (c *Client) Like(ctx context.Context, addr types.EntityAddress, targetEventID string) error {
	signer, err := c.Sessions.Signer()
	if err != nil {
		return err
	}
	return c.Reactions.Like(ctx, signer, addr, targetEventID)
}

// Unlike revokes the current user's like, a no-op when none exists.
func (c *Client) Unlike(ctx context.Context, addr types.EntityAddress) error {
	signer, err := c.Sessions.Signer()
	if err != nil {
		return err
	}
	return c.Reactions.Unlike(ctx, signer, addr)
}

// IsLiked reports the current user's like state for a target.
func (c *Client) IsLiked(ctx context.Context, addr types.EntityAddress) (bool, error) {
	signer, err := c.Sessions.Signer()
	if err != nil {
		return false, err
	}
	return c.Reactions.IsLiked(ctx, signer, addr)
}

// RetryPending re-attempts queued broadcasts, typically on reconnect.
func (c *Client) RetryPending(ctx context.Context) (pending.SweepResult, error) {
	return c.Pending.Sweep(ctx, c.Pool)
}

// CacheStats returns cache diagnostics.
func (c *Client) CacheStats() (cache.Stats, error) {
	return c.Cache.Stats()
}

// ClearCache drops the local projection. Everything in it is re-derivable
// from the network.
func (c *Client) ClearCache() error {
	return c.Cache.Clear()
}

// StreamURL resolves the playable URL handed to the external playback
// engine.
func (c *Client) StreamURL(track *types.Track) string {
	return track.URL
}

func policy(p types.FreshnessPolicy) (stale, expire time.Duration) {
	return time.Duration(p.StaleSeconds) * time.Second,
		time.Duration(p.ExpireSeconds) * time.Second
}
