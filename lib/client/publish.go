package client

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/codec"
	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/relays"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// PublishTrack signs and broadcasts a track. The local cache is updated
// before any relay confirms, and a publish failing on every relay queues
// the signed event for retry instead of failing the call.
func (c *Client) PublishTrack(ctx context.Context, track *types.Track) (*types.Track, error) {
	signer, err := c.Sessions.Signer()
	if err != nil {
		return nil, err
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	// Work on a copy so the caller's value is left untouched.
	stamped := *track
	stamped.PubKey = pubkey
	ev := codec.TrackEvent(&stamped, nostr.Timestamp(c.now().Unix()))
	if err := signer.SignEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to sign track: %w", err)
	}

	signed, err := codec.ParseTrack(ev)
	if err != nil {
		return nil, fmt.Errorf("built track event failed to round-trip: %w", err)
	}

	if err := c.Cache.UpsertTrack(signed, c.now()); err != nil {
		logging.Warnf("Failed to cache own track %s: %v", signed.Address(), err)
	}

	c.broadcastOwn(ctx, *ev, pubkey)
	return signed, nil
}

// PublishPlaylist signs and broadcasts a playlist, with the same optimistic
// cache and queue-on-failure behavior as PublishTrack.
func (c *Client) PublishPlaylist(ctx context.Context, playlist *types.Playlist) (*types.Playlist, error) {
	signer, err := c.Sessions.Signer()
	if err != nil {
		return nil, err
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	stamped := *playlist
	stamped.PubKey = pubkey
	ev := codec.PlaylistEvent(&stamped, nostr.Timestamp(c.now().Unix()))
	if err := signer.SignEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to sign playlist: %w", err)
	}

	signed, err := codec.ParsePlaylist(ev)
	if err != nil {
		return nil, fmt.Errorf("built playlist event failed to round-trip: %w", err)
	}

	if err := c.Cache.UpsertPlaylist(signed, c.now()); err != nil {
		logging.Warnf("Failed to cache own playlist %s: %v", signed.Address(), err)
	}

	c.broadcastOwn(ctx, *ev, pubkey)
	return signed, nil
}

// RemovePlaylist broadcasts a deletion for the user's playlist and drops
// the local copy. Unknown playlists are a no-op.
func (c *Client) RemovePlaylist(ctx context.Context, addr types.EntityAddress) error {
	signer, err := c.Sessions.Signer()
	if err != nil {
		return err
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return err
	}
	if addr.PubKey != pubkey {
		return fmt.Errorf("playlist %s is not owned by the current user", addr)
	}

	playlist, _, ok := c.Cache.GetPlaylist(addr)
	if !ok {
		fetched, err := c.fetchPlaylist(ctx, addr)
		if err != nil {
			return nil
		}
		playlist = fetched
	}

	ev := codec.DeletionEvent(playlist.ID, types.KindPlaylist, nostr.Timestamp(c.now().Unix()))
	if err := signer.SignEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to sign deletion: %w", err)
	}

	if err := c.Cache.DeletePlaylist(addr); err != nil {
		logging.Warnf("Failed to drop cached playlist %s: %v", addr, err)
	}

	c.broadcastOwn(ctx, *ev, pubkey)
	return nil
}

// broadcastOwn publishes an event authored by the current user to their
// write relay set, parking it in the pending queue when no relay accepts.
func (c *Client) broadcastOwn(ctx context.Context, ev nostr.Event, pubkey string) {
	targets := c.Resolver.OwnWriteRelays(ctx, pubkey)

	if relays.AnySuccess(c.Pool.Publish(ctx, targets, ev)) {
		return
	}

	logging.Warnf("No relay accepted event %s, queueing for retry", ev.ID)
	if err := c.Pending.Add(ev, targets); err != nil {
		logging.Errorf("Failed to queue event %s: %v", ev.ID, err)
	}
}
