package client

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/codec"
	"github.com/tunegraph-io/tunegraph/lib/swr"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// Profile returns an author's profile, served from cache when fresh enough
// and refreshed in the background when stale.
func (c *Client) Profile(ctx context.Context, pubkey string) (*types.Profile, error) {
	stale, expire := policy(c.cfg.Cache.Profile)

	return swr.Get(ctx, swr.Resource[*types.Profile]{
		Name: "profile " + pubkey,
		Read: func() (*types.Profile, time.Time, bool) {
			return c.Cache.GetProfile(pubkey)
		},
		Fetch: func(ctx context.Context) (*types.Profile, error) {
			return c.fetchProfile(ctx, pubkey)
		},
		Write: func(profile *types.Profile, fetchedAt time.Time) error {
			return c.Cache.UpsertProfile(profile, fetchedAt)
		},
		Stale:  stale,
		Expire: expire,
		Now:    c.now,
	})
}

func (c *Client) fetchProfile(ctx context.Context, pubkey string) (*types.Profile, error) {
	events := c.Pool.Query(ctx, c.Resolver.RelaysFor(ctx, pubkey), nostr.Filter{
		Kinds:   []int{types.KindProfile},
		Authors: []string{pubkey},
		Limit:   1,
	})

	ev, ok := codec.LatestByAuthor(events)[pubkey]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", pubkey, ErrNotFound)
	}
	return codec.ParseProfile(ev)
}

// Track returns one track by addressable identifier, resolving to the
// newest version observed for that address.
func (c *Client) Track(ctx context.Context, addr types.EntityAddress) (*types.Track, error) {
	stale, expire := policy(c.cfg.Cache.Track)

	return swr.Get(ctx, swr.Resource[*types.Track]{
		Name: "track " + addr.String(),
		Read: func() (*types.Track, time.Time, bool) {
			return c.Cache.GetTrack(addr)
		},
		Fetch: func(ctx context.Context) (*types.Track, error) {
			return c.fetchTrack(ctx, addr)
		},
		Write: func(track *types.Track, fetchedAt time.Time) error {
			return c.Cache.UpsertTrack(track, fetchedAt)
		},
		Stale:  stale,
		Expire: expire,
		Now:    c.now,
	})
}

func (c *Client) fetchTrack(ctx context.Context, addr types.EntityAddress) (*types.Track, error) {
	events := c.Pool.Query(ctx, c.Resolver.RelaysFor(ctx, addr.PubKey), nostr.Filter{
		Kinds:   []int{types.KindTrack},
		Authors: []string{addr.PubKey},
		Tags:    nostr.TagMap{"d": []string{addr.DTag}},
	})

	for _, track := range codec.ParseTracks(events) {
		if track.Address() == addr {
			return track, nil
		}
	}
	return nil, fmt.Errorf("track %s: %w", addr, ErrNotFound)
}

// Playlist returns one playlist by addressable identifier.
func (c *Client) Playlist(ctx context.Context, addr types.EntityAddress) (*types.Playlist, error) {
	stale, expire := policy(c.cfg.Cache.Playlist)

	return swr.Get(ctx, swr.Resource[*types.Playlist]{
		Name: "playlist " + addr.String(),
		Read: func() (*types.Playlist, time.Time, bool) {
			return c.Cache.GetPlaylist(addr)
		},
		Fetch: func(ctx context.Context) (*types.Playlist, error) {
			return c.fetchPlaylist(ctx, addr)
		},
		Write: func(playlist *types.Playlist, fetchedAt time.Time) error {
			return c.Cache.UpsertPlaylist(playlist, fetchedAt)
		},
		Stale:  stale,
		Expire: expire,
		Now:    c.now,
	})
}

func (c *Client) fetchPlaylist(ctx context.Context, addr types.EntityAddress) (*types.Playlist, error) {
	events := c.Pool.Query(ctx, c.Resolver.RelaysFor(ctx, addr.PubKey), nostr.Filter{
		Kinds:   []int{types.KindPlaylist},
		Authors: []string{addr.PubKey},
		Tags:    nostr.TagMap{"d": []string{addr.DTag}},
	})

	for _, playlist := range codec.ParsePlaylists(events) {
		if playlist.Address() == addr {
			return playlist, nil
		}
	}
	return nil, fmt.Errorf("playlist %s: %w", addr, ErrNotFound)
}

// TracksByArtist returns an author's tracks via the named-query cache.
func (c *Client) TracksByArtist(ctx context.Context, pubkey string) ([]*types.Track, error) {
	stale, expire := policy(c.cfg.Cache.Query)
	key := "tracks:author:" + pubkey

	return swr.Get(ctx, swr.Resource[[]*types.Track]{
		Name:  key,
		Read:  c.readTrackQuery(key),
		Fetch: func(ctx context.Context) ([]*types.Track, error) {
			events := c.Pool.Query(ctx, c.Resolver.RelaysFor(ctx, pubkey), nostr.Filter{
				Kinds:   []int{types.KindTrack},
				Authors: []string{pubkey},
			})
			return codec.ParseTracks(events), nil
		},
		Write:  c.writeTrackQuery(key, expire),
		Stale:  stale,
		Expire: expire,
		Now:    c.now,
	})
}

// RecentTracks returns the newest tracks observed across the bootstrap
// relay set.
func (c *Client) RecentTracks(ctx context.Context, limit int) ([]*types.Track, error) {
	stale, expire := policy(c.cfg.Cache.Query)
	key := fmt.Sprintf("tracks:recent:%d", limit)

	return swr.Get(ctx, swr.Resource[[]*types.Track]{
		Name:  key,
		Read:  c.readTrackQuery(key),
		Fetch: func(ctx context.Context) ([]*types.Track, error) {
			events := c.Pool.Query(ctx, c.Resolver.Bootstrap(), nostr.Filter{
				Kinds: []int{types.KindTrack},
				Limit: limit,
			})
			return codec.ParseTracks(events), nil
		},
		Write:  c.writeTrackQuery(key, expire),
		Stale:  stale,
		Expire: expire,
		Now:    c.now,
	})
}

// PlaylistsByAuthor returns an author's playlists via the named-query cache.
func (c *Client) PlaylistsByAuthor(ctx context.Context, pubkey string) ([]*types.Playlist, error) {
	stale, expire := policy(c.cfg.Cache.Query)
	key := "playlists:author:" + pubkey

	return swr.Get(ctx, swr.Resource[[]*types.Playlist]{
		Name: key,
		Read: func() ([]*types.Playlist, time.Time, bool) {
			entry, ok := c.Cache.GetQuery(key, c.now())
			if !ok {
				return nil, time.Time{}, false
			}
			playlists := make([]*types.Playlist, 0, len(entry.ResultIDs))
			for _, id := range entry.ResultIDs {
				addr, err := codec.ParseAddress(id)
				if err != nil {
					return nil, time.Time{}, false
				}
				playlist, _, found := c.Cache.GetPlaylist(addr)
				if !found {
					return nil, time.Time{}, false
				}
				playlists = append(playlists, playlist)
			}
			return playlists, time.Unix(entry.FetchedAt, 0), true
		},
		Fetch: func(ctx context.Context) ([]*types.Playlist, error) {
			events := c.Pool.Query(ctx, c.Resolver.RelaysFor(ctx, pubkey), nostr.Filter{
				Kinds:   []int{types.KindPlaylist},
				Authors: []string{pubkey},
			})
			return codec.ParsePlaylists(events), nil
		},
		Write: func(playlists []*types.Playlist, fetchedAt time.Time) error {
			ids := make([]string, 0, len(playlists))
			for _, playlist := range playlists {
				if err := c.Cache.UpsertPlaylist(playlist, fetchedAt); err != nil {
					return err
				}
				ids = append(ids, playlist.Address().String())
			}
			return c.Cache.PutQuery(key, ids, fetchedAt, fetchedAt.Add(expire))
		},
		Stale:  stale,
		Expire: expire,
		Now:    c.now,
	})
}

// readTrackQuery materializes a cached named query back into tracks. Any
// missing member degrades the whole entry to a miss so the caller refetches.
func (c *Client) readTrackQuery(key string) func() ([]*types.Track, time.Time, bool) {
	return func() ([]*types.Track, time.Time, bool) {
		entry, ok := c.Cache.GetQuery(key, c.now())
		if !ok {
			return nil, time.Time{}, false
		}
		tracks := make([]*types.Track, 0, len(entry.ResultIDs))
		for _, id := range entry.ResultIDs {
			addr, err := codec.ParseAddress(id)
			if err != nil {
				return nil, time.Time{}, false
			}
			track, _, found := c.Cache.GetTrack(addr)
			if !found {
				return nil, time.Time{}, false
			}
			tracks = append(tracks, track)
		}
		return tracks, time.Unix(entry.FetchedAt, 0), true
	}
}

func (c *Client) writeTrackQuery(key string, expire time.Duration) func([]*types.Track, time.Time) error {
	return func(tracks []*types.Track, fetchedAt time.Time) error {
		ids := make([]string, 0, len(tracks))
		for _, track := range tracks {
			if err := c.Cache.UpsertTrack(track, fetchedAt); err != nil {
				return err
			}
			ids = append(ids, track.Address().String())
		}
		return c.Cache.PutQuery(key, ids, fetchedAt, fetchedAt.Add(expire))
	}
}

// SubscribeAuthor opens a live feed of an author's new content. The caller
// owns the returned handle and must Close it.
func (c *Client) SubscribeAuthor(ctx context.Context, pubkey string) *Feed {
	since := nostr.Timestamp(c.now().Unix())
	sub := c.Pool.Subscribe(ctx, c.Resolver.RelaysFor(ctx, pubkey), nostr.Filters{{
		Kinds:   []int{types.KindProfile, types.KindTrack, types.KindPlaylist},
		Authors: []string{pubkey},
		Since:   &since,
	}})
	return newCacheFeed(c, sub)
}
