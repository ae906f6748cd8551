package client

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/codec"
	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/relays"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// Update is one live change observed on a subscribed author. Exactly one
// field is non-nil.
type Update struct {
	Profile  *types.Profile
	Track    *types.Track
	Playlist *types.Playlist
}

// Feed is a live change feed for one author. Incoming events are written
// through to the cache before delivery, so a consumer that only cares
// about cache coherence can drain Updates and discard the values.
type Feed struct {
	Updates <-chan Update

	sub  *relays.Subscription
	done chan struct{}
	once sync.Once
}

// Close terminates the feed. Safe to call more than once, and safe to call
// without draining Updates first.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.sub.Close()
		close(f.done)
	})
}

func newCacheFeed(c *Client, sub *relays.Subscription) *Feed {
	updates := make(chan Update)
	done := make(chan struct{})

	go func() {
		defer close(updates)
		for ev := range sub.Events {
			update, ok := c.absorb(ev)
			if !ok {
				continue
			}
			select {
			case updates <- update:
			case <-done:
				return
			}
		}
	}()

	return &Feed{Updates: updates, sub: sub, done: done}
}

// absorb parses a live event, writes it through to the cache and shapes
// the update. Events that fail to parse, or that are older than the cached
// version of the same entity, are dropped: an addressable identifier must
// keep resolving to the highest created_at observed even when relays
// replay history out of order.
func (c *Client) absorb(ev *nostr.Event) (Update, bool) {
	now := c.now()

	switch ev.Kind {
	case types.KindProfile:
		profile, err := codec.ParseProfile(ev)
		if err != nil {
			logging.Debugf("Skipping live profile event %s: %v", ev.ID, err)
			return Update{}, false
		}
		if cached, _, ok := c.Cache.GetProfile(profile.PubKey); ok && cached.CreatedAt >= profile.CreatedAt {
			return Update{}, false
		}
		if err := c.Cache.UpsertProfile(profile, now); err != nil {
			logging.Warnf("Failed to cache live profile %s: %v", profile.PubKey, err)
		}
		return Update{Profile: profile}, true

	case types.KindTrack:
		track, err := codec.ParseTrack(ev)
		if err != nil {
			logging.Debugf("Skipping live track event %s: %v", ev.ID, err)
			return Update{}, false
		}
		if cached, _, ok := c.Cache.GetTrack(track.Address()); ok && cached.CreatedAt >= track.CreatedAt {
			return Update{}, false
		}
		if err := c.Cache.UpsertTrack(track, now); err != nil {
			logging.Warnf("Failed to cache live track %s: %v", track.Address(), err)
		}
		return Update{Track: track}, true

	case types.KindPlaylist:
		playlist, err := codec.ParsePlaylist(ev)
		if err != nil {
			logging.Debugf("Skipping live playlist event %s: %v", ev.ID, err)
			return Update{}, false
		}
		if cached, _, ok := c.Cache.GetPlaylist(playlist.Address()); ok && cached.CreatedAt >= playlist.CreatedAt {
			return Update{}, false
		}
		if err := c.Cache.UpsertPlaylist(playlist, now); err != nil {
			logging.Warnf("Failed to cache live playlist %s: %v", playlist.Address(), err)
		}
		return Update{Playlist: playlist}, true
	}

	return Update{}, false
}
