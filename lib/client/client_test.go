package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegraph-io/tunegraph/lib/relays"
	"github.com/tunegraph-io/tunegraph/lib/sessions"
	"github.com/tunegraph-io/tunegraph/lib/signing"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

const alicePubkey = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"

// testClient builds a client whose bootstrap relay is unroutable, so every
// network path fails fast and only the cache can answer.
func testClient(t *testing.T) *Client {
	t.Helper()

	dir := t.TempDir()
	cfg := &types.Config{
		Client: types.ClientConfig{DataPath: dir},
		Relays: types.RelaysConfig{
			Bootstrap:           []string{"ws://127.0.0.1:1"},
			QueryTimeoutSeconds: 1,
			GossipTTLSeconds:    60,
		},
		Cache: types.CacheConfig{
			Profile:  types.FreshnessPolicy{StaleSeconds: 3600, ExpireSeconds: 86400},
			Track:    types.FreshnessPolicy{StaleSeconds: 3600, ExpireSeconds: 86400},
			Playlist: types.FreshnessPolicy{StaleSeconds: 3600, ExpireSeconds: 86400},
			Query:    types.FreshnessPolicy{StaleSeconds: 3600, ExpireSeconds: 86400},
		},
		Pending: types.PendingConfig{MaxAgeDays: 7, MaxRetries: 10},
	}

	c, err := New(cfg, sessions.NewFileStore(filepath.Join(dir, "session.json")))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func cachedTrack(dtag, title string, createdAt nostr.Timestamp) *types.Track {
	return &types.Track{
		ID:        "id-" + dtag,
		PubKey:    alicePubkey,
		DTag:      dtag,
		Title:     title,
		Artist:    "Artist",
		URL:       "https://cdn.example.com/" + dtag + ".mp3",
		CreatedAt: createdAt,
	}
}

func TestTrackServedFromFreshCache(t *testing.T) {
	c := testClient(t)

	track := cachedTrack("song-1", "Song One", 100)
	require.NoError(t, c.Cache.UpsertTrack(track, c.now()))

	got, err := c.Track(context.Background(), track.Address())
	require.NoError(t, err)
	assert.Equal(t, "Song One", got.Title)
}

func TestTracksByArtistMaterializesNamedQuery(t *testing.T) {
	c := testClient(t)
	now := c.now()

	first := cachedTrack("song-1", "Song One", 100)
	second := cachedTrack("song-2", "Song Two", 200)
	require.NoError(t, c.Cache.UpsertTrack(first, now))
	require.NoError(t, c.Cache.UpsertTrack(second, now))
	require.NoError(t, c.Cache.PutQuery("tracks:author:"+alicePubkey,
		[]string{first.Address().String(), second.Address().String()},
		now, now.Add(time.Hour)))

	tracks, err := c.TracksByArtist(context.Background(), alicePubkey)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Song One", tracks[0].Title)
	assert.Equal(t, "Song Two", tracks[1].Title)
}

func TestTracksByArtistFallsBackOnMissingMember(t *testing.T) {
	c := testClient(t)
	now := c.now()

	// The query entry names a track the cache no longer holds, so the
	// whole entry degrades to a miss and the (unreachable) network answers
	// with nothing.
	require.NoError(t, c.Cache.PutQuery("tracks:author:"+alicePubkey,
		[]string{"31337:" + alicePubkey + ":vanished"},
		now, now.Add(time.Hour)))

	tracks, err := c.TracksByArtist(context.Background(), alicePubkey)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestTrackMissReturnsNotFound(t *testing.T) {
	c := testClient(t)

	addr := types.EntityAddress{Kind: types.KindTrack, PubKey: alicePubkey, DTag: "nope"}
	_, err := c.Track(context.Background(), addr)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLikeWithoutSession(t *testing.T) {
	c := testClient(t)

	addr := types.EntityAddress{Kind: types.KindTrack, PubKey: alicePubkey, DTag: "song-1"}
	err := c.Like(context.Background(), addr, "someevent")
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	c := testClient(t)
	track := cachedTrack("song-1", "Song One", 100)
	assert.Equal(t, "https://cdn.example.com/song-1.mp3", c.StreamURL(track))
}

func TestClearCache(t *testing.T) {
	c := testClient(t)

	require.NoError(t, c.Cache.UpsertTrack(cachedTrack("song-1", "Song One", 100), c.now()))

	stats, err := c.CacheStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tracks)

	require.NoError(t, c.ClearCache())

	stats, err = c.CacheStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Tracks)
}

func liveTrackEvent(dtag, title string, createdAt nostr.Timestamp) *nostr.Event {
	ev := &nostr.Event{
		PubKey:    alicePubkey,
		CreatedAt: createdAt,
		Kind:      types.KindTrack,
		Tags: nostr.Tags{
			{"d", dtag},
			{"title", title},
			{"artist", "Artist"},
			{"url", "https://cdn.example.com/" + dtag + ".mp3"},
		},
	}
	ev.ID = ev.GetID()
	return ev
}

func TestFeedDropsStaleVersions(t *testing.T) {
	c := testClient(t)

	// Relays replay history in arbitrary order; an older version of an
	// already-cached entity must neither overwrite the cache nor surface
	// as an update.
	_, ok := c.absorb(liveTrackEvent("song-1", "New Title", 200))
	require.True(t, ok)

	_, ok = c.absorb(liveTrackEvent("song-1", "Old Title", 150))
	assert.False(t, ok)

	addr := types.EntityAddress{Kind: types.KindTrack, PubKey: alicePubkey, DTag: "song-1"}
	cached, _, found := c.Cache.GetTrack(addr)
	require.True(t, found)
	assert.Equal(t, "New Title", cached.Title)
	assert.Equal(t, nostr.Timestamp(200), cached.CreatedAt)
}

func TestFeedCloseWithoutDraining(t *testing.T) {
	c := testClient(t)

	events := make(chan *nostr.Event, 1)
	events <- liveTrackEvent("song-1", "Song One", 100)
	sub := relays.NewSubscription(events, func() { close(events) })

	feed := newCacheFeed(c, sub)

	// Nobody reads Updates before Close; the forwarding goroutine must
	// still exit, observable as Updates closing.
	feed.Close()
	feed.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-feed.Updates:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("feed goroutine still running after Close")
		}
	}
}

func TestPublishTrackLeavesArgumentUntouched(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	signer, err := signing.GenerateLocalSigner()
	require.NoError(t, err)
	_, err = c.Sessions.Login(ctx, signing.MethodLocal, signer.SecretKey())
	require.NoError(t, err)
	sessionPubkey, err := signer.PublicKey(ctx)
	require.NoError(t, err)

	track := cachedTrack("song-1", "Song One", 100)

	published, err := c.PublishTrack(ctx, track)
	require.NoError(t, err)

	assert.Equal(t, sessionPubkey, published.PubKey)
	assert.Equal(t, alicePubkey, track.PubKey)
}

func TestPolicyConversion(t *testing.T) {
	stale, expire := policy(types.FreshnessPolicy{StaleSeconds: 900, ExpireSeconds: 86400})
	assert.Equal(t, 15*time.Minute, stale)
	assert.Equal(t, 24*time.Hour, expire)
}
