package reactions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegraph-io/tunegraph/lib/relays"
	"github.com/tunegraph-io/tunegraph/lib/signing"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// fakePool is an in-memory relay set: queries run against stored events,
// publishes append (or fail when rejecting).
type fakePool struct {
	mu        sync.Mutex
	events    []*nostr.Event
	rejecting bool
	published []nostr.Event
}

func (p *fakePool) Query(_ context.Context, _ []string, filter nostr.Filter) []*nostr.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*nostr.Event
	for _, ev := range p.events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (p *fakePool) Publish(_ context.Context, urls []string, ev nostr.Event) []relays.PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]relays.PublishResult, 0, len(urls))
	for _, url := range urls {
		result := relays.PublishResult{Relay: url}
		if p.rejecting {
			result.Err = errors.New("blocked")
		} else {
			copied := ev
			p.events = append(p.events, &copied)
			p.published = append(p.published, ev)
		}
		results = append(results, result)
	}
	return results
}

func (p *fakePool) publishedEvents() []nostr.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]nostr.Event{}, p.published...)
}

type fakeResolver struct{}

func (fakeResolver) RelaysFor(_ context.Context, _ string) []string {
	return []string{"wss://relay.example.com"}
}

func (fakeResolver) PublishRelaysFor(_ context.Context, _, _ string) []string {
	return []string{"wss://relay.example.com"}
}

type fakeFallback struct {
	mu     sync.Mutex
	queued []nostr.Event
}

func (f *fakeFallback) Add(ev nostr.Event, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, ev)
	return nil
}

func (f *fakeFallback) queuedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued)
}

func testSigner(t *testing.T) (signing.Signer, string) {
	t.Helper()
	signer, err := signing.GenerateLocalSigner()
	require.NoError(t, err)
	pubkey, err := signer.PublicKey(context.Background())
	require.NoError(t, err)
	return signer, pubkey
}

func trackAddr(dtag string) types.EntityAddress {
	return types.EntityAddress{
		Kind:   types.KindTrack,
		PubKey: "82341f882b6eabcd2ba7f1ef90aad961cf074af15b9ef44a09f9d2a8fbfbe6a2",
		DTag:   dtag,
	}
}

func newTestManager(pool *fakePool, fallback *fakeFallback) *Manager {
	return NewManager(pool, fakeResolver{}, fallback, []string{"+", "❤️"})
}

func TestIsLikedRequiresSigner(t *testing.T) {
	m := newTestManager(&fakePool{}, &fakeFallback{})

	_, err := m.IsLiked(context.Background(), nil, trackAddr("song-1"))
	assert.ErrorIs(t, err, signing.ErrNoSigner)
}

func TestLikeThenIsLiked(t *testing.T) {
	pool := &fakePool{}
	m := newTestManager(pool, &fakeFallback{})
	signer, _ := testSigner(t)

	addr := trackAddr("song-1")
	require.NoError(t, m.Like(context.Background(), signer, addr, "targetevent01"))

	liked, err := m.IsLiked(context.Background(), signer, addr)
	require.NoError(t, err)
	assert.True(t, liked)

	published := pool.publishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, types.KindReaction, published[0].Kind)
	assert.Equal(t, "+", published[0].Content)
	require.True(t, len(published[0].Sig) > 0)
}

func TestUnlikePublishesDeletion(t *testing.T) {
	pool := &fakePool{}
	m := newTestManager(pool, &fakeFallback{})
	signer, _ := testSigner(t)

	addr := trackAddr("song-1")
	require.NoError(t, m.Like(context.Background(), signer, addr, "targetevent01"))
	reactionID := pool.publishedEvents()[0].ID

	require.NoError(t, m.Unlike(context.Background(), signer, addr))

	liked, err := m.IsLiked(context.Background(), signer, addr)
	require.NoError(t, err)
	assert.False(t, liked)

	published := pool.publishedEvents()
	require.Len(t, published, 2)
	deletion := published[1]
	assert.Equal(t, types.KindDeletion, deletion.Kind)
	tag := deletion.Tags.GetFirst([]string{"e"})
	require.NotNil(t, tag)
	assert.Equal(t, reactionID, tag.Value())
}

func TestUnlikeWithoutPriorLikeIsNoOp(t *testing.T) {
	pool := &fakePool{}
	m := newTestManager(pool, &fakeFallback{})
	signer, _ := testSigner(t)

	require.NoError(t, m.Unlike(context.Background(), signer, trackAddr("never-liked")))
	assert.Empty(t, pool.publishedEvents(), "no deletion may be published without a prior reaction")
}

func TestLikeQueuesOnTotalPublishFailure(t *testing.T) {
	pool := &fakePool{rejecting: true}
	fallback := &fakeFallback{}
	m := newTestManager(pool, fallback)
	signer, _ := testSigner(t)

	addr := trackAddr("song-1")
	require.NoError(t, m.Like(context.Background(), signer, addr, "targetevent01"))

	assert.Equal(t, 1, fallback.queuedCount())

	// Optimistic: the user sees the like even though no relay took it.
	liked, err := m.IsLiked(context.Background(), signer, addr)
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestPreloadIgnoresRevokedReactions(t *testing.T) {
	signer, pubkey := testSigner(t)
	local := signer.(*signing.LocalSigner)

	ctx := context.Background()
	likedAddr := trackAddr("kept-song")
	revokedAddr := trackAddr("revoked-song")

	kept := &nostr.Event{Kind: types.KindReaction, Content: "+", CreatedAt: 100, Tags: nostr.Tags{
		{"e", "aaa111"},
		{"a", likedAddr.String()},
	}}
	require.NoError(t, kept.Sign(local.SecretKey()))

	revoked := &nostr.Event{Kind: types.KindReaction, Content: "+", CreatedAt: 101, Tags: nostr.Tags{
		{"e", "bbb222"},
		{"a", revokedAddr.String()},
	}}
	require.NoError(t, revoked.Sign(local.SecretKey()))

	deletion := &nostr.Event{Kind: types.KindDeletion, CreatedAt: 102, Tags: nostr.Tags{
		{"e", revoked.ID},
		{"k", "7"},
	}}
	require.NoError(t, deletion.Sign(local.SecretKey()))

	// A thumbs-down is not a like.
	disliked := &nostr.Event{Kind: types.KindReaction, Content: "-", CreatedAt: 103, Tags: nostr.Tags{
		{"e", "ccc333"},
		{"a", trackAddr("disliked-song").String()},
	}}
	require.NoError(t, disliked.Sign(local.SecretKey()))

	pool := &fakePool{events: []*nostr.Event{kept, revoked, deletion, disliked}}
	m := newTestManager(pool, &fakeFallback{})

	require.NoError(t, m.Preload(ctx, pubkey))

	liked, err := m.IsLiked(ctx, signer, likedAddr)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = m.IsLiked(ctx, signer, revokedAddr)
	require.NoError(t, err)
	assert.False(t, liked)

	liked, err = m.IsLiked(ctx, signer, trackAddr("disliked-song"))
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestInvalidateClearsMembership(t *testing.T) {
	pool := &fakePool{}
	m := newTestManager(pool, &fakeFallback{})
	signer, _ := testSigner(t)

	addr := trackAddr("song-1")
	require.NoError(t, m.Like(context.Background(), signer, addr, "targetevent01"))

	m.Invalidate()

	// After invalidation the next check reloads from the relays, where the
	// reaction still exists, so the like survives a re-login of the same user.
	liked, err := m.IsLiked(context.Background(), signer, addr)
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestUnlikeLeavesOtherUsersLikesIntact(t *testing.T) {
	signer, _ := testSigner(t)

	otherSigner, err := signing.GenerateLocalSigner()
	require.NoError(t, err)

	addr := trackAddr("song-1")
	otherLike := &nostr.Event{Kind: types.KindReaction, Content: "+", CreatedAt: 50, Tags: nostr.Tags{
		{"e", "aaa111"},
		{"a", addr.String()},
	}}
	require.NoError(t, otherLike.Sign(otherSigner.SecretKey()))

	pool := &fakePool{events: []*nostr.Event{otherLike}}
	m := newTestManager(pool, &fakeFallback{})

	require.NoError(t, m.Like(context.Background(), signer, addr, "targetevent01"))
	ownReactionID := pool.publishedEvents()[0].ID

	require.NoError(t, m.Unlike(context.Background(), signer, addr))

	published := pool.publishedEvents()
	require.Len(t, published, 2)
	deletion := published[1]
	tag := deletion.Tags.GetFirst([]string{"e"})
	require.NotNil(t, tag)
	assert.Equal(t, ownReactionID, tag.Value(), "deletion must name only the user's own reaction")
	assert.NotEqual(t, otherLike.ID, tag.Value())
}

func TestUnlikeFindsReactionFromAnotherDevice(t *testing.T) {
	signer, pubkey := testSigner(t)
	local := signer.(*signing.LocalSigner)

	addr := trackAddr("song-1")
	remote := &nostr.Event{Kind: types.KindReaction, Content: "+", CreatedAt: 100, Tags: nostr.Tags{
		{"e", "aaa111"},
		{"a", addr.String()},
	}}
	require.NoError(t, remote.Sign(local.SecretKey()))

	pool := &fakePool{events: []*nostr.Event{remote}}
	m := newTestManager(pool, &fakeFallback{})

	// Preload sees the remote like; drop it from local state to simulate a
	// fresh session that never loaded it.
	require.NoError(t, m.Preload(context.Background(), pubkey))
	m.liked.Delete(addr)

	require.NoError(t, m.Unlike(context.Background(), signer, addr))

	published := pool.publishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, types.KindDeletion, published[0].Kind)
	tag := published[0].Tags.GetFirst([]string{"e"})
	require.NotNil(t, tag)
	assert.Equal(t, remote.ID, tag.Value())
}
