// Package reactions maintains the current user's liked-track state and
// publishes like/unlike events.
//
// Membership updates are optimistic: local state changes before any relay
// confirms, and a failed publish parks the signed event in the pending
// queue instead of failing the user action.
package reactions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/tunegraph-io/tunegraph/lib/codec"
	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/relays"
	"github.com/tunegraph-io/tunegraph/lib/signing"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// Relays is the slice of the relay pool this package needs.
type Relays interface {
	Query(ctx context.Context, urls []string, filter nostr.Filter) []*nostr.Event
	Publish(ctx context.Context, urls []string, ev nostr.Event) []relays.PublishResult
}

// Resolver picks relay sets per author (the gossip resolver).
type Resolver interface {
	RelaysFor(ctx context.Context, pubkey string) []string
	PublishRelaysFor(ctx context.Context, selfPubkey, targetPubkey string) []string
}

// Fallback receives signed events whose publish failed everywhere.
type Fallback interface {
	Add(ev nostr.Event, targetRelays []string) error
}

// Manager holds the in-session liked membership cache and builds reaction
// and deletion events.
type Manager struct {
	pool     Relays
	resolver Resolver
	fallback Fallback
	markers  map[string]struct{}
	marker   string
	now      func() time.Time

	// liked maps a target address to the id of our live reaction event.
	liked *xsync.MapOf[types.EntityAddress, string]

	mu            sync.Mutex
	sessionPubkey string
}

// NewManager creates a reaction manager. likeMarkers is the set of reaction
// contents counted as a like; the first entry is used for outbound likes.
func NewManager(pool Relays, resolver Resolver, fallback Fallback, likeMarkers []string) *Manager {
	if len(likeMarkers) == 0 {
		likeMarkers = []string{"+"}
	}

	markers := make(map[string]struct{}, len(likeMarkers))
	for _, m := range likeMarkers {
		markers[m] = struct{}{}
	}

	return &Manager{
		pool:     pool,
		resolver: resolver,
		fallback: fallback,
		markers:  markers,
		marker:   likeMarkers[0],
		now:      time.Now,
		liked:    xsync.NewMapOf[types.EntityAddress, string](),
	}
}

// IsLikeMarker reports whether a reaction content counts as a like. Any
// other content is ignored for like semantics.
func (m *Manager) IsLikeMarker(content string) bool {
	_, ok := m.markers[content]
	return ok
}

// Invalidate clears the membership cache, called on logout.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.sessionPubkey = ""
	m.mu.Unlock()
	m.liked.Clear()
}

// Preload fetches the user's reactions and populates the membership cache.
// Reactions already revoked by one of the user's deletion events do not
// count.
func (m *Manager) Preload(ctx context.Context, pubkey string) error {
	urls := m.resolver.RelaysFor(ctx, pubkey)

	reactionEvents := m.pool.Query(ctx, urls, nostr.Filter{
		Kinds:   []int{types.KindReaction},
		Authors: []string{pubkey},
	})
	deletionEvents := m.pool.Query(ctx, urls, nostr.Filter{
		Kinds:   []int{types.KindDeletion},
		Authors: []string{pubkey},
	})

	revoked := make(map[string]struct{})
	for _, ev := range deletionEvents {
		for _, tag := range ev.Tags.GetAll([]string{"e", ""}) {
			if tag.Value() != "" {
				revoked[tag.Value()] = struct{}{}
			}
		}
	}

	m.mu.Lock()
	m.sessionPubkey = pubkey
	m.mu.Unlock()
	m.liked.Clear()

	count := 0
	for _, ev := range reactionEvents {
		reaction, err := codec.ParseReaction(ev)
		if err != nil {
			logging.Debugf("Skipping reaction event: %v", err)
			continue
		}
		if !m.IsLikeMarker(reaction.Content) || reaction.TargetAddress == nil {
			continue
		}
		if _, gone := revoked[reaction.ID]; gone {
			continue
		}
		m.liked.Store(*reaction.TargetAddress, reaction.ID)
		count++
	}

	logging.Infof("Preloaded %d liked entries for %s", count, pubkey)
	return nil
}

// ensureLoaded preloads the membership cache when it belongs to a
// different user or was never loaded.
func (m *Manager) ensureLoaded(ctx context.Context, pubkey string) error {
	m.mu.Lock()
	loaded := m.sessionPubkey == pubkey
	m.mu.Unlock()

	if loaded {
		return nil
	}
	return m.Preload(ctx, pubkey)
}

// IsLiked reports whether the user has a live like on the target. A cache
// miss for this user triggers a full fetch before answering.
func (m *Manager) IsLiked(ctx context.Context, signer signing.Signer, addr types.EntityAddress) (bool, error) {
	if signer == nil {
		return false, signing.ErrNoSigner
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return false, err
	}

	if err := m.ensureLoaded(ctx, pubkey); err != nil {
		return false, err
	}

	_, liked := m.liked.Load(addr)
	return liked, nil
}

// Like publishes a reaction to the target. The membership cache updates
// before confirmation, and a publish failing on every relay queues the
// signed event instead of failing the action.
func (m *Manager) Like(ctx context.Context, signer signing.Signer, addr types.EntityAddress, targetEventID string) error {
	if signer == nil {
		return signing.ErrNoSigner
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return err
	}
	if err := m.ensureLoaded(ctx, pubkey); err != nil {
		return err
	}

	ev := codec.ReactionEvent(targetEventID, addr, m.marker, nostr.Timestamp(m.now().Unix()))
	if err := signer.SignEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to sign reaction: %w", err)
	}

	// Optimistic: liked from the user's point of view as of now.
	m.liked.Store(addr, ev.ID)

	m.publishOrQueue(ctx, *ev, pubkey, addr.PubKey)
	return nil
}

// Unlike revokes the user's prior reaction on the target. With no prior
// reaction it is a no-op.
func (m *Manager) Unlike(ctx context.Context, signer signing.Signer, addr types.EntityAddress) error {
	if signer == nil {
		return signing.ErrNoSigner
	}
	pubkey, err := signer.PublicKey(ctx)
	if err != nil {
		return err
	}
	if err := m.ensureLoaded(ctx, pubkey); err != nil {
		return err
	}

	reactionID, ok := m.liked.Load(addr)
	if !ok {
		// Not in session state; the relays may still know a reaction
		// published from another device.
		reactionID = m.findReaction(ctx, pubkey, addr)
		if reactionID == "" {
			return nil
		}
	}

	ev := codec.DeletionEvent(reactionID, types.KindReaction, nostr.Timestamp(m.now().Unix()))
	if err := signer.SignEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to sign deletion: %w", err)
	}

	m.liked.Delete(addr)

	m.publishOrQueue(ctx, *ev, pubkey, addr.PubKey)
	return nil
}

// findReaction locates the user's live reaction naming the target via its
// addressable reference.
func (m *Manager) findReaction(ctx context.Context, pubkey string, addr types.EntityAddress) string {
	events := m.pool.Query(ctx, m.resolver.RelaysFor(ctx, pubkey), nostr.Filter{
		Kinds:   []int{types.KindReaction},
		Authors: []string{pubkey},
		Tags:    nostr.TagMap{"a": []string{addr.String()}},
	})

	var best *types.Reaction
	for _, ev := range events {
		reaction, err := codec.ParseReaction(ev)
		if err != nil || !m.IsLikeMarker(reaction.Content) {
			continue
		}
		if best == nil || reaction.CreatedAt > best.CreatedAt {
			best = reaction
		}
	}

	if best == nil {
		return ""
	}
	return best.ID
}

// publishOrQueue sends the event to the gossip-derived union and falls back
// to the pending queue when no relay accepts it.
func (m *Manager) publishOrQueue(ctx context.Context, ev nostr.Event, selfPubkey, targetPubkey string) {
	targets := m.resolver.PublishRelaysFor(ctx, selfPubkey, targetPubkey)

	if relays.AnySuccess(m.pool.Publish(ctx, targets, ev)) {
		return
	}

	logging.Warnf("No relay accepted event %s, queueing for retry", ev.ID)
	if err := m.fallback.Add(ev, targets); err != nil {
		logging.Errorf("Failed to queue event %s: %v", ev.ID, err)
	}
}
