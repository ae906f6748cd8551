// Package gossip resolves where an author's content lives (the outbox
// model): an author's self-declared relay list is fetched from the
// bootstrap set and unioned with it before any content query.
package gossip

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/codec"
	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

// Querier is the slice of the relay pool the resolver needs.
type Querier interface {
	Query(ctx context.Context, urls []string, filter nostr.Filter) []*nostr.Event
}

// Resolver discovers per-author relay sets. Resolved lists are memoized
// for a short TTL; the memo is best-effort only and never a source of
// truth, so losing it just costs one extra bootstrap round-trip.
type Resolver struct {
	pool      Querier
	bootstrap []string
	memo      *ttlcache.Cache[string, *types.RelayList]
}

// NewResolver creates a resolver over the given bootstrap relay set.
func NewResolver(pool Querier, bootstrap []string, memoTTL time.Duration) *Resolver {
	if memoTTL <= 0 {
		memoTTL = 10 * time.Minute
	}
	memo := ttlcache.New(
		ttlcache.WithTTL[string, *types.RelayList](memoTTL),
		ttlcache.WithDisableTouchOnHit[string, *types.RelayList](),
	)
	go memo.Start()

	return &Resolver{pool: pool, bootstrap: bootstrap, memo: memo}
}

// Bootstrap returns the configured bootstrap relay set.
func (r *Resolver) Bootstrap() []string {
	return append([]string{}, r.bootstrap...)
}

// relayList fetches (or recalls) an author's declared relay list. A missing
// list is normal for authors that never published one and is returned as
// nil without error.
func (r *Resolver) relayList(ctx context.Context, pubkey string) *types.RelayList {
	if item := r.memo.Get(pubkey); item != nil {
		return item.Value()
	}

	events := r.pool.Query(ctx, r.bootstrap, nostr.Filter{
		Kinds:   []int{types.KindRelayList},
		Authors: []string{pubkey},
		Limit:   1,
	})
	ev, ok := codec.LatestByAuthor(events)[pubkey]
	if !ok {
		return nil
	}

	list, err := codec.ParseRelayList(ev)
	if err != nil {
		logging.Debugf("Skipping relay list for %s: %v", pubkey, err)
		return nil
	}

	r.memo.Set(pubkey, list, ttlcache.DefaultTTL)
	return list
}

// RelaysFor returns the relay set to query for an author's content: the
// deduplicated union of the bootstrap set and the author's declared write
// relays.
func (r *Resolver) RelaysFor(ctx context.Context, pubkey string) []string {
	var declared []string
	if list := r.relayList(ctx, pubkey); list != nil {
		declared = list.WriteRelays()
	}
	return Union(r.bootstrap, declared)
}

// OwnWriteRelays returns where the given user publishes their own events,
// falling back to the bootstrap set when no relay list is declared.
func (r *Resolver) OwnWriteRelays(ctx context.Context, pubkey string) []string {
	if list := r.relayList(ctx, pubkey); list != nil {
		if writes := list.WriteRelays(); len(writes) > 0 {
			return Union(writes, nil)
		}
	}
	return Union(r.bootstrap, nil)
}

// PublishRelaysFor returns where an outbound social action about another
// author's content should go: the union of the acting user's write relays
// and the target author's declared read relays, so the action lands in both
// the actor's store and the target's inbox.
func (r *Resolver) PublishRelaysFor(ctx context.Context, selfPubkey, targetPubkey string) []string {
	selfWrites := r.OwnWriteRelays(ctx, selfPubkey)

	var targetReads []string
	if list := r.relayList(ctx, targetPubkey); list != nil {
		targetReads = list.ReadRelays()
	}

	return Union(selfWrites, targetReads)
}

// Forget drops the memoized relay list for an author.
func (r *Resolver) Forget(pubkey string) {
	r.memo.Delete(pubkey)
}

// Stop terminates the memo's expiry loop.
func (r *Resolver) Stop() {
	r.memo.Stop()
}

// Union merges relay URL slices preserving first-seen order and dropping
// duplicates after URL normalization.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, url := range list {
			normalized := nostr.NormalizeURL(url)
			if normalized == "" {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			out = append(out, normalized)
		}
	}
	return out
}
