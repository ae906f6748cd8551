package gossip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegraph-io/tunegraph/lib/types"
)

const (
	alicePubkey = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	bobPubkey   = "82341f882b6eabcd2ba7f1ef90aad961cf074af15b9ef44a09f9d2a8fbfbe6a2"
)

// fakeQuerier serves canned relay-list events per author and counts queries.
type fakeQuerier struct {
	mu      sync.Mutex
	lists   map[string]*nostr.Event
	queries int
}

func (q *fakeQuerier) Query(_ context.Context, _ []string, filter nostr.Filter) []*nostr.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries++

	var out []*nostr.Event
	for _, author := range filter.Authors {
		if ev, ok := q.lists[author]; ok {
			out = append(out, ev)
		}
	}
	return out
}

func (q *fakeQuerier) queryCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queries
}

func relayListEvent(pubkey string, tags nostr.Tags) *nostr.Event {
	ev := &nostr.Event{
		PubKey:    pubkey,
		CreatedAt: 1000,
		Kind:      types.KindRelayList,
		Tags:      tags,
	}
	ev.ID = ev.GetID()
	return ev
}

var bootstrap = []string{"wss://boot-a.example.com", "wss://boot-b.example.com"}

func TestRelaysForUnionsBootstrapAndDeclaredWrites(t *testing.T) {
	querier := &fakeQuerier{lists: map[string]*nostr.Event{
		alicePubkey: relayListEvent(alicePubkey, nostr.Tags{
			{"r", "wss://alice-write.example.com", "write"},
			{"r", "wss://alice-read.example.com", "read"},
			{"r", "wss://alice-both.example.com"},
		}),
	}}

	r := NewResolver(querier, bootstrap, time.Minute)
	defer r.Stop()

	got := r.RelaysFor(context.Background(), alicePubkey)
	assert.ElementsMatch(t, []string{
		"wss://boot-a.example.com",
		"wss://boot-b.example.com",
		"wss://alice-write.example.com",
		"wss://alice-both.example.com",
	}, got, "read-only relays must not be queried for the author's content")
}

func TestRelaysForWithoutDeclaredListFallsBackToBootstrap(t *testing.T) {
	querier := &fakeQuerier{lists: map[string]*nostr.Event{}}

	r := NewResolver(querier, bootstrap, time.Minute)
	defer r.Stop()

	got := r.RelaysFor(context.Background(), bobPubkey)
	assert.Equal(t, []string{"wss://boot-a.example.com", "wss://boot-b.example.com"}, got)
}

func TestRelayListIsMemoized(t *testing.T) {
	querier := &fakeQuerier{lists: map[string]*nostr.Event{
		alicePubkey: relayListEvent(alicePubkey, nostr.Tags{
			{"r", "wss://alice.example.com"},
		}),
	}}

	r := NewResolver(querier, bootstrap, time.Minute)
	defer r.Stop()

	first := r.RelaysFor(context.Background(), alicePubkey)
	second := r.RelaysFor(context.Background(), alicePubkey)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, querier.queryCount(), "second resolution must hit the memo")

	r.Forget(alicePubkey)
	r.RelaysFor(context.Background(), alicePubkey)
	assert.Equal(t, 2, querier.queryCount(), "Forget must force a refetch")
}

func TestOwnWriteRelays(t *testing.T) {
	querier := &fakeQuerier{lists: map[string]*nostr.Event{
		alicePubkey: relayListEvent(alicePubkey, nostr.Tags{
			{"r", "wss://alice-write.example.com", "write"},
			{"r", "wss://alice-read.example.com", "read"},
		}),
	}}

	r := NewResolver(querier, bootstrap, time.Minute)
	defer r.Stop()

	assert.Equal(t, []string{"wss://alice-write.example.com"},
		r.OwnWriteRelays(context.Background(), alicePubkey))

	// No declared list: publish to the bootstrap set.
	assert.Equal(t, []string{"wss://boot-a.example.com", "wss://boot-b.example.com"},
		r.OwnWriteRelays(context.Background(), bobPubkey))
}

func TestPublishRelaysForUnionsSelfWritesAndTargetReads(t *testing.T) {
	querier := &fakeQuerier{lists: map[string]*nostr.Event{
		alicePubkey: relayListEvent(alicePubkey, nostr.Tags{
			{"r", "wss://alice-write.example.com", "write"},
		}),
		bobPubkey: relayListEvent(bobPubkey, nostr.Tags{
			{"r", "wss://bob-inbox.example.com", "read"},
			{"r", "wss://bob-outbox.example.com", "write"},
		}),
	}}

	r := NewResolver(querier, bootstrap, time.Minute)
	defer r.Stop()

	got := r.PublishRelaysFor(context.Background(), alicePubkey, bobPubkey)
	assert.ElementsMatch(t, []string{
		"wss://alice-write.example.com",
		"wss://bob-inbox.example.com",
	}, got)
}

func TestUnion(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		want  []string
	}{
		{
			name:  "duplicates collapse after normalization",
			lists: [][]string{{"wss://relay.example.com/", "wss://relay.example.com"}},
			want:  []string{"wss://relay.example.com"},
		},
		{
			name:  "first seen order preserved",
			lists: [][]string{{"wss://b.example.com"}, {"wss://a.example.com", "wss://b.example.com"}},
			want:  []string{"wss://b.example.com", "wss://a.example.com"},
		},
		{
			name:  "nil lists ignored",
			lists: [][]string{nil, {"wss://a.example.com"}, nil},
			want:  []string{"wss://a.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Union(tt.lists...))
		})
	}
}
