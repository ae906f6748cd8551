package relays

import (
	"errors"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id string) *nostr.Event {
	return &nostr.Event{ID: id}
}

func TestMergeByID(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]*nostr.Event
		want  []string
	}{
		{
			name:  "disjoint lists concatenate",
			lists: [][]*nostr.Event{{event("a")}, {event("b"), event("c")}},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "duplicates keep first occurrence",
			lists: [][]*nostr.Event{{event("a"), event("b")}, {event("b"), event("a"), event("c")}},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "empty and nil lists contribute nothing",
			lists: [][]*nostr.Event{nil, {}, {event("a"), nil}},
			want:  []string{"a"},
		},
		{
			name:  "no lists",
			lists: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergeByID(tt.lists...)
			ids := make([]string, 0, len(merged))
			for _, ev := range merged {
				ids = append(ids, ev.ID)
			}
			if tt.want == nil {
				assert.Empty(t, ids)
				return
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestAnySuccess(t *testing.T) {
	refused := errors.New("connection refused")

	tests := []struct {
		name    string
		results []PublishResult
		want    bool
	}{
		{
			name: "all succeed",
			results: []PublishResult{
				{Relay: "wss://a.example.com"},
				{Relay: "wss://b.example.com"},
			},
			want: true,
		},
		{
			name: "partial success counts",
			results: []PublishResult{
				{Relay: "wss://a.example.com", Err: refused},
				{Relay: "wss://b.example.com"},
			},
			want: true,
		},
		{
			name: "all fail",
			results: []PublishResult{
				{Relay: "wss://a.example.com", Err: refused},
				{Relay: "wss://b.example.com", Err: refused},
			},
			want: false,
		},
		{
			name:    "no relays is failure",
			results: nil,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnySuccess(tt.results))
		})
	}
}

func TestDedupeURLs(t *testing.T) {
	got := dedupeURLs([]string{
		"wss://relay.example.com",
		"wss://relay.example.com/",
		"relay.example.com",
		"wss://other.example.com",
		"",
	})
	assert.Equal(t, []string{"wss://relay.example.com", "wss://other.example.com"}, got)
}
