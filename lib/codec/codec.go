// Package codec turns raw signed events into typed entities.
//
// Parsing is tolerant by design: an event missing a required field is not an
// error, it is logged and dropped from the result set. Relays routinely hold
// malformed or half-migrated events and one bad record must never poison a
// whole query.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BuildAddress constructs the addressable identifier for a (kind, author,
// d-tag) triple.
func BuildAddress(kind int, pubkey string, dtag string) types.EntityAddress {
	return types.EntityAddress{Kind: kind, PubKey: pubkey, DTag: dtag}
}

// ParseAddress decodes a "kind:pubkey:d" pointer string. It is the exact
// inverse of EntityAddress.String.
func ParseAddress(s string) (types.EntityAddress, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return types.EntityAddress{}, fmt.Errorf("address %q: expected kind:pubkey:d", s)
	}

	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return types.EntityAddress{}, fmt.Errorf("address %q: bad kind: %w", s, err)
	}

	if parts[1] == "" {
		return types.EntityAddress{}, fmt.Errorf("address %q: empty pubkey", s)
	}

	return types.EntityAddress{Kind: kind, PubKey: parts[1], DTag: parts[2]}, nil
}

// The trailing empty element pins the exact tag name; GetFirst/GetAll
// prefix-match their last element, so a bare "d" would also hit
// "description" or "duration".
func firstTag(ev *nostr.Event, name string) string {
	if tag := ev.Tags.GetFirst([]string{name, ""}); tag != nil {
		return tag.Value()
	}
	return ""
}

func intTag(ev *nostr.Event, name string) int {
	v := firstTag(ev, name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// ParseTrack parses a track event. The d, title, artist and url tags are
// required; everything else is optional.
func ParseTrack(ev *nostr.Event) (*types.Track, error) {
	if ev.Kind != types.KindTrack {
		return nil, fmt.Errorf("event %s: kind %d is not a track", ev.ID, ev.Kind)
	}

	track := &types.Track{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		DTag:      firstTag(ev, "d"),
		Title:     firstTag(ev, "title"),
		Artist:    firstTag(ev, "artist"),
		URL:       firstTag(ev, "url"),
		CreatedAt: ev.CreatedAt,
	}

	if track.DTag == "" || track.Title == "" || track.Artist == "" || track.URL == "" {
		return nil, fmt.Errorf("event %s: track missing required tag", ev.ID)
	}

	track.Album = firstTag(ev, "album")
	track.Image = firstTag(ev, "image")
	track.Video = firstTag(ev, "video")
	track.Released = firstTag(ev, "released")
	track.Language = firstTag(ev, "language")
	track.Format = firstTag(ev, "format")
	track.Alt = firstTag(ev, "alt")
	track.TrackNumber = intTag(ev, "track_number")
	track.Duration = intTag(ev, "duration")
	track.Bitrate = intTag(ev, "bitrate")
	track.SampleRate = intTag(ev, "sample_rate")
	track.Explicit = firstTag(ev, "explicit") == "true"

	for _, tag := range ev.Tags.GetAll([]string{"t", ""}) {
		if tag.Value() != "" {
			track.Genres = append(track.Genres, tag.Value())
		}
	}

	for _, tag := range ev.Tags.GetAll([]string{"zap", ""}) {
		if len(tag) < 2 || tag[1] == "" {
			continue
		}
		split := types.ZapSplit{Address: tag[1], Weight: 1}
		if len(tag) > 2 {
			if w, err := strconv.Atoi(tag[len(tag)-1]); err == nil {
				split.Weight = w
			}
		}
		track.Splits = append(track.Splits, split)
	}

	return track, nil
}

// ParsePlaylist parses a playlist event. The d, title and alt tags are
// required. Malformed track pointers are dropped without failing the
// playlist.
func ParsePlaylist(ev *nostr.Event) (*types.Playlist, error) {
	if ev.Kind != types.KindPlaylist {
		return nil, fmt.Errorf("event %s: kind %d is not a playlist", ev.ID, ev.Kind)
	}

	playlist := &types.Playlist{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		DTag:      firstTag(ev, "d"),
		Title:     firstTag(ev, "title"),
		Alt:       firstTag(ev, "alt"),
		CreatedAt: ev.CreatedAt,
	}

	if playlist.DTag == "" || playlist.Title == "" || playlist.Alt == "" {
		return nil, fmt.Errorf("event %s: playlist missing required tag", ev.ID)
	}

	playlist.Description = firstTag(ev, "description")
	playlist.Image = firstTag(ev, "image")
	playlist.Public = firstTag(ev, "public") != "" || firstTag(ev, "private") == ""
	playlist.Collaborative = firstTag(ev, "collaborative") == "true"

	for _, tag := range ev.Tags.GetAll([]string{"t", ""}) {
		if tag.Value() != "" {
			playlist.Categories = append(playlist.Categories, tag.Value())
		}
	}

	for _, tag := range ev.Tags.GetAll([]string{"a", ""}) {
		addr, err := ParseAddress(tag.Value())
		if err != nil {
			logging.Debugf("Dropping malformed track pointer %q in playlist %s", tag.Value(), ev.ID)
			continue
		}
		playlist.Tracks = append(playlist.Tracks, addr)
	}

	return playlist, nil
}

// ParseProfile parses a kind 0 metadata event. The content is a JSON
// document; unknown fields are ignored.
func ParseProfile(ev *nostr.Event) (*types.Profile, error) {
	if ev.Kind != types.KindProfile {
		return nil, fmt.Errorf("event %s: kind %d is not a profile", ev.ID, ev.Kind)
	}

	var content struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		About       string `json:"about"`
		Picture     string `json:"picture"`
		NIP05       string `json:"nip05"`
	}
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		return nil, fmt.Errorf("event %s: bad profile content: %w", ev.ID, err)
	}

	return &types.Profile{
		PubKey:      ev.PubKey,
		Name:        content.Name,
		DisplayName: content.DisplayName,
		About:       content.About,
		Picture:     content.Picture,
		NIP05:       content.NIP05,
		CreatedAt:   ev.CreatedAt,
	}, nil
}

// ParseRelayList parses a kind 10002 relay list event. A marker of "read"
// or "write" restricts the relay; no marker means both.
func ParseRelayList(ev *nostr.Event) (*types.RelayList, error) {
	if ev.Kind != types.KindRelayList {
		return nil, fmt.Errorf("event %s: kind %d is not a relay list", ev.ID, ev.Kind)
	}

	list := &types.RelayList{PubKey: ev.PubKey, CreatedAt: ev.CreatedAt}
	for _, tag := range ev.Tags.GetAll([]string{"r", ""}) {
		url := tag.Value()
		if url == "" {
			continue
		}
		entry := types.RelayEntry{URL: url}
		if len(tag) > 2 {
			switch tag[2] {
			case "read":
				entry.Read = true
			case "write":
				entry.Write = true
			}
		}
		list.Relays = append(list.Relays, entry)
	}

	return list, nil
}

// ParseReaction parses a kind 7 reaction event. Only the e tag is required;
// the a tag, when present and well formed, carries the addressable reference.
func ParseReaction(ev *nostr.Event) (*types.Reaction, error) {
	if ev.Kind != types.KindReaction {
		return nil, fmt.Errorf("event %s: kind %d is not a reaction", ev.ID, ev.Kind)
	}

	reaction := &types.Reaction{
		ID:           ev.ID,
		PubKey:       ev.PubKey,
		Content:      ev.Content,
		TargetID:     firstTag(ev, "e"),
		TargetPubKey: firstTag(ev, "p"),
		TargetKind:   intTag(ev, "k"),
		CreatedAt:    ev.CreatedAt,
	}

	if reaction.TargetID == "" {
		return nil, fmt.Errorf("event %s: reaction missing target event id", ev.ID)
	}

	if a := firstTag(ev, "a"); a != "" {
		if addr, err := ParseAddress(a); err == nil {
			reaction.TargetAddress = &addr
		}
	}

	return reaction, nil
}

// ParseTracks parses a batch of events, dropping invalid ones, and resolves
// addressable identity: when two events share an address the one with the
// highest created_at wins.
func ParseTracks(events []*nostr.Event) []*types.Track {
	latest := make(map[types.EntityAddress]*types.Track)
	order := make([]types.EntityAddress, 0, len(events))

	for _, ev := range events {
		track, err := ParseTrack(ev)
		if err != nil {
			logging.Debugf("Skipping track event: %v", err)
			continue
		}

		addr := track.Address()
		existing, ok := latest[addr]
		if !ok {
			order = append(order, addr)
			latest[addr] = track
		} else if track.CreatedAt > existing.CreatedAt {
			latest[addr] = track
		}
	}

	tracks := make([]*types.Track, 0, len(order))
	for _, addr := range order {
		tracks = append(tracks, latest[addr])
	}
	return tracks
}

// ParsePlaylists parses a batch of playlist events with the same
// latest-wins resolution as ParseTracks.
func ParsePlaylists(events []*nostr.Event) []*types.Playlist {
	latest := make(map[types.EntityAddress]*types.Playlist)
	order := make([]types.EntityAddress, 0, len(events))

	for _, ev := range events {
		playlist, err := ParsePlaylist(ev)
		if err != nil {
			logging.Debugf("Skipping playlist event: %v", err)
			continue
		}

		addr := playlist.Address()
		existing, ok := latest[addr]
		if !ok {
			order = append(order, addr)
			latest[addr] = playlist
		} else if playlist.CreatedAt > existing.CreatedAt {
			latest[addr] = playlist
		}
	}

	playlists := make([]*types.Playlist, 0, len(order))
	for _, addr := range order {
		playlists = append(playlists, latest[addr])
	}
	return playlists
}

// LatestByAuthor picks the newest event per author from a merged result set.
// Used for replaceable author-keyed kinds (profiles, relay lists).
func LatestByAuthor(events []*nostr.Event) map[string]*nostr.Event {
	latest := make(map[string]*nostr.Event)
	for _, ev := range events {
		if existing, ok := latest[ev.PubKey]; !ok || ev.CreatedAt > existing.CreatedAt {
			latest[ev.PubKey] = ev
		}
	}
	return latest
}
