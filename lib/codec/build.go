package codec

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/types"
)

// TrackEvent builds an unsigned event template for a track. The caller signs
// it through the session's signer before publishing.
func TrackEvent(track *types.Track, now nostr.Timestamp) *nostr.Event {
	tags := nostr.Tags{
		{"d", track.DTag},
		{"title", track.Title},
		{"artist", track.Artist},
		{"url", track.URL},
	}

	appendIf := func(name, value string) {
		if value != "" {
			tags = append(tags, nostr.Tag{name, value})
		}
	}
	appendIf("album", track.Album)
	appendIf("image", track.Image)
	appendIf("video", track.Video)
	appendIf("released", track.Released)
	appendIf("language", track.Language)
	appendIf("format", track.Format)
	appendIf("alt", track.Alt)
	if track.TrackNumber > 0 {
		tags = append(tags, nostr.Tag{"track_number", strconv.Itoa(track.TrackNumber)})
	}
	if track.Duration > 0 {
		tags = append(tags, nostr.Tag{"duration", strconv.Itoa(track.Duration)})
	}
	if track.Bitrate > 0 {
		tags = append(tags, nostr.Tag{"bitrate", strconv.Itoa(track.Bitrate)})
	}
	if track.SampleRate > 0 {
		tags = append(tags, nostr.Tag{"sample_rate", strconv.Itoa(track.SampleRate)})
	}
	if track.Explicit {
		tags = append(tags, nostr.Tag{"explicit", "true"})
	}
	for _, genre := range track.Genres {
		tags = append(tags, nostr.Tag{"t", genre})
	}
	for _, split := range track.Splits {
		tags = append(tags, nostr.Tag{"zap", split.Address, "", strconv.Itoa(split.Weight)})
	}

	return &nostr.Event{
		Kind:      types.KindTrack,
		CreatedAt: now,
		Tags:      tags,
	}
}

// PlaylistEvent builds an unsigned event template for a playlist, preserving
// track order in the a tags.
func PlaylistEvent(playlist *types.Playlist, now nostr.Timestamp) *nostr.Event {
	alt := playlist.Alt
	if alt == "" {
		alt = "Music playlist: " + playlist.Title
	}

	tags := nostr.Tags{
		{"d", playlist.DTag},
		{"title", playlist.Title},
		{"alt", alt},
	}

	if playlist.Description != "" {
		tags = append(tags, nostr.Tag{"description", playlist.Description})
	}
	if playlist.Image != "" {
		tags = append(tags, nostr.Tag{"image", playlist.Image})
	}
	if playlist.Public {
		tags = append(tags, nostr.Tag{"public", "true"})
	} else {
		tags = append(tags, nostr.Tag{"private", "true"})
	}
	if playlist.Collaborative {
		tags = append(tags, nostr.Tag{"collaborative", "true"})
	}
	for _, category := range playlist.Categories {
		tags = append(tags, nostr.Tag{"t", category})
	}
	for _, track := range playlist.Tracks {
		tags = append(tags, nostr.Tag{"a", track.String()})
	}

	return &nostr.Event{
		Kind:      types.KindPlaylist,
		CreatedAt: now,
		Tags:      tags,
	}
}

// ReactionEvent builds an unsigned like template pointing at a target event
// both by id and by addressable reference.
func ReactionEvent(targetID string, addr types.EntityAddress, content string, now nostr.Timestamp) *nostr.Event {
	return &nostr.Event{
		Kind:      types.KindReaction,
		CreatedAt: now,
		Content:   content,
		Tags: nostr.Tags{
			{"e", targetID},
			{"a", addr.String()},
			{"p", addr.PubKey},
			{"k", strconv.Itoa(addr.Kind)},
		},
	}
}

// DeletionEvent builds an unsigned deletion template naming a previously
// published event.
func DeletionEvent(eventID string, kind int, now nostr.Timestamp) *nostr.Event {
	return &nostr.Event{
		Kind:      types.KindDeletion,
		CreatedAt: now,
		Tags: nostr.Tags{
			{"e", eventID},
			{"k", strconv.Itoa(kind)},
		},
	}
}
