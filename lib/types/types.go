// Core entity types shared across the client
package types

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// EntityAddress identifies a replaceable entity by its (kind, author, d-tag)
// triple. It is a value type so it can be used directly as a map or store key
// instead of a formatted string.
type EntityAddress struct {
	Kind   int
	PubKey string
	DTag   string
}

// String renders the address in the canonical "kind:pubkey:d" pointer form.
func (a EntityAddress) String() string {
	return fmt.Sprintf("%d:%s:%s", a.Kind, a.PubKey, a.DTag)
}

// ZapSplit is a lightning payment split declared on a track.
type ZapSplit struct {
	Address string
	Weight  int
}

// Track is a parsed music track event.
type Track struct {
	ID     string
	PubKey string
	DTag   string

	Title  string
	Artist string
	URL    string

	Album       string
	Image       string
	Video       string
	Released    string
	Language    string
	Format      string
	Alt         string
	TrackNumber int
	Duration    int
	Bitrate     int
	SampleRate  int
	Explicit    bool
	Genres      []string
	Splits      []ZapSplit

	CreatedAt nostr.Timestamp
}

// Address returns the track's addressable identifier.
func (t *Track) Address() EntityAddress {
	return EntityAddress{Kind: t.Kind(), PubKey: t.PubKey, DTag: t.DTag}
}

func (t *Track) Kind() int { return KindTrack }

// Playlist is a parsed ordered track list.
type Playlist struct {
	ID     string
	PubKey string
	DTag   string

	Title         string
	Alt           string
	Description   string
	Image         string
	Public        bool
	Collaborative bool
	Categories    []string

	// Tracks holds ordered references to track entities. Pointers that
	// failed to parse are absent.
	Tracks []EntityAddress

	CreatedAt nostr.Timestamp
}

// Address returns the playlist's addressable identifier.
func (p *Playlist) Address() EntityAddress {
	return EntityAddress{Kind: KindPlaylist, PubKey: p.PubKey, DTag: p.DTag}
}

// Profile is parsed display metadata for an author.
type Profile struct {
	PubKey      string
	Name        string
	DisplayName string
	About       string
	Picture     string
	NIP05       string
	CreatedAt   nostr.Timestamp
}

// RelayEntry is one relay declared in an author's relay list, with
// optional read/write restriction. Both false means read+write.
type RelayEntry struct {
	URL   string
	Read  bool
	Write bool
}

// RelayList is an author's declared relay set (the outbox document).
type RelayList struct {
	PubKey    string
	Relays    []RelayEntry
	CreatedAt nostr.Timestamp
}

// ReadRelays returns the URLs the author reads from (their inbox).
func (rl *RelayList) ReadRelays() []string {
	urls := make([]string, 0, len(rl.Relays))
	for _, r := range rl.Relays {
		if r.Read || (!r.Read && !r.Write) {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// WriteRelays returns the URLs the author publishes to (their outbox).
func (rl *RelayList) WriteRelays() []string {
	urls := make([]string, 0, len(rl.Relays))
	for _, r := range rl.Relays {
		if r.Write || (!r.Read && !r.Write) {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// Reaction is a parsed social reaction event. Reactions are identified by
// event id, not by address, and are revoked by deletion events naming them.
type Reaction struct {
	ID      string
	PubKey  string
	Content string

	TargetID      string
	TargetPubKey  string
	TargetKind    int
	TargetAddress *EntityAddress

	CreatedAt nostr.Timestamp
}
