// Package cache is the durable local projection of entities observed on
// the network. It is a performance layer, never a source of truth: every
// record is re-derivable by refetching, reads never block on the network,
// and a read error is reported as a miss.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/types"
)

func cborEncode(value interface{}) ([]byte, error) {
	return cbor.Marshal(value)
}

func cborDecode(data []byte, value interface{}) error {
	return cbor.Unmarshal(data, value)
}

// CachedProfile is a profile plus the time we fetched it. FetchedAt is
// ours; the entity's CreatedAt belongs to the protocol.
type CachedProfile struct {
	Profile   types.Profile
	FetchedAt int64
}

// CachedTrack is a track plus fetch metadata. PubKey and CreatedAt are
// mirrored at the top level for indexed queries.
type CachedTrack struct {
	Track     types.Track
	PubKey    string `badgerhold:"index"`
	CreatedAt int64
	FetchedAt int64
}

// CachedPlaylist is a playlist plus fetch metadata.
type CachedPlaylist struct {
	Playlist  types.Playlist
	PubKey    string `badgerhold:"index"`
	CreatedAt int64
	FetchedAt int64
}

// CachedQuery is a named-query result set: the ordered member ids plus an
// explicit expiry.
type CachedQuery struct {
	QueryKey  string
	ResultIDs []string
	FetchedAt int64
	ExpiresAt int64
}

// Stats reports per-entity-type record counts.
type Stats struct {
	Profiles  int
	Tracks    int
	Playlists int
	Queries   int
}

// Store is the badgerhold-backed cache.
type Store struct {
	DatabasePath string
	Database     *badgerhold.Store
}

// InitStore opens (or creates) the cache database at basepath.
func InitStore(basepath string) (*Store, error) {
	options := badgerhold.DefaultOptions
	options.Encoder = cborEncode
	options.Decoder = cborDecode
	options.Dir = basepath
	options.ValueDir = basepath
	options.Options = options.Options.
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	return &Store{DatabasePath: basepath, Database: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.Database.Close()
}

// UpsertProfile stores or overwrites a profile. Idempotent: re-storing the
// same author replaces in place.
func (s *Store) UpsertProfile(profile *types.Profile, fetchedAt time.Time) error {
	record := CachedProfile{Profile: *profile, FetchedAt: fetchedAt.Unix()}
	return s.Database.Upsert(profile.PubKey, record)
}

// GetProfile returns a cached profile and its fetch time. Absence is
// (nil, zero, false), not an error.
func (s *Store) GetProfile(pubkey string) (*types.Profile, time.Time, bool) {
	var record CachedProfile
	if err := s.Database.Get(pubkey, &record); err != nil {
		if err != badgerhold.ErrNotFound {
			logging.Debugf("Profile cache read failed for %s: %v", pubkey, err)
		}
		return nil, time.Time{}, false
	}
	return &record.Profile, time.Unix(record.FetchedAt, 0), true
}

// UpsertTrack stores or overwrites a track keyed by its address.
func (s *Store) UpsertTrack(track *types.Track, fetchedAt time.Time) error {
	record := CachedTrack{
		Track:     *track,
		PubKey:    track.PubKey,
		CreatedAt: int64(track.CreatedAt),
		FetchedAt: fetchedAt.Unix(),
	}
	return s.Database.Upsert(track.Address(), record)
}

// GetTrack returns the cached track for an address.
func (s *Store) GetTrack(addr types.EntityAddress) (*types.Track, time.Time, bool) {
	var record CachedTrack
	if err := s.Database.Get(addr, &record); err != nil {
		if err != badgerhold.ErrNotFound {
			logging.Debugf("Track cache read failed for %s: %v", addr, err)
		}
		return nil, time.Time{}, false
	}
	return &record.Track, time.Unix(record.FetchedAt, 0), true
}

// TracksByAuthor returns the author's cached tracks, newest first.
func (s *Store) TracksByAuthor(pubkey string) ([]*types.Track, error) {
	var records []CachedTrack
	err := s.Database.Find(&records,
		badgerhold.Where("PubKey").Eq(pubkey).Index("PubKey").SortBy("CreatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to query cached tracks: %w", err)
	}

	tracks := make([]*types.Track, 0, len(records))
	for i := range records {
		tracks = append(tracks, &records[i].Track)
	}
	return tracks, nil
}

// RecentTracks returns the newest cached tracks across all authors.
func (s *Store) RecentTracks(limit int) ([]*types.Track, error) {
	var records []CachedTrack
	err := s.Database.Find(&records,
		badgerhold.Where("CreatedAt").Ge(int64(0)).SortBy("CreatedAt").Reverse().Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tracks: %w", err)
	}

	tracks := make([]*types.Track, 0, len(records))
	for i := range records {
		tracks = append(tracks, &records[i].Track)
	}
	return tracks, nil
}

// UpsertPlaylist stores or overwrites a playlist keyed by its address.
func (s *Store) UpsertPlaylist(playlist *types.Playlist, fetchedAt time.Time) error {
	record := CachedPlaylist{
		Playlist:  *playlist,
		PubKey:    playlist.PubKey,
		CreatedAt: int64(playlist.CreatedAt),
		FetchedAt: fetchedAt.Unix(),
	}
	return s.Database.Upsert(playlist.Address(), record)
}

// GetPlaylist returns the cached playlist for an address.
func (s *Store) GetPlaylist(addr types.EntityAddress) (*types.Playlist, time.Time, bool) {
	var record CachedPlaylist
	if err := s.Database.Get(addr, &record); err != nil {
		if err != badgerhold.ErrNotFound {
			logging.Debugf("Playlist cache read failed for %s: %v", addr, err)
		}
		return nil, time.Time{}, false
	}
	return &record.Playlist, time.Unix(record.FetchedAt, 0), true
}

// PlaylistsByAuthor returns the author's cached playlists, newest first.
func (s *Store) PlaylistsByAuthor(pubkey string) ([]*types.Playlist, error) {
	var records []CachedPlaylist
	err := s.Database.Find(&records,
		badgerhold.Where("PubKey").Eq(pubkey).Index("PubKey").SortBy("CreatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to query cached playlists: %w", err)
	}

	playlists := make([]*types.Playlist, 0, len(records))
	for i := range records {
		playlists = append(playlists, &records[i].Playlist)
	}
	return playlists, nil
}

// DeletePlaylist removes a playlist from the cache.
func (s *Store) DeletePlaylist(addr types.EntityAddress) error {
	err := s.Database.Delete(addr, CachedPlaylist{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cached playlist: %w", err)
	}
	return nil
}

// PutQuery stores a named-query result set.
func (s *Store) PutQuery(key string, resultIDs []string, fetchedAt, expiresAt time.Time) error {
	record := CachedQuery{
		QueryKey:  key,
		ResultIDs: resultIDs,
		FetchedAt: fetchedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	return s.Database.Upsert(key, record)
}

// GetQuery returns a cached query result set. Expired entries are reported
// as misses.
func (s *Store) GetQuery(key string, now time.Time) (*CachedQuery, bool) {
	var record CachedQuery
	if err := s.Database.Get(key, &record); err != nil {
		if err != badgerhold.ErrNotFound {
			logging.Debugf("Query cache read failed for %q: %v", key, err)
		}
		return nil, false
	}
	if now.Unix() >= record.ExpiresAt {
		return nil, false
	}
	return &record, true
}

// CleanupExpiredQueries deletes query entries past their expiry.
func (s *Store) CleanupExpiredQueries(now time.Time) (int, error) {
	query := badgerhold.Where("ExpiresAt").Le(now.Unix())

	count, err := s.Database.Count(CachedQuery{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired queries: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.Database.DeleteMatching(CachedQuery{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete expired queries: %w", err)
	}
	return int(count), nil
}

// Stats returns record counts per entity type.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{}

	all := badgerhold.Where("FetchedAt").Ge(int64(0))

	profiles, err := s.Database.Count(CachedProfile{}, all)
	if err != nil {
		return stats, fmt.Errorf("failed to count profiles: %w", err)
	}
	tracks, err := s.Database.Count(CachedTrack{}, all)
	if err != nil {
		return stats, fmt.Errorf("failed to count tracks: %w", err)
	}
	playlists, err := s.Database.Count(CachedPlaylist{}, all)
	if err != nil {
		return stats, fmt.Errorf("failed to count playlists: %w", err)
	}
	queries, err := s.Database.Count(CachedQuery{}, badgerhold.Where("ExpiresAt").Ge(int64(0)))
	if err != nil {
		return stats, fmt.Errorf("failed to count queries: %w", err)
	}

	// badgerhold counts are uint64.
	stats.Profiles = int(profiles)
	stats.Tracks = int(tracks)
	stats.Playlists = int(playlists)
	stats.Queries = int(queries)
	return stats, nil
}

// Clear drops every cached record.
func (s *Store) Clear() error {
	for _, dataType := range []interface{}{CachedProfile{}, CachedTrack{}, CachedPlaylist{}, CachedQuery{}} {
		if err := s.Database.DeleteMatching(dataType, &badgerhold.Query{}); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	return nil
}

// Badger exposes the underlying badger DB for maintenance.
func (s *Store) Badger() *badger.DB {
	return s.Database.Badger()
}
