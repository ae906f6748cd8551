// Configuration types
package types

// Config represents the complete client configuration
type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Relays    RelaysConfig    `mapstructure:"relays"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Reactions ReactionsConfig `mapstructure:"reactions"`
	Pending   PendingConfig   `mapstructure:"pending"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ClientConfig holds general client settings
type ClientConfig struct {
	DataPath string `mapstructure:"data_path"`
}

// RelaysConfig holds relay connectivity settings
type RelaysConfig struct {
	// Bootstrap is the relay set queried before any author-specific
	// relay list is known.
	Bootstrap []string `mapstructure:"bootstrap"`
	// QueryTimeoutSeconds bounds the total wait of a multi-relay query.
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds"`
	// GossipTTLSeconds is how long a resolved author relay list is
	// memoized before the bootstrap set is asked again.
	GossipTTLSeconds int `mapstructure:"gossip_ttl_seconds"`
}

// FreshnessPolicy describes how long cached data of one entity type is
// considered fresh, and when it should be discarded outright.
type FreshnessPolicy struct {
	// StaleSeconds is the age past which a cached value is still served
	// but refreshed in the background.
	StaleSeconds int `mapstructure:"stale_seconds"`
	// ExpireSeconds is the age past which a cached value is discarded
	// rather than served.
	ExpireSeconds int `mapstructure:"expire_seconds"`
}

// CacheConfig holds per-entity-type freshness policies.
type CacheConfig struct {
	Profile  FreshnessPolicy `mapstructure:"profile"`
	Track    FreshnessPolicy `mapstructure:"track"`
	Playlist FreshnessPolicy `mapstructure:"playlist"`
	Query    FreshnessPolicy `mapstructure:"query"`
}

// ReactionsConfig holds reaction interpretation settings
type ReactionsConfig struct {
	// LikeMarkers is the set of reaction contents counted as a like.
	LikeMarkers []string `mapstructure:"like_markers"`
}

// PendingConfig holds pending broadcast queue ceilings
type PendingConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days"`
	MaxRetries int `mapstructure:"max_retries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}
