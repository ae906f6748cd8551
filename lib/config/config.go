package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tunegraph-io/tunegraph/lib/types"
)

var (
	// Cache the configuration after first load
	cachedConfig    atomic.Value // stores *types.Config
	configLoadOnce  sync.Once
	configLoadError error

	// Debounce timer for config file changes
	debounceTimer *time.Timer
	debounceMutex sync.Mutex
)

// InitConfig initializes the global viper configuration
func InitConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("TUNEGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file yet, create one with the defaults
			if err := viper.WriteConfigAs("config.yaml"); err != nil {
				return fmt.Errorf("failed to create default config: %w", err)
			}
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read created config: %w", err)
			}
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := reloadConfigCache(); err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	// Watch for config file changes with debouncing so partial writes
	// are not picked up
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		debounceMutex.Lock()
		defer debounceMutex.Unlock()

		if debounceTimer != nil {
			debounceTimer.Stop()
		}

		debounceTimer = time.AfterFunc(500*time.Millisecond, func() {
			if err := reloadConfigCache(); err != nil {
				log.Printf("Error reloading config cache after file change: %v", err)
			}
		})
	})

	return nil
}

func setDefaults() {
	viper.SetDefault("client.data_path", "./data")

	viper.SetDefault("relays.bootstrap", []string{
		"wss://relay.damus.io",
		"wss://relay.nostr.band",
		"wss://nos.lol",
	})
	viper.SetDefault("relays.query_timeout_seconds", 10)
	viper.SetDefault("relays.gossip_ttl_seconds", 600)

	// Tracks are near-immutable so day-scale staleness is fine; social
	// state turns over in minutes.
	viper.SetDefault("cache.track.stale_seconds", 24*60*60)
	viper.SetDefault("cache.track.expire_seconds", 7*24*60*60)
	viper.SetDefault("cache.playlist.stale_seconds", 15*60)
	viper.SetDefault("cache.playlist.expire_seconds", 24*60*60)
	viper.SetDefault("cache.profile.stale_seconds", 60*60)
	viper.SetDefault("cache.profile.expire_seconds", 24*60*60)
	viper.SetDefault("cache.query.stale_seconds", 5*60)
	viper.SetDefault("cache.query.expire_seconds", 60*60)

	viper.SetDefault("reactions.like_markers", []string{"+"})

	viper.SetDefault("pending.max_age_days", 7)
	viper.SetDefault("pending.max_retries", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.output", "stdout")
}

// reloadConfigCache loads the configuration from viper into the cache
func reloadConfigCache() error {
	config := &types.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cachedConfig.Store(config)
	return nil
}

// GetConfig returns the cached configuration struct
func GetConfig() (*types.Config, error) {
	if cfg := cachedConfig.Load(); cfg != nil {
		return cfg.(*types.Config), nil
	}

	configLoadOnce.Do(func() {
		configLoadError = reloadConfigCache()
	})

	if configLoadError != nil {
		return nil, configLoadError
	}

	cfg := cachedConfig.Load()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	return cfg.(*types.Config), nil
}

// GetDataDir returns the data directory path
func GetDataDir() string {
	cfg, err := GetConfig()
	if err != nil || cfg.Client.DataPath == "" {
		return "./data"
	}
	return cfg.Client.DataPath
}

// GetPath returns a path relative to the data directory
func GetPath(subPath string) string {
	return filepath.Join(GetDataDir(), subPath)
}
