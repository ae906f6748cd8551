// Package swr serves cached values immediately and refreshes them in the
// background once they pass a staleness threshold.
//
// Concurrent readers of the same key may each trigger their own refresh;
// that duplicate work is accepted because cache writes are idempotent by
// identifier, so no in-flight coalescing is attempted.
package swr

import (
	"context"
	"time"

	"github.com/tunegraph-io/tunegraph/lib/logging"
)

// Resource wires one cacheable value into the revalidation engine.
type Resource[T any] struct {
	// Name labels the resource in logs.
	Name string

	// Read returns the cached value, its fetch time and whether it was
	// present. It must never touch the network.
	Read func() (T, time.Time, bool)

	// Fetch retrieves a fresh value from the network.
	Fetch func(ctx context.Context) (T, error)

	// Write persists a fetched value. Must be idempotent.
	Write func(value T, fetchedAt time.Time) error

	// Stale is the age past which a cached value is served but refreshed
	// in the background.
	Stale time.Duration

	// Expire is the age past which a cached value is discarded rather
	// than served. Zero means cached values never expire outright.
	Expire time.Duration

	// OnUpdate receives the fresh value after a background refresh.
	OnUpdate func(value T)

	// OnError receives background refresh failures. The stale cache is
	// left untouched and no retry is scheduled at this layer.
	OnError func(err error)

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (r *Resource[T]) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Get resolves the resource:
//
//	cached and fresh          -> returned as is, no network call
//	cached but stale          -> returned as is, one background refresh
//	absent or past expiry     -> synchronous fetch
//
// The background refresh never blocks the triggering read.
func Get[T any](ctx context.Context, r Resource[T]) (T, error) {
	now := r.now()

	if value, fetchedAt, ok := r.Read(); ok {
		age := now.Sub(fetchedAt)

		expired := r.Expire > 0 && age >= r.Expire
		if !expired {
			if age < r.Stale {
				return value, nil
			}

			go r.revalidate()
			return value, nil
		}
		// Past the freshness window: fall through to a blocking fetch.
	}

	value, err := r.Fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if r.Write != nil {
		if err := r.Write(value, now); err != nil {
			// Cache failures degrade to uncached behavior.
			logging.Warnf("Failed to cache %s: %v", r.Name, err)
		}
	}

	return value, nil
}

// revalidate runs one background refresh. It deliberately does not inherit
// the triggering read's context: the read has already returned.
func (r *Resource[T]) revalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value, err := r.Fetch(ctx)
	if err != nil {
		logging.Debugf("Background refresh of %s failed: %v", r.Name, err)
		if r.OnError != nil {
			r.OnError(err)
		}
		return
	}

	if r.Write != nil {
		if err := r.Write(value, r.now()); err != nil {
			logging.Warnf("Failed to cache refreshed %s: %v", r.Name, err)
		}
	}

	if r.OnUpdate != nil {
		r.OnUpdate(value)
	}
}
