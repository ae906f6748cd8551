// Package pending preserves signed events whose publish failed so user
// intent survives relay outages. Items are retried on demand (typically on
// reconnect) and evicted once too old or too often retried.
package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nbd-wtf/go-nostr"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tunegraph-io/tunegraph/lib/logging"
	"github.com/tunegraph-io/tunegraph/lib/relays"
)

// Broadcast is one signed-but-unconfirmed event awaiting delivery.
type Broadcast struct {
	EventID      string
	Event        nostr.Event
	TargetRelays []string
	CreatedAt    int64
	RetryCount   int
}

// Publisher is the slice of the relay pool the sweep needs.
type Publisher interface {
	Publish(ctx context.Context, urls []string, ev nostr.Event) []relays.PublishResult
}

// Queue is the durable pending broadcast collection, deduplicated by
// event id.
type Queue struct {
	db         *badgerhold.Store
	maxAge     time.Duration
	maxRetries int
	now        func() time.Time
}

// InitQueue opens (or creates) the queue database at basepath.
func InitQueue(basepath string, maxAge time.Duration, maxRetries int) (*Queue, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}

	options := badgerhold.DefaultOptions
	options.Encoder = func(value interface{}) ([]byte, error) { return cbor.Marshal(value) }
	options.Decoder = func(data []byte, value interface{}) error { return cbor.Unmarshal(data, value) }
	options.Dir = basepath
	options.ValueDir = basepath
	options.Options = options.Options.WithLogger(nil)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open pending queue database: %w", err)
	}

	return &Queue{
		db:         db,
		maxAge:     maxAge,
		maxRetries: maxRetries,
		now:        time.Now,
	}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Add queues a signed event for later delivery. Re-adding an id that is
// already queued is a no-op.
func (q *Queue) Add(ev nostr.Event, targetRelays []string) error {
	item := Broadcast{
		EventID:      ev.ID,
		Event:        ev,
		TargetRelays: targetRelays,
		CreatedAt:    q.now().Unix(),
	}

	err := q.db.Insert(ev.ID, item)
	if err == badgerhold.ErrKeyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to queue broadcast %s: %w", ev.ID, err)
	}

	logging.Debugf("Queued broadcast %s for %d relays", ev.ID, len(targetRelays))
	return nil
}

// Remove drops a queued item, typically after out-of-band confirmation.
func (q *Queue) Remove(eventID string) error {
	err := q.db.Delete(eventID, Broadcast{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to remove broadcast %s: %w", eventID, err)
	}
	return nil
}

// Items returns every queued broadcast.
func (q *Queue) Items() ([]Broadcast, error) {
	var items []Broadcast
	if err := q.db.Find(&items, &badgerhold.Query{}); err != nil {
		return nil, fmt.Errorf("failed to list pending broadcasts: %w", err)
	}
	return items, nil
}

// Len returns the number of queued broadcasts.
func (q *Queue) Len() (int, error) {
	count, err := q.db.Count(Broadcast{}, &badgerhold.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending broadcasts: %w", err)
	}
	return int(count), nil
}

// SweepResult summarizes one retry sweep.
type SweepResult struct {
	Confirmed int
	Retried   int
	Evicted   int
}

// Sweep walks the queue once. Items past the age or retry ceiling are
// evicted without a publish attempt; the rest are republished to their
// full target set. Any relay accepting the event confirms it; total
// failure increments the retry count and keeps the item queued.
func (q *Queue) Sweep(ctx context.Context, publisher Publisher) (SweepResult, error) {
	items, err := q.Items()
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	now := q.now()

	for _, item := range items {
		age := now.Sub(time.Unix(item.CreatedAt, 0))
		if age > q.maxAge || item.RetryCount >= q.maxRetries {
			if err := q.Remove(item.EventID); err != nil {
				logging.Warnf("Failed to evict broadcast %s: %v", item.EventID, err)
				continue
			}
			logging.Infof("Evicted pending broadcast %s (age %s, retries %d)", item.EventID, age, item.RetryCount)
			result.Evicted++
			continue
		}

		if relays.AnySuccess(publisher.Publish(ctx, item.TargetRelays, item.Event)) {
			if err := q.Remove(item.EventID); err != nil {
				logging.Warnf("Failed to remove confirmed broadcast %s: %v", item.EventID, err)
				continue
			}
			result.Confirmed++
			continue
		}

		item.RetryCount++
		if err := q.db.Upsert(item.EventID, item); err != nil {
			logging.Warnf("Failed to bump retry count for %s: %v", item.EventID, err)
			continue
		}
		result.Retried++
	}

	return result, nil
}
