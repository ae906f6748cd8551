package relays

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/logging"
)

// Subscription is a live multi-relay subscription handle. Events arrive on
// Events deduplicated by id; Close releases every underlying relay
// subscription. There is no other cancellation mechanism: a caller done
// with a subscription closes it.
type Subscription struct {
	ID     string
	Events <-chan *nostr.Event

	cancel context.CancelFunc
	once   sync.Once
}

// Close terminates the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// NewSubscription wraps an existing event stream in a Subscription handle.
// Close runs cancel exactly once; the caller is responsible for closing
// events in response.
func NewSubscription(events <-chan *nostr.Event, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		ID:     uuid.NewString(),
		Events: events,
		cancel: cancel,
	}
}

// Subscribe opens a long-lived subscription against every relay in urls and
// merges the streams. Relays that cannot be reached are skipped; the
// subscription survives as long as at least the context does.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filters nostr.Filters) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *nostr.Event)

	var mu sync.Mutex
	seen := make(map[string]struct{})

	var wg sync.WaitGroup
	for _, url := range dedupeURLs(urls) {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			relay, err := p.Ensure(ctx, url)
			if err != nil {
				logging.Debugf("Relay %s unreachable for subscription: %v", url, err)
				return
			}

			sub, err := relay.Subscribe(ctx, filters)
			if err != nil {
				logging.Debugf("Relay %s refused live subscription: %v", url, err)
				p.drop(url, relay)
				return
			}
			defer sub.Unsub()

			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						return
					}
					if ev == nil {
						continue
					}
					mu.Lock()
					_, dup := seen[ev.ID]
					if !dup {
						seen[ev.ID] = struct{}{}
					}
					mu.Unlock()
					if dup {
						continue
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(url)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return &Subscription{
		ID:     uuid.NewString(),
		Events: out,
		cancel: cancel,
	}
}
