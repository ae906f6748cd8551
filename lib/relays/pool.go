// Package relays manages long-lived connections to a set of untrusted
// relays and runs parallel queries and publishes across them.
//
// No single relay is authoritative. A relay returning nothing means "no
// data from this relay", never proof of absence, and one relay failing
// never cancels the contribution of the others.
package relays

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/tunegraph-io/tunegraph/lib/logging"
)

// Pool holds shared relay connections keyed by URL.
type Pool struct {
	mu      sync.Mutex
	relays  map[string]*nostr.Relay
	timeout time.Duration
}

// NewPool creates a pool. queryTimeout bounds the total wait of a
// multi-relay query when the caller's context carries no deadline.
func NewPool(queryTimeout time.Duration) *Pool {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Pool{
		relays:  make(map[string]*nostr.Relay),
		timeout: queryTimeout,
	}
}

// Ensure returns the shared connection for a relay URL, dialing if needed.
func (p *Pool) Ensure(ctx context.Context, url string) (*nostr.Relay, error) {
	url = nostr.NormalizeURL(url)

	p.mu.Lock()
	if relay, ok := p.relays[url]; ok {
		p.mu.Unlock()
		return relay, nil
	}
	p.mu.Unlock()

	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.relays[url]; ok {
		// Lost the dial race; keep the existing connection.
		go relay.Close()
		return existing, nil
	}
	p.relays[url] = relay
	return relay, nil
}

// drop forgets a connection so the next use redials.
func (p *Pool) drop(url string, relay *nostr.Relay) {
	url = nostr.NormalizeURL(url)

	p.mu.Lock()
	if p.relays[url] == relay {
		delete(p.relays, url)
	}
	p.mu.Unlock()

	go relay.Close()
}

// Query sends the filter to every relay in urls and returns the merged
// result set, deduplicated by event id. Completion is relay-driven: each
// relay contributes until its end-of-stored-events signal, and an
// unresponsive relay stalls only itself until the aggregate timeout.
func (p *Pool) Query(ctx context.Context, urls []string, filter nostr.Filter) []*nostr.Event {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	incoming := make(chan *nostr.Event)
	var wg sync.WaitGroup
	for _, url := range dedupeURLs(urls) {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			p.queryRelay(ctx, url, filter, incoming)
		}(url)
	}
	go func() {
		wg.Wait()
		close(incoming)
	}()

	var merged []*nostr.Event
	seen := make(map[string]struct{})
	for ev := range incoming {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		merged = append(merged, ev)
	}
	return merged
}

// queryRelay streams one relay's matches into out until EOSE or the
// aggregate deadline. Errors are logged and swallowed: a failing relay is
// indistinguishable from a relay with no matching data.
func (p *Pool) queryRelay(ctx context.Context, url string, filter nostr.Filter, out chan<- *nostr.Event) {
	relay, err := p.Ensure(ctx, url)
	if err != nil {
		logging.Debugf("Relay %s unreachable: %v", url, err)
		return
	}

	sub, err := relay.Subscribe(ctx, nostr.Filters{filter})
	if err != nil && len(filter.Tags) > 0 {
		// Some relays reject tag filters. Fall back to the broader
		// author+kind query and filter client-side.
		broad := filter
		broad.Tags = nil
		sub, err = relay.Subscribe(ctx, nostr.Filters{broad})
	}
	if err != nil {
		logging.Debugf("Relay %s refused subscription: %v", url, err)
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
			if ev == nil || !filter.Matches(ev) {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case <-sub.EndOfStoredEvents:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishResult is one relay's outcome for a publish.
type PublishResult struct {
	Relay string
	Err   error
}

// Publish submits the signed event independently to each relay. Partial
// success is normal and not an error; the caller inspects the results to
// decide whether anything stuck.
func (p *Pool) Publish(ctx context.Context, urls []string, ev nostr.Event) []PublishResult {
	urls = dedupeURLs(urls)
	results := make([]PublishResult, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = PublishResult{Relay: url, Err: p.publishRelay(ctx, url, ev)}
		}(i, url)
	}
	wg.Wait()

	return results
}

func (p *Pool) publishRelay(ctx context.Context, url string, ev nostr.Event) error {
	relay, err := p.Ensure(ctx, url)
	if err != nil {
		return err
	}

	if err := relay.Publish(ctx, ev); err != nil {
		p.drop(url, relay)
		return err
	}
	return nil
}

// AnySuccess reports whether at least one relay accepted the event.
func AnySuccess(results []PublishResult) bool {
	for _, r := range results {
		if r.Err == nil {
			return true
		}
	}
	return false
}

// MergeByID combines per-relay result slices, keeping the first occurrence
// of each event id and the incoming order otherwise.
func MergeByID(lists ...[]*nostr.Event) []*nostr.Event {
	var merged []*nostr.Event
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, ev := range list {
			if ev == nil {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			merged = append(merged, ev)
		}
	}
	return merged
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		normalized := nostr.NormalizeURL(url)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// Close tears down every connection in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, relay := range p.relays {
		relay.Close()
		delete(p.relays, url)
	}
}
