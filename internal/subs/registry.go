package subs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"marketfeed/internal/model"
)

// ErrSubscriptionLimit is returned when a first-time subscribe would
// push the live subscription count past the configured cap. The caller
// must narrow its subscription set; retrying the same request fails
// the same way.
var ErrSubscriptionLimit = errors.New("subscription limit exceeded")

// Commander issues subscription commands upstream. Implemented by the
// feed connection.
type Commander interface {
	SendSubscribe(channel, symbol string) error
	SendUnsubscribe(channel, symbol string) error
}

// Registry is a reference-counted map of (channel, symbol) → consumer
// count. All mutation goes through its methods; the map is never
// exposed.
type Registry struct {
	mu      sync.Mutex
	cap     int
	entries map[model.Topic]int
	cmd     Commander
	logger  *slog.Logger
}

// NewRegistry creates a Registry with the given subscription cap.
func NewRegistry(cap int, cmd Commander, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cap:     cap,
		entries: make(map[model.Topic]int),
		cmd:     cmd,
		logger:  logger,
	}
}

// Subscribe registers interest in (channel, symbol) and returns the
// resulting refcount. The first subscriber for a key triggers exactly
// one upstream subscribe command; later subscribers only bump the
// count. A first-time subscribe beyond the cap fails with
// ErrSubscriptionLimit before any upstream command is sent.
func (r *Registry) Subscribe(channel, symbol string) (int, error) {
	key := model.Topic{Channel: channel, Symbol: symbol}

	r.mu.Lock()
	if n, ok := r.entries[key]; ok {
		r.entries[key] = n + 1
		r.mu.Unlock()
		return n + 1, nil
	}

	if live := len(r.entries); live >= r.cap {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: %d live subscriptions, cap %d", ErrSubscriptionLimit, live, r.cap)
	}

	r.entries[key] = 1
	r.mu.Unlock()

	if err := r.cmd.SendSubscribe(channel, symbol); err != nil {
		// Roll back only this caller's reference. Another consumer may
		// have bumped the count while the command was in flight; its
		// claim on the key must survive so replay and health tracking
		// still cover it.
		r.mu.Lock()
		if n := r.entries[key]; n <= 1 {
			delete(r.entries, key)
		} else {
			r.entries[key] = n - 1
		}
		r.mu.Unlock()
		return 0, fmt.Errorf("subscribe %s: %w", key.Key(), err)
	}

	r.logger.Debug("subscribed upstream", "channel", channel, "symbol", symbol)
	return 1, nil
}

// Unsubscribe drops one reference and returns the remaining refcount.
// When the count reaches zero the entry is removed and exactly one
// upstream unsubscribe is issued. Unknown keys are a no-op: teardown
// paths may race and double-clean.
func (r *Registry) Unsubscribe(channel, symbol string) int {
	key := model.Topic{Channel: channel, Symbol: symbol}

	r.mu.Lock()
	n, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	if n > 1 {
		r.entries[key] = n - 1
		r.mu.Unlock()
		return n - 1
	}
	delete(r.entries, key)
	r.mu.Unlock()

	if err := r.cmd.SendUnsubscribe(channel, symbol); err != nil {
		r.logger.Warn("unsubscribe command failed",
			"channel", channel,
			"symbol", symbol,
			"error", err,
		)
	}
	return 0
}

// ActiveCount returns the number of live subscriptions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Refcount returns the consumer count for a key (0 if absent).
func (r *Registry) Refcount(channel, symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[model.Topic{Channel: channel, Symbol: symbol}]
}

// Snapshot returns the live subscription set in a stable order. The
// feed connection replays this after every (re)connect because the
// upstream side forgets all subscriptions across a socket drop.
func (r *Registry) Snapshot() []model.Topic {
	r.mu.Lock()
	keys := make([]model.Topic, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Key() < keys[j].Key()
	})
	return keys
}
