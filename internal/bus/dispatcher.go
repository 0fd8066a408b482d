package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketfeed/internal/model"
)

// Handler receives one delivered value for a topic. Handlers run on
// the publisher's goroutine (or a debounce timer goroutine) and should
// hand work off rather than block.
type Handler func(topic model.Topic, value any)

// Stats contains dispatcher counters for the status endpoint.
type Stats struct {
	Topics    int
	Published int64
	Delivered int64
	Coalesced int64 // publishes absorbed into a newer pending value
}

// topicState is the per-topic bookkeeping.
type topicState struct {
	subs map[uuid.UUID]Handler

	lastValue    any
	hasValue     bool
	lastDelivery time.Time

	// Trailing-edge debounce: the newest undelivered value and the
	// timer that will flush it.
	pending    any
	hasPending bool
	timer      *time.Timer
}

// Dispatcher is a typed publish/subscribe bus with per-topic
// coalescing. All state is guarded by one mutex; handlers are invoked
// outside it.
type Dispatcher struct {
	mu       sync.Mutex
	interval time.Duration
	topics   map[model.Topic]*topicState
	byChan   map[string]map[uuid.UUID]Handler
	active   map[uuid.UUID]struct{}
	closed   bool
	logger   *slog.Logger

	published int64
	delivered int64
	coalesced int64
}

// NewDispatcher creates a Dispatcher. interval is the minimum gap
// between two deliveries on a coalesced topic.
func NewDispatcher(interval time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		interval: interval,
		topics:   make(map[model.Topic]*topicState),
		byChan:   make(map[string]map[uuid.UUID]Handler),
		active:   make(map[uuid.UUID]struct{}),
		logger:   logger,
	}
}

// Subscribe registers a handler for one exact topic and returns a
// cancel function. Cancel is idempotent and, once it returns, the
// handler will not be invoked again, including by an already-pending
// debounce timer.
func (d *Dispatcher) Subscribe(topic model.Topic, h Handler) func() {
	id := uuid.New()

	d.mu.Lock()
	ts := d.topic(topic)
	ts.subs[id] = h
	d.active[id] = struct{}{}
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(ts.subs, id)
		delete(d.active, id)
		d.mu.Unlock()
	}
}

// SubscribeChannel registers a handler for every topic on a channel,
// regardless of symbol. Same cancel semantics as Subscribe.
func (d *Dispatcher) SubscribeChannel(channel string, h Handler) func() {
	id := uuid.New()

	d.mu.Lock()
	subs, ok := d.byChan[channel]
	if !ok {
		subs = make(map[uuid.UUID]Handler)
		d.byChan[channel] = subs
	}
	subs[id] = h
	d.active[id] = struct{}{}
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(subs, id)
		delete(d.active, id)
		d.mu.Unlock()
	}
}

// Publish delivers value to all of topic's consumers immediately.
// Used for discrete events (trades, candle closes). Any pending
// coalesced value for the topic is superseded and dropped.
func (d *Dispatcher) Publish(topic model.Topic, value any) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.published++

	ts := d.topic(topic)
	if ts.hasPending {
		// The immediate value is newer; never deliver stale data.
		ts.hasPending = false
		ts.pending = nil
		if ts.timer != nil {
			ts.timer.Stop()
			ts.timer = nil
		}
		d.coalesced++
	}
	targets := d.deliverLocked(topic, ts, value)
	d.mu.Unlock()

	d.invoke(topic, value, targets)
}

// PublishCoalesced delivers value subject to the per-topic debounce:
// if the last delivery was less than the interval ago, the value is
// parked as pending and flushed by a trailing timer, replacing any
// older pending value.
func (d *Dispatcher) PublishCoalesced(topic model.Topic, value any) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.published++

	ts := d.topic(topic)
	elapsed := time.Since(ts.lastDelivery)
	if !ts.hasPending && (ts.lastDelivery.IsZero() || elapsed >= d.interval) {
		targets := d.deliverLocked(topic, ts, value)
		d.mu.Unlock()
		d.invoke(topic, value, targets)
		return
	}

	// Within the interval: park the newest value and arm the trailing
	// timer for the remainder, if not already armed.
	if ts.hasPending {
		d.coalesced++
	}
	ts.pending = value
	ts.hasPending = true
	if ts.timer == nil {
		remainder := d.interval - elapsed
		if remainder <= 0 {
			remainder = time.Millisecond
		}
		ts.timer = time.AfterFunc(remainder, func() { d.flush(topic) })
	}
	d.mu.Unlock()
}

// flush delivers a topic's pending value when its trailing timer fires.
func (d *Dispatcher) flush(topic model.Topic) {
	d.mu.Lock()
	ts, ok := d.topics[topic]
	if !ok || d.closed || !ts.hasPending {
		if ok {
			ts.timer = nil
		}
		d.mu.Unlock()
		return
	}
	value := ts.pending
	ts.pending = nil
	ts.hasPending = false
	ts.timer = nil
	targets := d.deliverLocked(topic, ts, value)
	d.mu.Unlock()

	d.invoke(topic, value, targets)
}

// deliverLocked records the delivery and snapshots the target handler
// set. Caller holds d.mu.
func (d *Dispatcher) deliverLocked(topic model.Topic, ts *topicState, value any) []target {
	ts.lastValue = value
	ts.hasValue = true
	ts.lastDelivery = time.Now()
	d.delivered++

	targets := make([]target, 0, len(ts.subs)+len(d.byChan[topic.Channel]))
	for id, h := range ts.subs {
		targets = append(targets, target{id: id, h: h})
	}
	for id, h := range d.byChan[topic.Channel] {
		targets = append(targets, target{id: id, h: h})
	}
	return targets
}

type target struct {
	id uuid.UUID
	h  Handler
}

// invoke calls each handler that is still registered. The re-check
// under the lock is what makes cancel effective against an in-flight
// delivery.
func (d *Dispatcher) invoke(topic model.Topic, value any, targets []target) {
	for _, t := range targets {
		d.mu.Lock()
		_, alive := d.active[t.id]
		d.mu.Unlock()
		if alive {
			t.h(topic, value)
		}
	}
}

// topic returns the state for a topic, creating it if needed. Caller
// holds d.mu.
func (d *Dispatcher) topic(topic model.Topic) *topicState {
	ts, ok := d.topics[topic]
	if !ok {
		ts = &topicState{subs: make(map[uuid.UUID]Handler)}
		d.topics[topic] = ts
	}
	return ts
}

// Last returns the most recently delivered value for a topic.
func (d *Dispatcher) Last(topic model.Topic) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts, ok := d.topics[topic]
	if !ok || !ts.hasValue {
		return nil, false
	}
	return ts.lastValue, true
}

// LastDelivery returns the time of the most recent delivery for a
// topic. The health monitor reads this to detect stalled feeds.
func (d *Dispatcher) LastDelivery(topic model.Topic) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts, ok := d.topics[topic]
	if !ok || ts.lastDelivery.IsZero() {
		return time.Time{}, false
	}
	return ts.lastDelivery, true
}

// ConsumerCount returns the number of handlers (topic-level plus
// channel-level) a delivery on this topic would reach.
func (d *Dispatcher) ConsumerCount(topic model.Topic) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts, ok := d.topics[topic]
	n := len(d.byChan[topic.Channel])
	if ok {
		n += len(ts.subs)
	}
	return n
}

// ChannelSnapshot returns the last delivered value for every topic on
// a channel. Used to replay cached state to late subscribers.
func (d *Dispatcher) ChannelSnapshot(channel string) map[model.Topic]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[model.Topic]any)
	for topic, ts := range d.topics {
		if topic.Channel == channel && ts.hasValue {
			out[topic] = ts.lastValue
		}
	}
	return out
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Topics:    len(d.topics),
		Published: d.published,
		Delivered: d.delivered,
		Coalesced: d.coalesced,
	}
}

// Close stops all pending timers and drops further publishes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ts := range d.topics {
		if ts.timer != nil {
			ts.timer.Stop()
			ts.timer = nil
		}
		ts.pending = nil
		ts.hasPending = false
	}
}
