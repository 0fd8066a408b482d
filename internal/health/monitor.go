package health

import (
	"context"
	"log/slog"
	"time"

	"marketfeed/internal/model"
)

// SubscriptionSource lists the live subscriptions worth watching.
type SubscriptionSource interface {
	Snapshot() []model.Topic
}

// Bookkeeper exposes the dispatcher's per-topic delivery records.
type Bookkeeper interface {
	LastDelivery(model.Topic) (time.Time, bool)
	ConsumerCount(model.Topic) int
}

// Connection is the slice of the feed connection the monitor may poke.
type Connection interface {
	IsConnected() bool
	Reconnect()
	SendSubscribe(channel, symbol string) error
}

// Config holds monitor thresholds.
type Config struct {
	CheckInterval  time.Duration // Cadence of the check loop
	StaleThreshold time.Duration // Silence before a per-topic resubscribe
	DeadThreshold  time.Duration // Silence before a full reconnect
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  5 * time.Second,
		StaleThreshold: 10 * time.Second,
		DeadThreshold:  30 * time.Second,
	}
}

// Monitor periodically inspects dispatcher bookkeeping and triggers
// recovery through the other components' public methods.
type Monitor struct {
	cfg    Config
	subs   SubscriptionSource
	book   Bookkeeper
	conn   Connection
	logger *slog.Logger

	// Baseline for topics that have never delivered, and per-topic
	// action times so one staleness episode triggers one resubscribe.
	firstSeen     map[model.Topic]time.Time
	resubscribed  map[model.Topic]time.Time
	lastReconnect time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, subs SubscriptionSource, book Bookkeeper, conn Connection, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:          cfg,
		subs:         subs,
		book:         book,
		conn:         conn,
		logger:       logger,
		firstSeen:    make(map[model.Topic]time.Time),
		resubscribed: make(map[model.Topic]time.Time),
	}
}

// Run checks on a fixed cadence until the context is cancelled. It is
// the only goroutine touching the monitor's state.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	m.logger.Info("health monitor started",
		"check_interval", m.cfg.CheckInterval,
		"stale_threshold", m.cfg.StaleThreshold,
		"dead_threshold", m.cfg.DeadThreshold,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.check(now)
		}
	}
}

// check runs one monitoring pass at the given time.
func (m *Monitor) check(now time.Time) {
	// While the connection is down its own backoff cycle is already
	// the recovery; staleness baselines restart once it is back.
	if !m.conn.IsConnected() {
		m.firstSeen = make(map[model.Topic]time.Time)
		m.resubscribed = make(map[model.Topic]time.Time)
		return
	}

	live := m.subs.Snapshot()
	seen := make(map[model.Topic]struct{}, len(live))
	escalate := false

	for _, topic := range live {
		seen[topic] = struct{}{}

		if m.book.ConsumerCount(topic) == 0 {
			continue
		}

		last, ok := m.book.LastDelivery(topic)
		if !ok {
			first, tracked := m.firstSeen[topic]
			if !tracked {
				m.firstSeen[topic] = now
				continue
			}
			last = first
		}

		silence := now.Sub(last)
		if silence < m.cfg.StaleThreshold {
			delete(m.resubscribed, topic)
			continue
		}

		if silence >= m.cfg.DeadThreshold {
			escalate = true
			continue
		}

		// One resubscribe per staleness episode.
		if at, done := m.resubscribed[topic]; done && now.Sub(at) < m.cfg.DeadThreshold {
			continue
		}
		m.logger.Warn("topic stale, resubscribing",
			"channel", topic.Channel,
			"symbol", topic.Symbol,
			"silence", silence,
		)
		if err := m.conn.SendSubscribe(topic.Channel, topic.Symbol); err != nil {
			m.logger.Warn("resubscribe failed", "topic", topic.String(), "error", err)
		}
		m.resubscribed[topic] = now
	}

	// Drop tracking for unsubscribed topics.
	for topic := range m.firstSeen {
		if _, ok := seen[topic]; !ok {
			delete(m.firstSeen, topic)
		}
	}
	for topic := range m.resubscribed {
		if _, ok := seen[topic]; !ok {
			delete(m.resubscribed, topic)
		}
	}

	if escalate && now.Sub(m.lastReconnect) >= m.cfg.DeadThreshold {
		m.logger.Error("feed silent past dead threshold, forcing reconnect")
		m.lastReconnect = now
		m.firstSeen = make(map[model.Topic]time.Time)
		m.resubscribed = make(map[model.Topic]time.Time)
		m.conn.Reconnect()
	}
}
