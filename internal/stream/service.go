package stream

import (
	"context"
	"fmt"
	"log/slog"

	"marketfeed/internal/bus"
	"marketfeed/internal/candle"
	"marketfeed/internal/config"
	"marketfeed/internal/feed"
	"marketfeed/internal/health"
	"marketfeed/internal/model"
	"marketfeed/internal/subs"
)

// CandleChannel returns the local channel name carrying candles for a
// timeframe label.
func CandleChannel(timeframe string) string {
	return "candle." + timeframe
}

// Handler receives one (symbol, payload) pair for a channel the
// consumer registered on.
type Handler func(symbol string, payload any)

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	State               string    `json:"state"`
	Connected           bool      `json:"connected"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	SubscriptionCap     int       `json:"subscription_cap"`
	Bus                 bus.Stats `json:"bus"`
}

// Service owns the pipeline: one pooled feed connection, the
// subscription registry, the candle aggregator, the fan-out bus, and
// the health monitor.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	pool    *feed.Pool
	conn    *feed.Conn
	release func()

	registry *subs.Registry
	agg      *candle.Aggregator
	bus      *bus.Dispatcher
	monitor  *health.Monitor
}

// New wires a Service from configuration. Nothing touches the network
// until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	timeframes, err := candle.ParseTimeframes(cfg.Candles.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("parse timeframes: %w", err)
	}

	s := &Service{
		cfg:    cfg,
		logger: logger,
	}

	s.bus = bus.NewDispatcher(cfg.Bus.DebounceInterval.Std(), logger.With("component", "bus"))
	s.agg = candle.NewAggregator(timeframes, s.onCandle, logger.With("component", "candle"))

	connCfg := feed.ConnConfig{
		ClientConfig: feed.ClientConfig{
			URL:               cfg.Feed.URL,
			HeartbeatInterval: cfg.Feed.HeartbeatInterval.Std(),
			HeartbeatTimeout:  cfg.Feed.HeartbeatTimeout.Std(),
			WriteTimeout:      cfg.Feed.WriteTimeout.Std(),
			BufferSize:        cfg.Feed.FrameBufferSize,
		},
		ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay.Std(),
		ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay.Std(),
		MaxReconnectFails:  cfg.Feed.MaxReconnectFails,
	}
	callbacks := feed.Callbacks{
		OnEvent:       s.onEvent,
		OnStateChange: s.onStateChange,
		OnError:       s.onError,
	}

	s.pool = feed.NewPool(func(key feed.PoolKey) *feed.Conn {
		c := connCfg
		c.URL = key.Endpoint
		return feed.NewConn(c, callbacks, logger.With("component", "feed", "market_type", key.MarketType))
	}, logger.With("component", "pool"))

	s.conn, s.release = s.pool.Acquire(feed.PoolKey{
		Endpoint:   cfg.Feed.URL,
		MarketType: cfg.Feed.MarketType,
	})

	s.registry = subs.NewRegistry(cfg.Subscriptions.Cap, s.conn, logger.With("component", "subs"))
	s.conn.SetReplaySource(s.registry)

	s.monitor = health.NewMonitor(health.Config{
		CheckInterval:  cfg.Health.CheckInterval.Std(),
		StaleThreshold: cfg.Health.StaleThreshold.Std(),
		DeadThreshold:  cfg.Health.DeadThreshold.Std(),
	}, s.registry, s.bus, s.conn, logger.With("component", "health"))

	return s, nil
}

// Start connects the feed and issues the configured startup
// subscriptions.
func (s *Service) Start(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}

	for _, sub := range s.cfg.Subscriptions.Startup {
		if err := s.Subscribe(sub.Channel, sub.Symbols...); err != nil {
			return fmt.Errorf("startup subscription %s: %w", sub.Channel, err)
		}
	}
	return nil
}

// RunHealth runs the health monitor until the context is cancelled.
func (s *Service) RunHealth(ctx context.Context) error {
	return s.monitor.Run(ctx)
}

// Close tears the pipeline down: the connection is released (and
// disconnected, as the last pool holder) and the bus stops delivering.
func (s *Service) Close() {
	s.release()
	s.bus.Close()
}

// Subscribe registers upstream interest in symbols on a channel. On a
// capacity rejection the error is returned immediately; already-
// accepted symbols from the same call stay subscribed and the caller
// is expected to narrow its set, not retry it whole.
func (s *Service) Subscribe(channel string, symbols ...string) error {
	for _, symbol := range symbols {
		if _, err := s.registry.Subscribe(channel, symbol); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe drops interest in symbols on a channel. Unknown pairs
// are ignored.
func (s *Service) Unsubscribe(channel string, symbols ...string) {
	for _, symbol := range symbols {
		s.registry.Unsubscribe(channel, symbol)
	}
}

// On registers a handler for every symbol on a channel and returns an
// idempotent removal function. For the top-of-book channel the cached
// last snapshot per symbol is replayed synchronously so late
// subscribers start from known state.
func (s *Service) On(channel string, h Handler) func() {
	off := s.bus.SubscribeChannel(channel, func(t model.Topic, v any) {
		h(t.Symbol, v)
	})

	if channel == feed.ChannelBook {
		for topic, v := range s.bus.ChannelSnapshot(channel) {
			h(topic.Symbol, v)
		}
	}
	return off
}

// OnTopic registers a handler for a single (channel, symbol) pair.
func (s *Service) OnTopic(channel, symbol string, h Handler) func() {
	return s.bus.Subscribe(model.Topic{Channel: channel, Symbol: symbol}, func(t model.Topic, v any) {
		h(t.Symbol, v)
	})
}

// Reconnect restarts a connection that reached the Failed state.
// Automatic retries stop at the failure cap; only an explicit caller
// action resumes them.
func (s *Service) Reconnect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// Connected reports whether the feed connection is up.
func (s *Service) Connected() bool {
	return s.conn.IsConnected()
}

// Status returns a snapshot for the status endpoint.
func (s *Service) Status() Status {
	return Status{
		State:               s.conn.State().String(),
		Connected:           s.conn.IsConnected(),
		ActiveSubscriptions: s.registry.ActiveCount(),
		SubscriptionCap:     s.cfg.Subscriptions.Cap,
		Bus:                 s.bus.Stats(),
	}
}

// onEvent is the feed connection's event sink. It runs on the
// connection's goroutine, preserving per-symbol order.
func (s *Service) onEvent(channel, symbol string, payload any) {
	topic := model.Topic{Channel: channel, Symbol: symbol}

	switch p := payload.(type) {
	case model.Trade:
		// Discrete occurrences: delivered undebounced, then folded
		// into candles.
		s.bus.Publish(topic, p)
		s.agg.Ingest(p)
	case model.BestBidAsk:
		s.bus.PublishCoalesced(topic, p)
	case model.Ticker:
		s.bus.PublishCoalesced(topic, p)
	case feed.Ack:
		s.bus.Publish(topic, p)
	default:
		s.logger.Debug("unhandled event payload", "channel", channel, "symbol", symbol)
	}
}

// onCandle publishes aggregation output. Live updates coalesce; bucket
// closes are discrete and deliver immediately.
func (s *Service) onCandle(ev candle.Event) {
	topic := model.Topic{Channel: CandleChannel(ev.Candle.Timeframe), Symbol: ev.Symbol}
	switch ev.Kind {
	case candle.KindClose:
		s.bus.Publish(topic, ev.Candle)
	default:
		s.bus.PublishCoalesced(topic, ev.Candle)
	}
}

// onStateChange logs transitions and discards partial candle state
// when the feed drops. Buckets are never merged across a gap; the next
// trade opens fresh candles.
func (s *Service) onStateChange(state feed.State) {
	s.logger.Info("feed state changed", "state", state)
	if state == feed.StateReconnecting {
		s.agg.ResetAll()
	}
}

// onError surfaces unrecoverable connection errors. The connection is
// in Failed at this point and only an explicit reconnect revives it.
func (s *Service) onError(err error) {
	s.logger.Error("feed connection failed", "error", err)
}
