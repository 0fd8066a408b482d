package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMarketType         = "futures"
	DefaultHeartbeatInterval  = Duration(30 * time.Second)
	DefaultHeartbeatTimeout   = Duration(60 * time.Second)
	DefaultReconnectBaseDelay = Duration(1 * time.Second)
	DefaultReconnectMaxDelay  = Duration(30 * time.Second)
	DefaultMaxReconnectFails  = 10
	DefaultWriteTimeout       = Duration(5 * time.Second)
	DefaultFrameBufferSize    = 1000
	DefaultSubscriptionCap    = 250
	DefaultDebounceInterval   = Duration(250 * time.Millisecond)
	DefaultCheckInterval      = Duration(5 * time.Second)
	DefaultStaleThreshold     = Duration(10 * time.Second)
	DefaultDeadThreshold      = Duration(30 * time.Second)
	DefaultStatusPort         = 8080
	DefaultStatusPath         = "/status"
)

// DefaultTimeframes are the aggregated candle timeframes when none
// are configured.
var DefaultTimeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.MarketType == "" {
		c.Feed.MarketType = DefaultMarketType
	}
	if c.Feed.HeartbeatInterval == 0 {
		c.Feed.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Feed.HeartbeatTimeout == 0 {
		c.Feed.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.MaxReconnectFails == 0 {
		c.Feed.MaxReconnectFails = DefaultMaxReconnectFails
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.FrameBufferSize == 0 {
		c.Feed.FrameBufferSize = DefaultFrameBufferSize
	}

	// Subscriptions defaults
	if c.Subscriptions.Cap == 0 {
		c.Subscriptions.Cap = DefaultSubscriptionCap
	}

	// Candles defaults
	if len(c.Candles.Timeframes) == 0 {
		c.Candles.Timeframes = append([]string(nil), DefaultTimeframes...)
	}

	// Bus defaults
	if c.Bus.DebounceInterval == 0 {
		c.Bus.DebounceInterval = DefaultDebounceInterval
	}

	// Health defaults
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = DefaultCheckInterval
	}
	if c.Health.StaleThreshold == 0 {
		c.Health.StaleThreshold = DefaultStaleThreshold
	}
	if c.Health.DeadThreshold == 0 {
		c.Health.DeadThreshold = DefaultDeadThreshold
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
	if c.Status.Path == "" {
		c.Status.Path = DefaultStatusPath
	}
}
