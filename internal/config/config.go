package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// Config is the root configuration for a feedd instance.
type Config struct {
	Feed          FeedConfig          `yaml:"feed"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Candles       CandlesConfig       `yaml:"candles"`
	Bus           BusConfig           `yaml:"bus"`
	Health        HealthConfig        `yaml:"health"`
	Status        StatusConfig        `yaml:"status"`
}

// FeedConfig holds upstream WebSocket settings.
type FeedConfig struct {
	URL                string   `yaml:"url"`
	MarketType         string   `yaml:"market_type"` // e.g. "futures", "spot"
	HeartbeatInterval  Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout   Duration `yaml:"heartbeat_timeout"`
	ReconnectBaseDelay Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  Duration `yaml:"reconnect_max_delay"`
	MaxReconnectFails  int      `yaml:"max_reconnect_fails"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	FrameBufferSize    int      `yaml:"frame_buffer_size"`
}

// SubscriptionsConfig holds subscription registry settings.
type SubscriptionsConfig struct {
	// Cap is the hard ceiling on live (channel, symbol) subscriptions
	// per connection. Subscribes beyond the cap are rejected.
	Cap int `yaml:"cap"`

	// Startup subscriptions issued once the feed connects.
	Startup []StartupSubscription `yaml:"startup"`
}

// StartupSubscription names one channel and the symbols to subscribe
// on it at boot.
type StartupSubscription struct {
	Channel string   `yaml:"channel"`
	Symbols []string `yaml:"symbols"`
}

// CandlesConfig holds trade aggregation settings.
type CandlesConfig struct {
	// Timeframes are labels like "1m", "5m", "1h", "1d".
	Timeframes []string `yaml:"timeframes"`
}

// BusConfig holds fan-out dispatcher settings.
type BusConfig struct {
	// DebounceInterval is the minimum gap between two deliveries on a
	// coalesced topic.
	DebounceInterval Duration `yaml:"debounce_interval"`
}

// HealthConfig holds staleness monitor settings.
type HealthConfig struct {
	CheckInterval  Duration `yaml:"check_interval"`
	StaleThreshold Duration `yaml:"stale_threshold"`
	DeadThreshold  Duration `yaml:"dead_threshold"`
}

// StatusConfig holds the local status HTTP endpoint settings.
type StatusConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
