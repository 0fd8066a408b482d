package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that the configuration is internally consistent.
// Defaults should already be applied.
func (c *Config) Validate() error {
	var errs []error

	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	} else if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", c.Feed.URL))
	}

	if c.Feed.HeartbeatTimeout <= c.Feed.HeartbeatInterval {
		errs = append(errs, fmt.Errorf(
			"feed.heartbeat_timeout (%s) must exceed feed.heartbeat_interval (%s)",
			c.Feed.HeartbeatTimeout, c.Feed.HeartbeatInterval))
	}

	if c.Feed.ReconnectBaseDelay > c.Feed.ReconnectMaxDelay {
		errs = append(errs, fmt.Errorf(
			"feed.reconnect_base_delay (%s) exceeds feed.reconnect_max_delay (%s)",
			c.Feed.ReconnectBaseDelay, c.Feed.ReconnectMaxDelay))
	}

	if c.Feed.MaxReconnectFails < 1 {
		errs = append(errs, fmt.Errorf("feed.max_reconnect_fails must be >= 1, got %d", c.Feed.MaxReconnectFails))
	}

	if c.Subscriptions.Cap < 1 {
		errs = append(errs, fmt.Errorf("subscriptions.cap must be >= 1, got %d", c.Subscriptions.Cap))
	}

	for _, s := range c.Subscriptions.Startup {
		if s.Channel == "" {
			errs = append(errs, errors.New("subscriptions.startup entries require a channel"))
		}
		if len(s.Symbols) == 0 {
			errs = append(errs, fmt.Errorf("subscriptions.startup channel %q has no symbols", s.Channel))
		}
	}

	for _, tf := range c.Candles.Timeframes {
		if err := validateTimeframe(tf); err != nil {
			errs = append(errs, fmt.Errorf("candles.timeframes: %w", err))
		}
	}

	if c.Health.StaleThreshold >= c.Health.DeadThreshold {
		errs = append(errs, fmt.Errorf(
			"health.stale_threshold (%s) must be below health.dead_threshold (%s)",
			c.Health.StaleThreshold, c.Health.DeadThreshold))
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		errs = append(errs, fmt.Errorf("status.port must be 1-65535, got %d", c.Status.Port))
	}

	return errors.Join(errs...)
}

// validateTimeframe checks a timeframe label like "1m", "4h", "1d".
func validateTimeframe(label string) error {
	if len(label) < 2 {
		return fmt.Errorf("invalid timeframe %q", label)
	}
	unit := label[len(label)-1]
	if unit != 'm' && unit != 'h' && unit != 'd' {
		return fmt.Errorf("invalid timeframe unit in %q (want m, h or d)", label)
	}
	for _, r := range label[:len(label)-1] {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid timeframe %q", label)
		}
	}
	return nil
}
