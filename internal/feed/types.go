package feed

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no activity)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyRunning  = errors.New("connection already running")
	ErrMaxReconnects   = errors.New("max consecutive reconnect failures reached")
)

// Upstream channel names.
const (
	ChannelTrades = "tradeHistoryApiV2"
	ChannelBook   = "snapshotL1"
	ChannelTicker = "ticker"
)

// Command is a subscribe/unsubscribe message sent upstream.
// Args entries are "<channel>:<symbol>".
type Command struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Ack is the acknowledgment envelope for subscribe/unsubscribe
// commands.
type Ack struct {
	Event   string   `json:"event"`
	Args    []string `json:"args"`
	Success bool     `json:"success"`
}

// dataFrame is the envelope for data messages.
type dataFrame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Wire types for per-channel payload decoding.

// tradeWire is one element of a trades-channel data array.
type tradeWire struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp int64  `json:"timestamp"`
}

// bookWire is a top-of-book snapshot payload. Bids and asks are
// [price, size] string pairs, best level first.
type bookWire struct {
	Symbol    string     `json:"symbol"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Timestamp int64      `json:"timestamp"`
}

// tickerWire is a ticker snapshot payload.
type tickerWire struct {
	Symbol    string `json:"symbol"`
	Last      string `json:"lastPrice"`
	High24h   string `json:"high24Hr"`
	Low24h    string `json:"low24Hr"`
	Volume24h string `json:"volume24Hr"`
	Timestamp int64  `json:"timestamp"`
}

// TimestampedFrame wraps raw frame bytes with the local receive time.
type TimestampedFrame struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL               string        // WebSocket URL
	HeartbeatInterval time.Duration // Ping cadence while connected
	HeartbeatTimeout  time.Duration // Max silence before the connection is declared stale
	WriteTimeout      time.Duration // Write deadline for sends
	BufferSize        int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        1000,
	}
}

// ConnConfig configures the connection state machine.
type ConnConfig struct {
	ClientConfig

	ReconnectBaseDelay time.Duration // First backoff step
	ReconnectMaxDelay  time.Duration // Backoff ceiling
	MaxReconnectFails  int           // Consecutive failures before Failed
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		ClientConfig:       DefaultClientConfig(),
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		MaxReconnectFails:  10,
	}
}

// State is the connection lifecycle state. Transitions are serialized
// through the Conn's run loop; Failed is terminal until an explicit
// Connect call.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Backoff returns the reconnect wait after `attempt` consecutive
// failures: min(max, base * 2^attempt).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Shifting past 62 bits would overflow; the ceiling applies long
	// before that anyway.
	if attempt > 30 {
		return max
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}
