package model

import (
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single executed trade tick. Immutable once decoded.
type Trade struct {
	Symbol    string          // Instrument symbol (e.g., "BTC-PERP")
	Price     decimal.Decimal // Fill price
	Size      decimal.Decimal // Fill size in base units
	Side      Side            // Taker side
	Timestamp int64           // Exchange timestamp (ms since epoch)
}

// BestBidAsk is a top-of-book snapshot. Immutable once decoded; the
// last one per symbol is cached so late subscribers can replay it.
type BestBidAsk struct {
	Symbol    string
	Bid       decimal.Decimal
	BidSize   decimal.Decimal
	Ask       decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp int64 // Exchange timestamp (ms since epoch)
}

// Ticker is a rolling 24h statistics snapshot for one symbol.
type Ticker struct {
	Symbol    string
	Last      decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp int64 // Exchange timestamp (ms since epoch)
}

// Candle is an OHLCV record for one (symbol, timeframe) bucket.
// The aggregator mutates one live Candle per key in place; everything
// published downstream is a value copy.
type Candle struct {
	Timeframe   string          // Timeframe label (e.g., "1m", "4h")
	BucketStart int64           // Bucket start (seconds since epoch)
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	TradeCount  int64
}

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic identifies one logical stream: a (channel, symbol) pair.
// It is the fan-out key for the dispatcher and the unit the health
// monitor tracks staleness for.
type Topic struct {
	Channel string
	Symbol  string
}

// String renders the upstream wire form "<channel>:<symbol>".
func (t Topic) String() string {
	return t.Channel + ":" + t.Symbol
}

// Key renders the composite subscription key "<symbol>-<channel>"
// used for dedup bookkeeping.
func (t Topic) Key() string {
	return t.Symbol + "-" + t.Channel
}
