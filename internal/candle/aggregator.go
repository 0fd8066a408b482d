package candle

import (
	"log/slog"
	"sync"

	"marketfeed/internal/model"
)

// EventKind distinguishes live candle mutations from bucket closes.
type EventKind int

const (
	// KindUpdate carries the current state of the live candle after a
	// trade mutated it. A continuously-updating value; safe to coalesce.
	KindUpdate EventKind = iota

	// KindClose carries the final state of a candle whose bucket has
	// ended. A discrete occurrence; must not be coalesced away.
	KindClose
)

// Event is an aggregation output: a snapshot of one candle.
type Event struct {
	Kind   EventKind
	Symbol string
	Candle model.Candle
}

// Handler receives aggregation events. Called synchronously from
// Ingest, in trade order.
type Handler func(Event)

type liveKey struct {
	symbol string
	label  string
}

// Aggregator maintains one live candle per (symbol, timeframe) and
// turns a trade stream into update/close events for every configured
// timeframe independently.
type Aggregator struct {
	mu         sync.Mutex
	timeframes []Timeframe
	live       map[liveKey]*model.Candle
	handler    Handler
	logger     *slog.Logger
}

// NewAggregator creates an Aggregator for the given timeframes.
func NewAggregator(timeframes []Timeframe, handler Handler, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		timeframes: timeframes,
		live:       make(map[liveKey]*model.Candle),
		handler:    handler,
		logger:     logger,
	}
}

// Timeframes returns the configured timeframe set.
func (a *Aggregator) Timeframes() []Timeframe {
	return a.timeframes
}

// Ingest applies one trade to every configured timeframe. Trades must
// arrive in upstream decode order per symbol; an out-of-order tick is
// applied as-is (last-write-wins).
func (a *Aggregator) Ingest(trade model.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, tf := range a.timeframes {
		bucket := tf.Bucket(trade.Timestamp)
		key := liveKey{symbol: trade.Symbol, label: tf.Label}

		c, ok := a.live[key]
		if !ok || c.BucketStart != bucket {
			if ok {
				a.handler(Event{Kind: KindClose, Symbol: trade.Symbol, Candle: *c})
			}
			c = &model.Candle{
				Timeframe:   tf.Label,
				BucketStart: bucket,
				Open:        trade.Price,
				High:        trade.Price,
				Low:         trade.Price,
				Close:       trade.Price,
				Volume:      trade.Size,
				TradeCount:  1,
			}
			a.live[key] = c
			a.handler(Event{Kind: KindUpdate, Symbol: trade.Symbol, Candle: *c})
			continue
		}

		if trade.Price.GreaterThan(c.High) {
			c.High = trade.Price
		}
		if trade.Price.LessThan(c.Low) {
			c.Low = trade.Price
		}
		c.Close = trade.Price
		c.Volume = c.Volume.Add(trade.Size)
		c.TradeCount++

		a.handler(Event{Kind: KindUpdate, Symbol: trade.Symbol, Candle: *c})
	}
}

// Live returns a snapshot of the live candle for (symbol, timeframe),
// if one exists.
func (a *Aggregator) Live(symbol, label string) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.live[liveKey{symbol: symbol, label: label}]
	if !ok {
		return model.Candle{}, false
	}
	return *c, true
}

// Reset discards all live candles for one symbol. Used after a
// resubscribe: partial buckets are never merged across feed gaps, the
// next trade simply opens fresh candles.
func (a *Aggregator) Reset(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.live {
		if key.symbol == symbol {
			delete(a.live, key)
		}
	}
	a.logger.Debug("aggregator state reset", "symbol", symbol)
}

// ResetAll discards every live candle.
func (a *Aggregator) ResetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = make(map[liveKey]*model.Candle)
}
