// Package candle implements the trade-to-candle aggregator.
//
// One live candle is kept per (symbol, timeframe). Trades mutate it in
// place; consumers only ever see value snapshots. When a trade lands in
// a new bucket the old candle is flushed as a close event before the
// new one opens.
//
// Aggregation is purely a function of trade arrival order. Out-of-order
// ticks are applied last-write-wins, not reconciled: the output is a
// best-effort view, not authoritative history, and the whole state can
// be discarded and rebuilt (e.g. after a resubscribe) without
// corrupting future candles.
package candle
