// Package bus implements the in-process fan-out dispatcher.
//
// The dispatcher decouples ingestion cadence from consumer cadence: a
// publish never blocks on a consumer, and coalesced topics deliver at
// most one value per debounce interval, always the newest. Discrete
// events (trades, candle closes) bypass the debounce and deliver
// immediately.
//
// Per-topic bookkeeping (last value, last delivery time) doubles as the
// staleness signal for the health monitor and as the snapshot source
// for late subscribers.
package bus
