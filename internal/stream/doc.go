// Package stream assembles the feed pipeline behind the consumer-facing
// API: Subscribe/Unsubscribe for upstream interest, On for event
// registration keyed by channel, and Connected for the connection
// state.
//
// Derived candle events are published on local channels named
// "candle.<timeframe>" (see CandleChannel). Candles are aggregated from
// the trades channel, so a consumer wanting candles for a symbol
// subscribes that symbol on the trades channel upstream and registers
// on the candle channel locally.
package stream
