// Package model defines shared data types used across the feed pipeline.
//
// Conventions:
//   - Prices and sizes: decimal.Decimal (exact money math)
//   - Timestamps: int64 milliseconds since Unix epoch unless noted
//   - Candle bucket starts: int64 seconds since Unix epoch
package model
