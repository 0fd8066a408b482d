// Package subs implements the Subscription Registry component.
//
// The registry is the single point of truth for which (channel, symbol)
// pairs have at least one interested consumer. It:
//   - reference-counts subscriptions so N consumers cost one upstream command
//   - enforces a hard cap on live subscriptions per connection
//   - issues exactly one upstream subscribe/unsubscribe per key lifecycle
//   - replays the live set after a reconnect
package subs
