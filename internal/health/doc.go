// Package health implements the staleness monitor.
//
// The monitor never touches the network. Every check interval it walks
// the actively-subscribed topics and compares the dispatcher's
// last-delivery time against two thresholds: past the stale threshold
// it re-issues the upstream subscribe for just that topic; past the
// dead threshold it forces a full reconnect, since a resubscribe that
// produced nothing implies the socket itself is silently dead.
package health
