// Package feed implements the upstream feed connection.
//
// A Client owns one WebSocket to one endpoint: read loop, write
// serialization, heartbeat with stale-connection detection. A Conn
// wraps a Client in the connection state machine: reconnect with
// exponential backoff, subscribe-command queueing and replay, and
// decoding of raw frames into typed events. A Pool reference-counts
// Conns by (endpoint, market type) so one logical feed never gets two
// sockets.
package feed
