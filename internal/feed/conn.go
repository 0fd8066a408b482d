package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"marketfeed/internal/model"
)

// errForcedReconnect is the internal reason when Reconnect() tears the
// socket down on purpose.
var errForcedReconnect = errors.New("reconnect requested")

// Callbacks are the Conn's outputs. All callbacks are invoked from the
// connection's run goroutine, so events for a symbol arrive in decode
// order.
type Callbacks struct {
	// OnEvent delivers decoded domain events: model.Trade,
	// model.BestBidAsk, model.Ticker, or Ack.
	OnEvent func(channel, symbol string, payload any)

	// OnStateChange reports every state transition.
	OnStateChange func(State)

	// OnError reports unrecoverable errors, currently only
	// ErrMaxReconnects. Transient socket failures are handled
	// internally by the backoff cycle.
	OnError func(error)
}

// ReplaySource supplies the live subscription set to replay after
// every (re)connect; the upstream side has no memory across a drop.
type ReplaySource interface {
	Snapshot() []model.Topic
}

// Conn is the connection state machine around a Client. One run
// goroutine owns the socket and serializes all state transitions.
type Conn struct {
	cfg    ConnConfig
	cbs    Callbacks
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	client  *Client
	queue   []Command
	replay  ReplaySource
	running bool
	cancel  context.CancelFunc

	reconnectCh chan struct{}
}

// NewConn creates a Conn. Call SetReplaySource before Connect if
// subscription replay is wanted.
func NewConn(cfg ConnConfig, cbs Callbacks, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:         cfg,
		cbs:         cbs,
		logger:      logger,
		state:       StateDisconnected,
		reconnectCh: make(chan struct{}, 1),
	}
}

// SetReplaySource sets the subscription set replayed on (re)connect.
func (c *Conn) SetReplaySource(src ReplaySource) {
	c.mu.Lock()
	c.replay = src
	c.mu.Unlock()
}

// Connect starts the connection lifecycle. It returns immediately; the
// run goroutine dials, retries with backoff, and keeps the socket
// alive until Disconnect, context cancellation, or the consecutive-
// failure cap. Calling Connect on a Failed connection restarts it.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Disconnect stops the connection and cancels any heartbeat or backoff
// timer. The state transitions to Disconnected exactly once.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reconnect forces a teardown-and-redial of a running connection.
// Used by the health monitor when a silently dead socket is suspected.
func (c *Conn) Reconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the state machine is in Connected.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// SendSubscribe issues one upstream subscribe command. While the
// socket is down the command is queued and flushed on the next
// successful connect.
func (c *Conn) SendSubscribe(channel, symbol string) error {
	return c.sendCommand(Command{Op: "subscribe", Args: []string{channel + ":" + symbol}}, true)
}

// SendUnsubscribe issues one upstream unsubscribe command. Nothing is
// queued while disconnected: a fresh socket has no subscriptions to
// remove, and replay only covers the registry's live set.
func (c *Conn) SendUnsubscribe(channel, symbol string) error {
	return c.sendCommand(Command{Op: "unsubscribe", Args: []string{channel + ":" + symbol}}, false)
}

func (c *Conn) sendCommand(cmd Command, queueWhenDown bool) error {
	c.mu.Lock()
	client := c.client
	if client == nil || !client.IsConnected() {
		if queueWhenDown {
			c.queue = append(c.queue, cmd)
			c.mu.Unlock()
			c.logger.Debug("queued command for next connect", "op", cmd.Op, "args", cmd.Args)
			return nil
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return client.Send(data)
}

// run owns the dial/consume/backoff cycle.
func (c *Conn) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.client = nil
		failed := c.state == StateFailed
		c.mu.Unlock()
		if !failed {
			c.setState(StateDisconnected)
		}
	}()

	attempt := 0
	c.setState(StateConnecting)

	for {
		client := NewClient(c.cfg.ClientConfig, c.logger)
		if err := client.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("dial failed", "url", c.cfg.URL, "attempt", attempt, "error", err)
			if !c.backoffOrFail(ctx, &attempt) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.client = client
		c.mu.Unlock()
		attempt = 0
		c.setState(StateConnected)

		topics := c.replayTopics()
		c.flushQueue(topics)
		c.replaySubscriptions(topics)

		err := c.consume(ctx, client)
		client.Close()
		c.mu.Lock()
		c.client = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("connection lost", "error", err)
		if !c.backoffOrFail(ctx, &attempt) {
			return
		}
	}
}

// backoffOrFail waits min(max, base*2^attempt) before the next dial,
// or transitions to Failed once the consecutive-failure cap is hit.
// Returns false when the run loop should stop.
func (c *Conn) backoffOrFail(ctx context.Context, attempt *int) bool {
	if *attempt >= c.cfg.MaxReconnectFails {
		c.setState(StateFailed)
		c.logger.Error("giving up after consecutive failures", "failures", *attempt)
		if c.cbs.OnError != nil {
			c.cbs.OnError(ErrMaxReconnects)
		}
		return false
	}

	wait := Backoff(*attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay)
	*attempt++
	c.setState(StateReconnecting)
	c.logger.Info("reconnecting", "attempt", *attempt, "wait", wait)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// consume processes frames until the socket dies, a reconnect is
// forced, or the context is cancelled.
func (c *Conn) consume(ctx context.Context, client *Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.reconnectCh:
			c.logger.Info("forced reconnect")
			return errForcedReconnect
		case err := <-client.Errors():
			return err
		case frame, ok := <-client.Frames():
			if !ok {
				return errors.New("frame channel closed")
			}
			c.handleFrame(frame)
		}
	}
}

// handleFrame decodes one raw frame and delivers its events. Malformed
// frames are logged and skipped, never fatal.
func (c *Conn) handleFrame(frame TimestampedFrame) {
	events, err := decodeFrame(frame.Data)
	if err != nil {
		if errors.Is(err, errUnknownChannel) {
			c.logger.Debug("skipping frame on unknown channel", "error", err)
		} else {
			c.logger.Warn("malformed frame dropped", "error", err)
		}
		return
	}

	for _, ev := range events {
		if ack, ok := ev.payload.(Ack); ok && !ack.Success {
			c.logger.Warn("upstream rejected command", "event", ack.Event, "args", ack.Args)
		}
		if c.cbs.OnEvent != nil {
			c.cbs.OnEvent(ev.channel, ev.symbol, ev.payload)
		}
	}
}

// replayTopics returns the replay source's live subscription set, or
// nil when no source is configured.
func (c *Conn) replayTopics() []model.Topic {
	c.mu.Lock()
	replay := c.replay
	c.mu.Unlock()
	if replay == nil {
		return nil
	}
	return replay.Snapshot()
}

// flushQueue sends commands queued while the socket was down, skipping
// subscribes the replay set already covers. A queued subscribe for a
// live topic would otherwise reach the upstream twice: once here and
// once from replaySubscriptions.
func (c *Conn) flushQueue(topics []model.Topic) {
	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	covered := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		covered[t.String()] = struct{}{}
	}

	flushed := 0
	for _, cmd := range queued {
		if cmd.Op == "subscribe" && len(cmd.Args) == 1 {
			if _, dup := covered[cmd.Args[0]]; dup {
				continue
			}
		}
		data, err := json.Marshal(cmd)
		if err != nil {
			continue
		}
		c.mu.Lock()
		client := c.client
		c.mu.Unlock()
		if client == nil {
			return
		}
		if err := client.Send(data); err != nil {
			c.logger.Warn("failed to flush queued command", "op", cmd.Op, "error", err)
			return
		}
		flushed++
	}
	if flushed > 0 {
		c.logger.Info("flushed queued commands", "count", flushed)
	}
}

// replaySubscriptions reissues every live subscription after a
// (re)connect.
func (c *Conn) replaySubscriptions(topics []model.Topic) {
	for _, t := range topics {
		if err := c.SendSubscribe(t.Channel, t.Symbol); err != nil {
			c.logger.Warn("failed to replay subscription",
				"channel", t.Channel,
				"symbol", t.Symbol,
				"error", err,
			)
		}
	}
	if len(topics) > 0 {
		c.logger.Info("replayed subscriptions", "count", len(topics))
	}
}

// setState records a transition and notifies the callback.
func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("state transition", "from", old, "to", s)
	if c.cbs.OnStateChange != nil {
		c.cbs.OnStateChange(s)
	}
}
