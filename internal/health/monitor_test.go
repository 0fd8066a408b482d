package health

import (
	"testing"
	"time"

	"marketfeed/internal/model"
)

var (
	topicA = model.Topic{Channel: "tradeHistoryApiV2", Symbol: "BTC-PERP"}
	topicB = model.Topic{Channel: "snapshotL1", Symbol: "ETH-PERP"}
)

type fakeSubs struct {
	topics []model.Topic
}

func (f *fakeSubs) Snapshot() []model.Topic {
	return append([]model.Topic(nil), f.topics...)
}

type fakeBook struct {
	deliveries map[model.Topic]time.Time
	consumers  map[model.Topic]int
}

func (f *fakeBook) LastDelivery(t model.Topic) (time.Time, bool) {
	ts, ok := f.deliveries[t]
	return ts, ok
}

func (f *fakeBook) ConsumerCount(t model.Topic) int {
	if f.consumers == nil {
		return 1
	}
	return f.consumers[t]
}

type fakeConn struct {
	connected    bool
	reconnects   int
	resubscribes []model.Topic
}

func (f *fakeConn) IsConnected() bool { return f.connected }
func (f *fakeConn) Reconnect()        { f.reconnects++ }
func (f *fakeConn) SendSubscribe(channel, symbol string) error {
	f.resubscribes = append(f.resubscribes, model.Topic{Channel: channel, Symbol: symbol})
	return nil
}

func testMonitor(subs *fakeSubs, book *fakeBook, conn *fakeConn) *Monitor {
	cfg := Config{
		CheckInterval:  5 * time.Second,
		StaleThreshold: 10 * time.Second,
		DeadThreshold:  30 * time.Second,
	}
	return NewMonitor(cfg, subs, book, conn, nil)
}

func TestMonitor_HealthyTopicUntouched(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{topicA: now.Add(-2 * time.Second)}}
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)
	m.check(now)

	if len(conn.resubscribes) != 0 {
		t.Errorf("resubscribed %v, want none for a fresh topic", conn.resubscribes)
	}
	if conn.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0", conn.reconnects)
	}
}

func TestMonitor_StaleTopicResubscribedOnce(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA, topicB}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{
		topicA: now.Add(-15 * time.Second), // stale, not dead
		topicB: now.Add(-1 * time.Second),  // healthy
	}}
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)
	m.check(now)

	if len(conn.resubscribes) != 1 || conn.resubscribes[0] != topicA {
		t.Fatalf("resubscribes = %v, want exactly [topicA]", conn.resubscribes)
	}

	// The same staleness episode must not trigger again on later checks.
	m.check(now.Add(5 * time.Second))
	if len(conn.resubscribes) != 1 {
		t.Errorf("resubscribes = %v, want one per staleness episode", conn.resubscribes)
	}
	if conn.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0 below the dead threshold", conn.reconnects)
	}
}

func TestMonitor_RecoveryResetsEpisode(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{topicA: now.Add(-15 * time.Second)}}
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)
	m.check(now)
	if len(conn.resubscribes) != 1 {
		t.Fatalf("resubscribes = %v, want 1", conn.resubscribes)
	}

	// Data flows again, then goes silent a second time: a fresh episode
	// earns a fresh resubscribe.
	book.deliveries[topicA] = now.Add(10 * time.Second)
	m.check(now.Add(12 * time.Second))

	// Silent again since that last delivery.
	m.check(now.Add(25 * time.Second))

	if len(conn.resubscribes) != 2 {
		t.Errorf("resubscribes = %v, want 2 across two episodes", conn.resubscribes)
	}
}

func TestMonitor_DeadTopicForcesReconnect(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{topicA: now.Add(-40 * time.Second)}}
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)
	m.check(now)

	if conn.reconnects != 1 {
		t.Fatalf("reconnects = %d, want 1 past the dead threshold", conn.reconnects)
	}
	if len(conn.resubscribes) != 0 {
		t.Errorf("resubscribes = %v, want none when escalating to reconnect", conn.resubscribes)
	}

	// Escalation is throttled: checking again right away must not stack
	// reconnects while the first one is still in flight.
	m.check(now.Add(5 * time.Second))
	if conn.reconnects != 1 {
		t.Errorf("reconnects = %d, want still 1 inside the throttle window", conn.reconnects)
	}
}

func TestMonitor_NeverDeliveredUsesFirstSeenBaseline(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{}} // nothing ever delivered
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)

	// First sighting only establishes the baseline.
	m.check(now)
	if len(conn.resubscribes) != 0 {
		t.Fatalf("resubscribes = %v, want none on first sighting", conn.resubscribes)
	}

	// Still silent past the stale threshold from that baseline.
	m.check(now.Add(15 * time.Second))
	if len(conn.resubscribes) != 1 {
		t.Errorf("resubscribes = %v, want 1 once the baseline goes stale", conn.resubscribes)
	}
}

func TestMonitor_DisconnectedSkipsChecks(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{topicA: now.Add(-time.Hour)}}
	conn := &fakeConn{connected: false}

	m := testMonitor(subs, book, conn)
	m.check(now)

	if len(conn.resubscribes) != 0 || conn.reconnects != 0 {
		t.Error("monitor must stay quiet while the connection is down")
	}

	// Reconnection resets the baselines: an hour-old delivery record
	// from before the drop does not count as silence afterwards and the
	// topic gets a fresh grace window.
	conn.connected = true
	book.deliveries = map[model.Topic]time.Time{}
	m.check(now.Add(5 * time.Second))
	if len(conn.resubscribes) != 0 {
		t.Errorf("resubscribes = %v, want none right after reconnect", conn.resubscribes)
	}
}

func TestMonitor_NoConsumersNoAction(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{
		deliveries: map[model.Topic]time.Time{topicA: now.Add(-time.Hour)},
		consumers:  map[model.Topic]int{topicA: 0},
	}
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)
	m.check(now)

	if len(conn.resubscribes) != 0 || conn.reconnects != 0 {
		t.Error("topics nobody consumes must not trigger recovery")
	}
}

func TestMonitor_UnsubscribedTopicDropsTracking(t *testing.T) {
	now := time.Now()
	subs := &fakeSubs{topics: []model.Topic{topicA}}
	book := &fakeBook{deliveries: map[model.Topic]time.Time{}}
	conn := &fakeConn{connected: true}

	m := testMonitor(subs, book, conn)
	m.check(now)
	if len(m.firstSeen) != 1 {
		t.Fatalf("firstSeen has %d entries, want 1", len(m.firstSeen))
	}

	subs.topics = nil
	m.check(now.Add(5 * time.Second))
	if len(m.firstSeen) != 0 {
		t.Errorf("firstSeen has %d entries after unsubscribe, want 0", len(m.firstSeen))
	}
}
