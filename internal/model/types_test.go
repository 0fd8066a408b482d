package model

import "testing"

func TestTopicString(t *testing.T) {
	topic := Topic{Channel: "snapshotL1", Symbol: "BTC-PERP"}
	if got := topic.String(); got != "snapshotL1:BTC-PERP" {
		t.Errorf("String() = %q, want %q", got, "snapshotL1:BTC-PERP")
	}
}

func TestTopicKey(t *testing.T) {
	topic := Topic{Channel: "tradeHistoryApiV2", Symbol: "ETH-PERP"}
	if got := topic.Key(); got != "ETH-PERP-tradeHistoryApiV2" {
		t.Errorf("Key() = %q, want %q", got, "ETH-PERP-tradeHistoryApiV2")
	}
}

func TestTopicMapKey(t *testing.T) {
	// Topics must be usable as map keys with value identity.
	m := map[Topic]int{}
	m[Topic{Channel: "ticker", Symbol: "BTC-PERP"}] = 1
	m[Topic{Channel: "ticker", Symbol: "BTC-PERP"}] = 2

	if len(m) != 1 {
		t.Errorf("map has %d entries, want 1", len(m))
	}
	if m[Topic{Channel: "ticker", Symbol: "BTC-PERP"}] != 2 {
		t.Errorf("map value = %d, want 2", m[Topic{Channel: "ticker", Symbol: "BTC-PERP"}])
	}
}
