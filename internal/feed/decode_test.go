package feed

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"marketfeed/internal/model"
)

func TestDecodeTradeFrame(t *testing.T) {
	data := []byte(`{
		"topic": "tradeHistoryApiV2:BTC-PERP",
		"data": [
			{"symbol":"BTC-PERP","price":"64250.5","size":"0.012","side":"BUY","timestamp":1717000000123},
			{"symbol":"BTC-PERP","price":"64249.0","size":"0.5","side":"SELL","timestamp":1717000000456}
		]
	}`)

	events, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	trade, ok := events[0].payload.(model.Trade)
	if !ok {
		t.Fatalf("payload is %T, want model.Trade", events[0].payload)
	}
	if trade.Symbol != "BTC-PERP" {
		t.Errorf("Symbol = %s, want BTC-PERP", trade.Symbol)
	}
	if !trade.Price.Equal(decimal.RequireFromString("64250.5")) {
		t.Errorf("Price = %s, want 64250.5", trade.Price)
	}
	if trade.Side != model.SideBuy {
		t.Errorf("Side = %v, want buy", trade.Side)
	}
	if trade.Timestamp != 1717000000123 {
		t.Errorf("Timestamp = %d, want 1717000000123", trade.Timestamp)
	}

	second, _ := events[1].payload.(model.Trade)
	if second.Side != model.SideSell {
		t.Errorf("second Side = %v, want sell", second.Side)
	}
}

func TestDecodeBookFrame(t *testing.T) {
	data := []byte(`{
		"topic": "snapshotL1:ETH-PERP",
		"data": {
			"bids": [["3112.4","1.5"],["3112.0","3.0"]],
			"asks": [["3112.9","0.8"]],
			"timestamp": 1717000001000
		}
	}`)

	events, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	book, ok := events[0].payload.(model.BestBidAsk)
	if !ok {
		t.Fatalf("payload is %T, want model.BestBidAsk", events[0].payload)
	}
	// Symbol comes from the topic when the payload omits it.
	if book.Symbol != "ETH-PERP" {
		t.Errorf("Symbol = %s, want ETH-PERP", book.Symbol)
	}
	if !book.Bid.Equal(decimal.RequireFromString("3112.4")) {
		t.Errorf("Bid = %s, want best (first) bid 3112.4", book.Bid)
	}
	if !book.BidSize.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("BidSize = %s, want 1.5", book.BidSize)
	}
	if !book.Ask.Equal(decimal.RequireFromString("3112.9")) {
		t.Errorf("Ask = %s, want 3112.9", book.Ask)
	}
}

func TestDecodeTickerFrame(t *testing.T) {
	data := []byte(`{
		"topic": "ticker:BTC-PERP",
		"data": {
			"symbol": "BTC-PERP",
			"lastPrice": "64300.1",
			"high24Hr": "65000",
			"low24Hr": "63000",
			"volume24Hr": "1234.56",
			"timestamp": 1717000002000
		}
	}`)

	events, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}

	tk, ok := events[0].payload.(model.Ticker)
	if !ok {
		t.Fatalf("payload is %T, want model.Ticker", events[0].payload)
	}
	if !tk.Last.Equal(decimal.RequireFromString("64300.1")) {
		t.Errorf("Last = %s, want 64300.1", tk.Last)
	}
	if !tk.Volume24h.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("Volume24h = %s, want 1234.56", tk.Volume24h)
	}
}

func TestDecodeAckFrame(t *testing.T) {
	data := []byte(`{"event":"subscribe","args":["tradeHistoryApiV2:BTC-PERP"],"success":true}`)

	events, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	if events[0].channel != ChannelTrades {
		t.Errorf("channel = %s, want %s", events[0].channel, ChannelTrades)
	}
	if events[0].symbol != "BTC-PERP" {
		t.Errorf("symbol = %s, want BTC-PERP", events[0].symbol)
	}
	ack, ok := events[0].payload.(Ack)
	if !ok {
		t.Fatalf("payload is %T, want Ack", events[0].payload)
	}
	if !ack.Success {
		t.Error("Success = false, want true")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"empty envelope", `{"foo":"bar"}`},
		{"bad trade price", `{"topic":"tradeHistoryApiV2:X","data":[{"price":"oops","size":"1","side":"BUY"}]}`},
		{"bad book level", `{"topic":"snapshotL1:X","data":{"bids":[["1.0"]],"asks":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeFrame([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeUnknownChannel(t *testing.T) {
	data := []byte(`{"topic":"fundingRate:BTC-PERP","data":{}}`)

	_, err := decodeFrame(data)
	if !errors.Is(err, errUnknownChannel) {
		t.Fatalf("err = %v, want errUnknownChannel", err)
	}
}

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		topic   string
		channel string
		symbol  string
	}{
		{"tradeHistoryApiV2:BTC-PERP", "tradeHistoryApiV2", "BTC-PERP"},
		{"update:BTC-PERP_0", "update", "BTC-PERP_0"},
		{"nockolon", "nockolon", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		channel, symbol := splitTopic(tt.topic)
		if channel != tt.channel || symbol != tt.symbol {
			t.Errorf("splitTopic(%q) = (%q, %q), want (%q, %q)",
				tt.topic, channel, symbol, tt.channel, tt.symbol)
		}
	}
}
