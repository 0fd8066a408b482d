package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"marketfeed/internal/model"
)

// errUnknownChannel marks frames on channels this decoder does not
// understand. They are skipped quietly rather than warned about.
var errUnknownChannel = errors.New("unknown channel")

// event is one decoded frame output.
type event struct {
	channel string
	symbol  string
	payload any
}

// decodeFrame turns one raw text frame into typed events. Two
// envelopes exist upstream: command acknowledgments
// ({event, args, success}) and data frames ({topic, data}).
func decodeFrame(data []byte) ([]event, error) {
	var probe struct {
		Event string `json:"event"`
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	if probe.Event != "" {
		return decodeAck(data)
	}
	if probe.Topic != "" {
		return decodeData(probe.Topic, data)
	}
	return nil, errors.New("frame has neither event nor topic")
}

func decodeAck(data []byte) ([]event, error) {
	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}

	channel, symbol := "", ""
	if len(ack.Args) > 0 {
		channel, symbol = splitTopic(ack.Args[0])
	}
	return []event{{channel: channel, symbol: symbol, payload: ack}}, nil
}

func decodeData(topic string, data []byte) ([]event, error) {
	var frame dataFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode data frame: %w", err)
	}

	channel, symbol := splitTopic(topic)
	switch channel {
	case ChannelTrades:
		return decodeTrades(channel, symbol, frame.Data)
	case ChannelBook:
		return decodeBook(channel, symbol, frame.Data)
	case ChannelTicker:
		return decodeTicker(channel, symbol, frame.Data)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownChannel, channel)
	}
}

func decodeTrades(channel, symbol string, data json.RawMessage) ([]event, error) {
	var wires []tradeWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	events := make([]event, 0, len(wires))
	for _, w := range wires {
		price, err := decimal.NewFromString(w.Price)
		if err != nil {
			return nil, fmt.Errorf("trade price %q: %w", w.Price, err)
		}
		size, err := decimal.NewFromString(w.Size)
		if err != nil {
			return nil, fmt.Errorf("trade size %q: %w", w.Size, err)
		}

		side := model.SideBuy
		if strings.EqualFold(w.Side, "sell") {
			side = model.SideSell
		}

		sym := w.Symbol
		if sym == "" {
			sym = symbol
		}

		events = append(events, event{
			channel: channel,
			symbol:  sym,
			payload: model.Trade{
				Symbol:    sym,
				Price:     price,
				Size:      size,
				Side:      side,
				Timestamp: w.Timestamp,
			},
		})
	}
	return events, nil
}

func decodeBook(channel, symbol string, data json.RawMessage) ([]event, error) {
	var w bookWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}

	sym := w.Symbol
	if sym == "" {
		sym = symbol
	}

	book := model.BestBidAsk{Symbol: sym, Timestamp: w.Timestamp}

	var err error
	if len(w.Bids) > 0 {
		book.Bid, book.BidSize, err = parseLevel(w.Bids[0])
		if err != nil {
			return nil, fmt.Errorf("book bid: %w", err)
		}
	}
	if len(w.Asks) > 0 {
		book.Ask, book.AskSize, err = parseLevel(w.Asks[0])
		if err != nil {
			return nil, fmt.Errorf("book ask: %w", err)
		}
	}

	return []event{{channel: channel, symbol: sym, payload: book}}, nil
}

func decodeTicker(channel, symbol string, data json.RawMessage) ([]event, error) {
	var w tickerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}

	sym := w.Symbol
	if sym == "" {
		sym = symbol
	}

	tk := model.Ticker{Symbol: sym, Timestamp: w.Timestamp}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{w.Last, &tk.Last},
		{w.High24h, &tk.High24h},
		{w.Low24h, &tk.Low24h},
		{w.Volume24h, &tk.Volume24h},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("ticker field %q: %w", f.raw, err)
		}
		*f.dst = d
	}

	return []event{{channel: channel, symbol: sym, payload: tk}}, nil
}

// parseLevel parses one [price, size] pair.
func parseLevel(level []string) (price, size decimal.Decimal, err error) {
	if len(level) < 2 {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("level has %d fields, want 2", len(level))
	}
	price, err = decimal.NewFromString(level[0])
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	size, err = decimal.NewFromString(level[1])
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return price, size, nil
}

// splitTopic splits "<channel>:<symbol>" at the first colon. Symbols
// never contain colons; some orderbook topics carry a grouping suffix
// after the symbol ("update:BTC-PERP_0") which is preserved as-is by
// callers that need it.
func splitTopic(topic string) (channel, symbol string) {
	if i := strings.IndexByte(topic, ':'); i >= 0 {
		return topic[:i], topic[i+1:]
	}
	return topic, ""
}
