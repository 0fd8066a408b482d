package candle

import (
	"fmt"
	"strconv"
)

// Timeframe is a fixed candle width parsed from a label like "1m",
// "15m", "4h" or "1d".
type Timeframe struct {
	Label   string
	Seconds int64
}

// ParseTimeframe parses a timeframe label. Units: m (minutes),
// h (hours), d (days).
func ParseTimeframe(label string) (Timeframe, error) {
	if len(label) < 2 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", label)
	}

	n, err := strconv.ParseInt(label[:len(label)-1], 10, 64)
	if err != nil || n < 1 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", label)
	}

	var unit int64
	switch label[len(label)-1] {
	case 'm':
		unit = 60
	case 'h':
		unit = 3600
	case 'd':
		unit = 86400
	default:
		return Timeframe{}, fmt.Errorf("invalid timeframe unit in %q (want m, h or d)", label)
	}

	return Timeframe{Label: label, Seconds: n * unit}, nil
}

// ParseTimeframes parses a list of labels, rejecting duplicates.
func ParseTimeframes(labels []string) ([]Timeframe, error) {
	seen := make(map[string]struct{}, len(labels))
	tfs := make([]Timeframe, 0, len(labels))
	for _, label := range labels {
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate timeframe %q", label)
		}
		seen[label] = struct{}{}

		tf, err := ParseTimeframe(label)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	return tfs, nil
}

// Bucket returns the bucket start (seconds since epoch) the given
// millisecond timestamp falls into.
func (tf Timeframe) Bucket(timestampMillis int64) int64 {
	sec := timestampMillis / 1000
	return sec - sec%tf.Seconds
}
