package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/quote-relay/internal/model"
)

// ParsePrice converts a gateway price string to float64.
// Returns 0 for empty or invalid input.
func ParsePrice(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseMillis converts Unix milliseconds to UTC time.
// Returns the zero time for non-positive input.
func ParseMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// TickToModel converts a gateway tick.
func TickToModel(t APITick) model.Tick {
	return model.Tick{
		Bid:       ParsePrice(t.Bid),
		Ask:       ParsePrice(t.Ask),
		Last:      ParsePrice(t.Last),
		Volume:    t.Volume,
		Timestamp: ParseMillis(t.TimeMsc),
	}
}

// BarToModel converts a gateway bar.
func BarToModel(b APIBar) model.Bar {
	var ts time.Time
	if b.Time > 0 {
		ts = time.Unix(b.Time, 0).UTC()
	}
	return model.Bar{
		Open:      ParsePrice(b.Open),
		High:      ParsePrice(b.High),
		Low:       ParsePrice(b.Low),
		Close:     ParsePrice(b.Close),
		Volume:    b.TickVolume,
		Timestamp: ts,
	}
}
