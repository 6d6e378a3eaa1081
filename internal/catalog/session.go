package catalog

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// TradingSession is the exchange phase at a point in time.
type TradingSession string

const (
	SessionPreMarket TradingSession = "pre_market"
	SessionOpen      TradingSession = "open"
	SessionClosed    TradingSession = "closed"
)

// Calendar classifies instants into trading sessions in the exchange timezone.
// The regular session runs from OpenHour (inclusive) to CloseHour (exclusive)
// on weekdays.
type Calendar struct {
	loc       *time.Location
	OpenHour  int
	CloseHour int
}

// NewCalendar creates a calendar for the named IANA timezone with a 10:00-17:00 session.
func NewCalendar(timezone string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc, OpenHour: 10, CloseHour: 17}, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Session returns the trading session at now.
func (c *Calendar) Session(now time.Time) TradingSession {
	local := now.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return SessionClosed
	}

	h := local.Hour()
	switch {
	case h < c.OpenHour:
		return SessionPreMarket
	case h < c.CloseHour:
		return SessionOpen
	default:
		return SessionClosed
	}
}
