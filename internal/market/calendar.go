// Package market models exchange rules for A-share style equity markets:
// the trading calendar, price limits and lot sizes, and the bar-level order
// matching simulator used by backtests.
package market

import (
	"time"
)

// Session boundaries, exchange local time.
var (
	morningOpen    = clock{9, 30}
	morningClose   = clock{11, 30}
	afternoonOpen  = clock{13, 0}
	afternoonClose = clock{15, 0}
)

type clock struct{ hour, min int }

func (c clock) minutes() int { return c.hour*60 + c.min }

// Calendar provides trading-day and trading-hours awareness. Weekends and the
// configured holidays are non-trading days.
type Calendar struct {
	holidays map[string]struct{} // YYYY-MM-DD
}

// NewCalendar creates a Calendar with the given holiday dates (YYYY-MM-DD).
// Dates that fail to parse are ignored.
func NewCalendar(holidays []string) *Calendar {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		if _, err := time.Parse("2006-01-02", h); err == nil {
			set[h] = struct{}{}
		}
	}
	return &Calendar{holidays: set}
}

// IsTradingDay reports whether t falls on a trading day.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// InSession reports whether the clock time of t is inside a trading session
// (09:30–11:30 or 13:00–15:00).
func (c *Calendar) InSession(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return (m >= morningOpen.minutes() && m <= morningClose.minutes()) ||
		(m >= afternoonOpen.minutes() && m <= afternoonClose.minutes())
}

// WithinTradingHours reports whether t is a tradable instant. Daily bars
// carry a midnight timestamp by convention, so a zero clock time checks only
// the trading day; intraday timestamps must also fall inside a session.
func (c *Calendar) WithinTradingHours(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return true
	}
	return c.InSession(t)
}

// SameSession reports whether a and b fall on the same trading date. Used for
// T+1 settlement: shares bought in one session become sellable in the next.
func (c *Calendar) SameSession(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// NextTradingDay returns the first trading day strictly after t.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return d
		}
	}
}
