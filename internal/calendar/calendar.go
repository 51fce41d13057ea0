// Package calendar answers market-hours questions in exchange local time.
package calendar

import "time"

// Session names a part of the A-share trading day.
type Session string

const (
	SessionPreMarket  Session = "pre_market"
	SessionMorning    Session = "morning"
	SessionAfternoon  Session = "afternoon"
	SessionPostMarket Session = "post_market"
)

// Calendar evaluates times in one location.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New returns a calendar for loc; nil means UTC.
func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// WithClock returns a copy of c that reads the current time from now.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: now}
}

// Location is the zone every answer is given in.
func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the current time in the calendar's location.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	switch t.In(c.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// SessionAt classifies t against the continuous-trading windows.
func (c *Calendar) SessionAt(t time.Time) (Session, bool) {
	local := t.In(c.loc)
	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= 9*60+15 && minutes < 9*60+25:
		return SessionPreMarket, true
	case minutes >= 9*60+30 && minutes < 11*60+30:
		return SessionMorning, true
	case minutes >= 13*60 && minutes < 15*60:
		return SessionAfternoon, true
	default:
		return SessionPostMarket, false
	}
}
