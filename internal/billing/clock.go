package billing

import (
	"fmt"
	"time"
)

// Clock derives billing-cycle facts from an instant. A cycle is a calendar
// month in the clock's location and closes at 23:59:59 on its last day.
type Clock struct {
	loc *time.Location
}

// NewClock returns a clock for loc; nil means time.Local.
func NewClock(loc *time.Location) Clock {
	return Clock{loc: loc}
}

func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

func (c Clock) PeriodOf(now time.Time) Period {
	return PeriodOf(now.In(c.Location()))
}

// DueDate is the end-of-day instant of p's last calendar day.
func (c Clock) DueDate(p Period) time.Time {
	return time.Date(p.Year, p.Month+1, 0, 23, 59, 59, 0, c.Location())
}

// CycleEnd is the due date of the cycle containing now.
func (c Clock) CycleEnd(now time.Time) time.Time {
	return c.DueDate(c.PeriodOf(now))
}

// Remaining is the signed time from now to the end of its cycle. A
// non-positive value means the cycle has closed.
func (c Clock) Remaining(now time.Time) time.Duration {
	return c.CycleEnd(now).Sub(now)
}

func (c Clock) Countdown(now time.Time) Countdown {
	return NewCountdown(c.Remaining(now))
}

// Countdown is the display breakdown of the time left in a cycle.
type Countdown struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Ended   bool `json:"ended"`
}

func NewCountdown(remaining time.Duration) Countdown {
	if remaining <= 0 {
		return Countdown{Ended: true}
	}
	total := int64(remaining / time.Second)
	return Countdown{
		Days:    int(total / 86400),
		Hours:   int(total % 86400 / 3600),
		Minutes: int(total % 3600 / 60),
		Seconds: int(total % 60),
	}
}

func (c Countdown) String() string {
	if c.Ended {
		return "Month ended"
	}
	return fmt.Sprintf("%dd %dh %dm %ds", c.Days, c.Hours, c.Minutes, c.Seconds)
}
