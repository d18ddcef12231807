package calendar

import (
	"sort"
	"time"
)

// Calendar is a trading calendar: weekends and listed holidays are closed.
// All dates are civil dates (UTC midnight); callers pass any time and only
// the year/month/day is used.
// ⭐ SSOT: 거래일 판단과 거래일 수 계산은 여기서만
type Calendar struct {
	market   string
	holidays map[time.Time]string
}

// New creates a calendar with the given holidays (date → name)
func New(market string, holidays map[time.Time]string) *Calendar {
	c := &Calendar{
		market:   market,
		holidays: make(map[time.Time]string, len(holidays)),
	}
	for d, name := range holidays {
		c.holidays[Civil(d)] = name
	}
	return c
}

// NewKRX returns the Korea Exchange calendar with built-in holidays
func NewKRX() *Calendar {
	return New("KRX", krxHolidays())
}

// Weekdays returns a calendar where every Monday to Friday is a trading day
func Weekdays() *Calendar {
	return New("WEEKDAYS", nil)
}

// Market returns the market code of the calendar
func (c *Calendar) Market() string {
	return c.market
}

// Civil truncates t to its calendar date at UTC midnight, keeping t's own
// year/month/day (a KST evening stays on the KST date).
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns today's civil date in loc
func Today(loc *time.Location) time.Time {
	return Civil(time.Now().In(loc))
}

// ParseDate parses YYYY-MM-DD into a civil date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return Civil(t), nil
}

// IsHoliday reports whether d is a listed holiday and its name
func (c *Calendar) IsHoliday(d time.Time) (string, bool) {
	name, ok := c.holidays[Civil(d)]
	return name, ok
}

// IsTradingDay reports whether d is neither a weekend nor a holiday
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = Civil(d)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[d]
	return !holiday
}

// TradingDaysBetween counts trading days t with d1 < t <= d2.
// When d2 is before d1 the result is the negative of TradingDaysBetween(d2, d1).
func (c *Calendar) TradingDaysBetween(d1, d2 time.Time) int {
	d1, d2 = Civil(d1), Civil(d2)
	if d2.Before(d1) {
		return -c.TradingDaysBetween(d2, d1)
	}

	count := 0
	for d := d1.AddDate(0, 0, 1); !d.After(d2); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			count++
		}
	}
	return count
}

// NthTradingDayAfter returns the n-th trading day strictly after d.
// n == 0 returns OnOrAfter(d); negative n walks backwards.
func (c *Calendar) NthTradingDayAfter(d time.Time, n int) time.Time {
	d = Civil(d)
	switch {
	case n == 0:
		return c.OnOrAfter(d)
	case n < 0:
		for n < 0 {
			d = d.AddDate(0, 0, -1)
			if c.IsTradingDay(d) {
				n++
			}
		}
		return d
	}

	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			n--
		}
	}
	return d
}

// OnOrAfter returns d if it is a trading day, else the next trading day
func (c *Calendar) OnOrAfter(d time.Time) time.Time {
	d = Civil(d)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// OnOrBefore returns d if it is a trading day, else the previous trading day
func (c *Calendar) OnOrBefore(d time.Time) time.Time {
	d = Civil(d)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// TradingDays lists the trading days in [from, to], ascending
func (c *Calendar) TradingDays(from, to time.Time) []time.Time {
	from, to = Civil(from), Civil(to)
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Holidays returns the listed holidays in [from, to], ascending
func (c *Calendar) Holidays(from, to time.Time) []time.Time {
	from, to = Civil(from), Civil(to)
	var out []time.Time
	for d := range c.holidays {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
