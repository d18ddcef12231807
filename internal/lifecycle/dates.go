package lifecycle

import (
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// onOrAfter is the first trading day >= d
func onOrAfter(cal contracts.TradingCalendar, d time.Time) time.Time {
	d = calendar.Civil(d)
	if cal.IsTradingDay(d) {
		return d
	}
	return cal.NthTradingDayAfter(d, 1)
}

// onOrBefore is the last trading day <= d
func onOrBefore(cal contracts.TradingCalendar, d time.Time) time.Time {
	d = calendar.Civil(d)
	if cal.IsTradingDay(d) {
		return d
	}
	return cal.NthTradingDayAfter(d, -1)
}

func dateString(d time.Time) string {
	return d.Format(contracts.DateLayout)
}
