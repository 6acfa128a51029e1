package utils

import (
	"time"
)

// Eastern is the US Eastern time location used for all market-date math.
var Eastern *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: fixed EST offset if the tz database is not available.
		Eastern = time.FixedZone("EST", -5*60*60)
	}
}

// NowEastern returns the current time in US Eastern.
func NowEastern() time.Time {
	return time.Now().In(Eastern)
}

// ToEastern converts a time.Time to US Eastern.
func ToEastern(t time.Time) time.Time {
	return t.In(Eastern)
}

// MarketOpenTime returns the NYSE/NASDAQ opening time (9:30 AM ET) for a given date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, Eastern)
}

// MarketCloseTime returns the NYSE/NASDAQ closing time (4:00 PM ET) for a given date.
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, Eastern)
}

// IsMarketOpen checks if the US equity market is currently open.
func IsMarketOpen() bool {
	return IsMarketOpenAt(NowEastern())
}

// IsMarketOpenAt checks if the US equity market would be open at the given time.
func IsMarketOpenAt(t time.Time) bool {
	t = t.In(Eastern)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	if IsMarketHoliday(t) {
		return false
	}

	open := MarketOpenTime(t)
	close := MarketCloseTime(t)
	return !t.Before(open) && !t.After(close)
}

// IsTradingDay reports whether the given date is a US trading day
// (weekday and not a market holiday).
func IsTradingDay(t time.Time) bool {
	t = t.In(Eastern)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsMarketHoliday(t)
}

// NextTradingDay returns the next trading day strictly after the given date.
func NextTradingDay(from time.Time) time.Time {
	next := from.In(Eastern).AddDate(0, 0, 1)
	for !IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PrevTradingDay returns the trading day strictly before the given date.
func PrevTradingDay(from time.Time) time.Time {
	prev := from.In(Eastern).AddDate(0, 0, -1)
	for !IsTradingDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// TradingDaysBetween counts trading days in (from, to]. Returns 0 when
// to is not after from.
func TradingDaysBetween(from, to time.Time) int {
	from = from.In(Eastern)
	to = to.In(Eastern)
	if !to.After(from) {
		return 0
	}
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			n++
		}
	}
	return n
}

// DaysToExpiration returns whole calendar days from asOf to the expiration
// date, both truncated to their Eastern calendar date. Same-day expiry is 0.
func DaysToExpiration(asOf, expiration time.Time) int {
	// Diff in UTC so DST transitions cannot shave a day.
	a := dateOnly(asOf)
	e := dateOnly(expiration)
	return int(e.Sub(a).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	d := t.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// marketHolidays lists full-day US market closures. Observed dates.
var marketHolidays = map[string]string{
	"2025-01-01": "New Year's Day",
	"2025-01-20": "Martin Luther King Jr. Day",
	"2025-02-17": "Washington's Birthday",
	"2025-04-18": "Good Friday",
	"2025-05-26": "Memorial Day",
	"2025-06-19": "Juneteenth",
	"2025-07-04": "Independence Day",
	"2025-09-01": "Labor Day",
	"2025-11-27": "Thanksgiving Day",
	"2025-12-25": "Christmas Day",
	"2026-01-01": "New Year's Day",
	"2026-01-19": "Martin Luther King Jr. Day",
	"2026-02-16": "Washington's Birthday",
	"2026-04-03": "Good Friday",
	"2026-05-25": "Memorial Day",
	"2026-06-19": "Juneteenth",
	"2026-07-03": "Independence Day (observed)",
	"2026-09-07": "Labor Day",
	"2026-11-26": "Thanksgiving Day",
	"2026-12-25": "Christmas Day",
}

// IsMarketHoliday checks if the given date is a full-day US market holiday.
func IsMarketHoliday(t time.Time) bool {
	_, ok := marketHolidays[t.In(Eastern).Format("2006-01-02")]
	return ok
}

// HolidayName returns the holiday name for a date, or "" if it is not one.
func HolidayName(t time.Time) string {
	return marketHolidays[t.In(Eastern).Format("2006-01-02")]
}
