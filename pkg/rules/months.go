package rules

import "time"

// WholeMonths counts the complete months between a and b. The count drops by
// one when b's day of month falls before a's, so Jan 31 to Feb 28 is zero
// months and Jan 15 to Feb 15 is one.
func WholeMonths(a, b time.Time) int {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	months := (yb-ya)*12 + int(mb-ma)
	if db < da {
		months--
	}
	return months
}

// Age returns the completed years between birth and now.
func Age(birth, now time.Time) int {
	yb, mb, db := birth.Date()
	yn, mn, dn := now.Date()
	years := yn - yb
	if mn < mb || (mn == mb && dn < db) {
		years--
	}
	return years
}

// MonthsFrom returns the calendar date n months from day as UTC midnight.
func MonthsFrom(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m+time.Month(n), d, 0, 0, 0, 0, time.UTC)
}

// NotBefore reports whether date falls on or after the day months before now.
func NotBefore(date, now time.Time, months int) bool {
	return !Day(date).Before(MonthsFrom(now, -months))
}

// NotAfter reports whether date falls on or before the day months after now.
func NotAfter(date, now time.Time, months int) bool {
	return !Day(date).After(MonthsFrom(now, months))
}

// Day returns t's calendar date as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
