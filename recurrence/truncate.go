package recurrence

import (
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// GetSafeRruleCount returns the rule with COUNT set to newCount. A count of
// one or less means the series collapses to a single event, so no rule is
// returned at all.
func GetSafeRruleCount(rule rrule.ROption, newCount int) mo.Option[rrule.ROption] {
	if newCount <= 1 {
		return mo.None[rrule.ROption]()
	}
	rule.Count = newCount
	return mo.Some(rule)
}

// GetSafeRruleUntil moves UNTIL to the end of newStart's day when the series
// now starts after its original UNTIL. Rules without UNTIL, or still ending
// after newStart, are returned unchanged.
func GetSafeRruleUntil(rule rrule.ROption, newStart time.Time, allDay bool) rrule.ROption {
	if rule.Until.IsZero() {
		return rule
	}
	if newStart.After(rule.Until) {
		rule.Until = UntilProperty(newStart, allDay)
	}
	return rule
}

// UntilProperty returns the UNTIL value covering the whole day of t: the
// date itself for all-day series, otherwise the last second of that day in
// t's zone, expressed in UTC.
func UntilProperty(t time.Time, allDay bool) time.Time {
	y, m, d := t.Date()
	if allDay {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location()).UTC()
}

// UntilBefore returns an UNTIL value that stops a series right before the
// given occurrence
func UntilBefore(occurrence time.Time, allDay bool) time.Time {
	if allDay {
		y, m, d := occurrence.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return occurrence.Add(-time.Second).UTC()
}

// TruncateBefore cuts the rule so the series ends just before occ. COUNT
// rules keep the instances before occ, other rules get an UNTIL. None means
// at most one instance is left and the series should lose its RRULE.
func TruncateBefore(rule rrule.ROption, occ Occurrence, allDay bool) mo.Option[rrule.ROption] {
	if rule.Count > 0 {
		return GetSafeRruleCount(rule, occ.Ordinal)
	}
	if occ.Ordinal <= 1 {
		return mo.None[rrule.ROption]()
	}
	rule.Until = UntilBefore(occ.RecurrenceID, allDay)
	return mo.Some(rule)
}

// ContinueFrom returns the rule for a new series starting at occ and moved
// to newStart: COUNT keeps the remaining instances, UNTIL is fixed up when
// newStart moved past it.
func ContinueFrom(rule rrule.ROption, occ Occurrence, newStart time.Time, allDay bool) rrule.ROption {
	rule.Dtstart = time.Time{}
	if rule.Count > 0 {
		rule.Count -= occ.Ordinal
		if rule.Count < 1 {
			rule.Count = 1
		}
		return rule
	}
	return GetSafeRruleUntil(rule, newStart, allDay)
}
