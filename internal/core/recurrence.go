// Next-occurrence arithmetic for recurring rules.
//
// Two variants exist on purpose. NextRun advances from the rule's stored
// anchor and is used by the batch runner after a rule fires. FirstRun
// re-anchors against the current clock and is used when a rule is created,
// edited or reactivated, so the first occurrence is always strictly in the
// future. Both return start-of-day timestamps in UTC.

package core

import "time"

// NextRun computes the occurrence after the rule's current anchor. The
// anchor is next_run_at when set, else start_date, else now; it is
// normalized to start of day before any frequency arithmetic. Returns false
// for inactive rules and unknown frequencies.
func NextRun(r Rule, now time.Time) (time.Time, bool) {
	if !r.IsActive {
		return time.Time{}, false
	}
	anchor := StartOfDay(now)
	if r.NextRunAt != nil {
		anchor = StartOfDay(*r.NextRunAt)
	} else if r.StartDate != nil {
		anchor = StartOfDay(*r.StartDate)
	}

	switch r.Frequency {
	case Daily:
		return anchor.AddDate(0, 0, 1), true

	case Weekly:
		target := anchor.Weekday()
		if r.DayOfWeek != nil {
			target = time.Weekday(*r.DayOfWeek)
		}
		// A full week first, then walk to the target weekday. When the
		// target equals the anchor's weekday this still advances seven
		// days, never zero.
		next := anchor.AddDate(0, 0, 7)
		for next.Weekday() != target {
			next = next.AddDate(0, 0, 1)
		}
		return next, true

	case Monthly:
		target := anchor.Day()
		if r.DayOfMonth != nil {
			target = *r.DayOfMonth
		}
		next := addMonthClamped(anchor)
		return clampedDate(next.Year(), next.Month(), target), true

	case Yearly:
		// Feb 29 anchors drift to Mar 1 per plain calendar arithmetic;
		// accepted, not special-cased.
		return anchor.AddDate(1, 0, 0), true

	default:
		return time.Time{}, false
	}
}

// FirstRun computes the first occurrence strictly after now. Used at rule
// creation and on edits to frequency, day-of-week, day-of-month, start_date
// or is_active.
func FirstRun(r Rule, now time.Time) (time.Time, bool) {
	if !r.IsActive {
		return time.Time{}, false
	}
	now = now.UTC()
	today := StartOfDay(now)
	base := today
	if r.StartDate != nil {
		if start := StartOfDay(*r.StartDate); start.After(now) {
			base = start
		}
	}

	switch r.Frequency {
	case Daily:
		if base.After(now) {
			return base, true
		}
		return today.AddDate(0, 0, 1), true

	case Weekly:
		target := base.Weekday()
		if r.DayOfWeek != nil {
			target = time.Weekday(*r.DayOfWeek)
		}
		next := base
		for next.Weekday() != target {
			next = next.AddDate(0, 0, 1)
		}
		for !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next, true

	case Monthly:
		target := base.Day()
		if r.DayOfMonth != nil {
			target = *r.DayOfMonth
		}
		next := clampedDate(base.Year(), base.Month(), target)
		for !next.After(now) {
			next = addMonthClamped(next)
			next = clampedDate(next.Year(), next.Month(), target)
		}
		return next, true

	case Yearly:
		next := today
		if r.StartDate != nil {
			next = StartOfDay(*r.StartDate)
		}
		for !next.After(now) {
			next = next.AddDate(1, 0, 0)
		}
		return next, true

	default:
		return time.Time{}, false
	}
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampedDate builds a start-of-day date with the day capped to the month's
// actual length, so day 31 never spills into the next month.
func clampedDate(year int, month time.Month, day int) time.Time {
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// addMonthClamped advances exactly one calendar month without overflow:
// Jan 31 becomes Feb 28 (or 29), never Mar 2.
func addMonthClamped(t time.Time) time.Time {
	year, month := t.Year(), t.Month()+1
	if month > time.December {
		year, month = year+1, time.January
	}
	return clampedDate(year, month, t.Day())
}
