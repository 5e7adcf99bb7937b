// Date-window derivation for reports and budget evaluation.
//
// All arithmetic is done in UTC. Weeks start on Monday. A window is the
// inclusive interval [Start, End] where Start is 00:00:00 of the first day
// and End is the last nanosecond of the last day, so that store-level
// BETWEEN-style queries match the boundary days.

package core

import "time"

const (
	RangeDay   = "day"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// Step granularities for time-series bucketing.
const (
	StepDay Step = iota
	StepMonth
)

type (
	Step int

	Window struct {
		Start time.Time
		End   time.Time
	}

	// PeriodPlan describes how to bucket a window into sample points:
	// the window itself, the step between points and the label layout
	// callers should use to render each point.
	PeriodPlan struct {
		Window      Window
		Step        Step
		LabelLayout string
	}
)

// Contains reports whether t falls inside the inclusive window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func startOfWeek(t time.Time) time.Time {
	d := StartOfDay(t)
	// time.Weekday has Sunday=0; shift so Monday opens the week.
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func startOfYear(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// RangeFor returns the named calendar window bracketing now. Unknown names
// fall back to the month window, mirroring the dashboard's historic default.
func RangeFor(name string, now time.Time) Window {
	switch name {
	case RangeDay:
		return Window{Start: StartOfDay(now), End: EndOfDay(now)}
	case RangeWeek:
		start := startOfWeek(now)
		return Window{Start: start, End: EndOfDay(start.AddDate(0, 0, 6))}
	case RangeYear:
		start := startOfYear(now)
		return Window{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
	case RangeMonth:
		fallthrough
	default:
		start := startOfMonth(now)
		return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
	}
}

// PeriodSetup returns the window plus the bucketing step and label layout
// used to build a time series over the named range.
func PeriodSetup(name string, now time.Time) PeriodPlan {
	w := RangeFor(name, now)
	switch name {
	case RangeDay:
		return PeriodPlan{Window: w, Step: StepDay, LabelLayout: "02-01-2006 15:04:05"}
	case RangeYear:
		return PeriodPlan{Window: w, Step: StepMonth, LabelLayout: "01-2006"}
	default:
		return PeriodPlan{Window: w, Step: StepDay, LabelLayout: "02-01-2006"}
	}
}

// Points returns the inclusive sequence of sample points between the plan's
// start and end, one per step.
func (p PeriodPlan) Points() []time.Time {
	var out []time.Time
	for t := p.Window.Start; !t.After(p.Window.End); {
		out = append(out, t)
		switch p.Step {
		case StepMonth:
			t = t.AddDate(0, 1, 0)
		default:
			t = t.AddDate(0, 0, 1)
		}
	}
	return out
}

// BudgetWindow returns the interval spending is aggregated over for a
// budget. Rolling periods use the current calendar period anchored to now,
// not to the budget's creation date. Custom budgets use their stored bounds,
// defaulting a missing bound to today.
func BudgetWindow(b Budget, now time.Time) Window {
	switch b.Period {
	case PeriodWeekly:
		return RangeFor(RangeWeek, now)
	case PeriodYearly:
		return RangeFor(RangeYear, now)
	case PeriodCustom:
		start := StartOfDay(now)
		if b.StartDate != nil {
			start = StartOfDay(*b.StartDate)
		}
		end := EndOfDay(now)
		if b.EndDate != nil {
			end = EndOfDay(*b.EndDate)
		}
		return Window{Start: start, End: end}
	default:
		return RangeFor(RangeMonth, now)
	}
}
