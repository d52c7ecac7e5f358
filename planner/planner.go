/*
Package planner splits a monthly target over the calendar weeks of the
month, weighted by working days, and rebalances the remaining weeks as
realized numbers come in.

REBALANCING RULE:
  Elapsed weeks keep their original proportional share; what they missed
  (or overshot) accumulates into a running deficit. The deficit is spread
  over the remaining weeks proportionally to their working days, and each
  rebalanced week is floored at zero. When no working days remain, the
  deficit stays unresolved rather than being force-assigned anywhere.
*/
package planner

import (
	"time"

	"github.com/shopspring/decimal"
)

// Week is one working segment of a month.
type Week struct {
	Start       time.Time
	End         time.Time // inclusive
	WorkingDays int
}

// WorkingDays counts Monday-Friday days in [start, end], inclusive.
func WorkingDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			n++
		}
	}
	return n
}

// MonthWeeks partitions the month containing anchor into Monday-started
// calendar weeks clipped to the month boundaries.
func MonthWeeks(anchor time.Time) []Week {
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
	last := first.AddDate(0, 1, -1)

	var weeks []Week
	start := first
	for !start.After(last) {
		end := start
		for end.Weekday() != time.Sunday && end.Before(last) {
			end = end.AddDate(0, 0, 1)
		}
		weeks = append(weeks, Week{Start: start, End: end, WorkingDays: WorkingDays(start, end)})
		start = end.AddDate(0, 0, 1)
	}
	return weeks
}

// Redistribute returns the per-week goals for total given realized values
// for elapsed weeks. realized is indexed like weeks; missing entries count
// as zero. A week is elapsed when its end date is before now.
func Redistribute(total decimal.Decimal, weeks []Week, realized []decimal.Decimal, now time.Time) []decimal.Decimal {
	goals := make([]decimal.Decimal, len(weeks))
	totalWd := 0
	for _, w := range weeks {
		totalWd += w.WorkingDays
	}
	if totalWd == 0 {
		totalWd = 1
	}
	daily := total.Div(decimal.NewFromInt(int64(totalWd)))

	deficit := decimal.Zero
	remainingWd := 0
	for i, w := range weeks {
		share := daily.Mul(decimal.NewFromInt(int64(w.WorkingDays)))
		if w.End.Before(now) {
			goals[i] = share
			got := decimal.Zero
			if i < len(realized) {
				got = realized[i]
			}
			deficit = deficit.Add(share.Sub(got))
			continue
		}
		goals[i] = share
		remainingWd += w.WorkingDays
	}

	if remainingWd == 0 || deficit.IsZero() {
		return goals
	}

	rem := decimal.NewFromInt(int64(remainingWd))
	for i, w := range weeks {
		if w.End.Before(now) || w.WorkingDays == 0 {
			continue
		}
		extra := deficit.Mul(decimal.NewFromInt(int64(w.WorkingDays))).Div(rem)
		goals[i] = goals[i].Add(extra)
		if goals[i].IsNegative() {
			goals[i] = decimal.Zero
		}
	}
	return goals
}
