// Package coverage computes per-ticker data freshness and date-range gaps.
//
// The gap math is what keeps provider spend minimal: a backfill only fetches
// the sub-ranges the warehouse does not already hold, instead of re-pulling
// whole histories after a partial failure or a split run.
package coverage

import (
	"sort"
	"time"
)

// Interval is an inclusive date range with no stored observations.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Days returns the inclusive length of the interval in days.
func (iv Interval) Days() int {
	return int(iv.End.Sub(iv.Start).Hours()/24) + 1
}

const day = 24 * time.Hour

// MissingIntervals returns the minimal set of sub-ranges of [start, end] not
// covered by the existing observation dates. Existing dates outside the range
// are ignored; duplicates and ordering do not matter. With no existing dates
// the whole range is returned as a single interval. Adjacent existing days
// produce no interval, and every returned interval satisfies Start <= End.
func MissingIntervals(existing []time.Time, start, end time.Time) []Interval {
	start = Day(start)
	end = Day(end)
	if end.Before(start) {
		return nil
	}

	inRange := make([]time.Time, 0, len(existing))
	seen := make(map[time.Time]struct{}, len(existing))
	for _, d := range existing {
		d = Day(d)
		if d.Before(start) || d.After(end) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		inRange = append(inRange, d)
	}

	if len(inRange) == 0 {
		return []Interval{{Start: start, End: end}}
	}

	sort.Slice(inRange, func(i, j int) bool { return inRange[i].Before(inRange[j]) })

	var gaps []Interval

	if first := inRange[0]; start.Before(first) {
		gaps = append(gaps, Interval{Start: start, End: first.Add(-day)})
	}

	for i := 1; i < len(inRange); i++ {
		gapStart := inRange[i-1].Add(day)
		gapEnd := inRange[i].Add(-day)
		if !gapStart.After(gapEnd) {
			gaps = append(gaps, Interval{Start: gapStart, End: gapEnd})
		}
	}

	if last := inRange[len(inRange)-1]; last.Before(end) {
		gaps = append(gaps, Interval{Start: last.Add(day), End: end})
	}

	return gaps
}

// ClampStart shifts the start date forward so the span never exceeds
// clampDays, keeping the end date fixed. Large cold-start backfills are
// capped this way when the fetch plan budgets per-ticker call volume.
func ClampStart(start, end time.Time, clampDays int) time.Time {
	if clampDays <= 0 {
		return start
	}
	start = Day(start)
	end = Day(end)
	if int(end.Sub(start)/day) <= clampDays {
		return start
	}
	return end.Add(-time.Duration(clampDays) * day)
}

// Day truncates a timestamp to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
