package coverage

import "time"

// State classifies a ticker's stored history for cheap batch triage. It is a
// coarse per-ticker screen run before the more expensive interval
// computation, which only happens for tickers that need work.
type State string

const (
	// NoHistory means the warehouse holds no observations at all.
	NoHistory State = "no_history"
	// Stale means the newest observation is older than the staleness window.
	Stale State = "stale"
	// Incomplete means recent data exists but the history is shorter than
	// the minimum record count.
	Incomplete State = "incomplete"
	// Fresh means nothing needs fetching.
	Fresh State = "fresh"
)

// Thresholds holds the classification knobs.
type Thresholds struct {
	StaleDays  int
	MinRecords int
}

// Classify applies the freshness rules in priority order; the first match
// wins. lastDate is nil when the ticker has no stored observations.
func Classify(today time.Time, lastDate *time.Time, recordCount int, th Thresholds) State {
	if lastDate == nil {
		return NoHistory
	}
	ageDays := int(Day(today).Sub(Day(*lastDate)) / day)
	if ageDays > th.StaleDays {
		return Stale
	}
	if recordCount < th.MinRecords {
		return Incomplete
	}
	return Fresh
}

// NeedsFetch reports whether a classified state requires any gathering work.
func NeedsFetch(s State) bool {
	return s != Fresh
}
