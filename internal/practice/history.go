package practice

import (
	"time"

	"github.com/wisemama/wisemama/internal/storage"
)

// DateRange is the date facet of the history filter.
type DateRange string

const (
	RangeAll        DateRange = "all"
	RangeToday      DateRange = "today"
	RangeLast7Days  DateRange = "7d"
	RangeLast30Days DateRange = "30d"
)

// CardScope is the card facet of the history filter.
type CardScope string

const (
	ScopeCurrentCard CardScope = "current"
	ScopeAllCards    CardScope = "all"
)

// HistoryFilter selects which kept attempts a history view shows. The two
// facets compose by logical AND.
type HistoryFilter struct {
	Dates DateRange
	Cards CardScope
}

// DefaultFilter is the state a freshly opened panel starts with.
func DefaultFilter() HistoryFilter {
	return HistoryFilter{Dates: RangeAll, Cards: ScopeCurrentCard}
}

// dateThreshold returns the inclusive lower bound for r, relative to now.
// "today" means local midnight; the rolling ranges are exact windows.
func dateThreshold(r DateRange, now time.Time) (time.Time, bool) {
	switch r {
	case RangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case RangeLast7Days:
		return now.Add(-7 * 24 * time.Hour), true
	case RangeLast30Days:
		return now.Add(-30 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// FilterHistory returns the attempts that belong in a history view: only
// kept attempts, restricted to the date range relative to now, newest-first
// order preserved from the input.
func FilterHistory(attempts []storage.Attempt, dates DateRange, now time.Time) []storage.Attempt {
	threshold, bounded := dateThreshold(dates, now)

	var out []storage.Attempt
	for _, a := range attempts {
		if !a.Kept {
			continue
		}
		if bounded {
			created, err := time.Parse(time.RFC3339, a.CreatedAt)
			if err != nil || created.Before(threshold) {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}
