package domain

import (
	"sort"
	"time"
)

// Run is a consecutive-day run of activity anchored at the most recent
// active date. A zero Length means the user has no activity at all.
type Run struct {
	Length     int
	LastActive time.Time
}

// ComputeRun walks the distinct activity dates in descending order and
// counts the contiguous run ending at the most recent date. Any gap stops
// the scan; earlier runs in the history are not examined.
func ComputeRun(dates []time.Time) Run {
	if len(dates) == 0 {
		return Run{}
	}

	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		days = append(days, truncateToDay(d))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	run := Run{Length: 1, LastActive: days[0]}
	prev := days[0]
	for _, day := range days[1:] {
		if day.Equal(prev) {
			continue
		}
		if !day.Equal(prev.AddDate(0, 0, -1)) {
			break
		}
		run.Length++
		prev = day
	}
	return run
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
