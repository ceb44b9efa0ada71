package strategy

import "time"

// Debouncer lets the signal be evaluated at most once per calendar minute, and only
// after Settle has passed since the minute began so the previous bar has closed upstream.
type Debouncer struct {
	Settle time.Duration
	last   time.Time
}

func (d *Debouncer) Ready(now time.Time) bool {
	minute := now.Truncate(time.Minute)
	if !d.last.IsZero() && !minute.After(d.last) {
		return false
	}
	if now.Sub(minute) < d.Settle {
		return false
	}
	d.last = minute
	return true
}
