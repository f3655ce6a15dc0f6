package maintenance

import "time"

// Force carries the explicit overrides handed to a tick, used for manual or
// administrative re-runs.
type Force struct {
	UpdateStats bool
	DailyReset  bool
	WeeklyReset bool
}

// Boundaries is the set of time-boundary flags derived from a single
// wall-clock sample. Weekly shares its minute with Daily, and Monthly with
// Midday, so more than one flag can be set on the same tick.
type Boundaries struct {
	Daily   bool
	Weekly  bool
	Midday  bool
	Monthly bool
}

func (b Boundaries) Any() bool { return b.Daily || b.Weekly || b.Midday || b.Monthly }

// Classify derives boundary flags from now (interpreted in UTC).
// Pure; no side effects.
func Classify(now time.Time, force Force) Boundaries {
	now = now.UTC()
	midnight := now.Hour() == 0 && now.Minute() == 0
	noon := now.Hour() == 12 && now.Minute() == 0
	return Boundaries{
		Daily:   midnight || force.DailyReset,
		Weekly:  (now.Weekday() == time.Monday && midnight) || force.WeeklyReset,
		Midday:  noon,
		Monthly: now.Day() == 1 && noon,
	}
}
