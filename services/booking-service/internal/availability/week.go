package availability

import "time"

// Week is the Sunday-aligned window [Start, Start+7d).
type Week struct {
	Start time.Time
}

// WeekOf returns the week containing now, shifted by offset weeks.
// Start is 00:00 of that Sunday in now's location.
func WeekOf(now time.Time, offset int) Week {
	y, m, d := now.Date()
	sunday := time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, now.Location())
	return Week{Start: sunday.AddDate(0, 0, 7*offset)}
}

func (w Week) End() time.Time {
	return w.Start.AddDate(0, 0, 7)
}

// Days returns midnight of each of the seven dates in order.
func (w Week) Days() []time.Time {
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = w.Start.AddDate(0, 0, i)
	}
	return days
}

func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

func (w Week) Equal(other Week) bool {
	return w.Start.Equal(other.Start)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
