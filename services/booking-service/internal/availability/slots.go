package availability

import "time"

// SlotStep is the spacing between candidate start times.
const SlotStep = 30 * time.Minute

const DefaultDeadlineMinutes = 30

type Interval struct {
	Start time.Time
	End   time.Time
}

// Policy is the salon configuration the calculator reads.
type Policy struct {
	Hours           BusinessHours
	Holidays        Holidays
	DeadlineMinutes int
}

// Deadline is the minimum lead time before a slot may be booked.
func (p Policy) Deadline() time.Duration {
	mins := p.DeadlineMinutes
	if mins <= 0 {
		mins = DefaultDeadlineMinutes
	}
	return time.Duration(mins) * time.Minute
}

// Cutoff is the earliest bookable slot start for a computation running at now.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(p.Deadline())
}

// IsDayBookable reports whether day accepts bookings at all: it is not in the past
// relative to now's calendar day, its weekday is open, and it is not a holiday.
// Reservations are not considered.
func IsDayBookable(day time.Time, p Policy, now time.Time) bool {
	day = startOfDay(day)
	if day.Before(startOfDay(now.In(day.Location()))) {
		return false
	}
	if _, _, ok := p.Hours.open(day.Weekday()); !ok {
		return false
	}
	return !p.Holidays.Contains(DateKey(day))
}

// ComputeWeekSlots returns, for every date in week, the ascending "HH:MM" start times
// where a booking of durationMinutes fits the day's hours, overlaps no busy interval
// and starts no earlier than now plus the booking deadline.
//
// Every date of the week is present in the result; closed days map to an empty list.
func ComputeWeekSlots(week Week, p Policy, busy []Interval, durationMinutes int, now time.Time) map[string][]string {
	cutoff := p.Cutoff(now)
	out := make(map[string][]string, 7)
	for _, day := range week.Days() {
		key := DateKey(day)
		if durationMinutes <= 0 || !IsDayBookable(day, p, now) {
			out[key] = []string{}
			continue
		}
		out[key] = DaySlots(day, p, busy, durationMinutes, cutoff)
	}
	return out
}

// DaySlots enumerates slot starts for a single open day. The caller decides whether
// the day is bookable; cutoff is the earliest allowed start.
func DaySlots(day time.Time, p Policy, busy []Interval, durationMinutes int, cutoff time.Time) []string {
	slots := []string{}
	if durationMinutes <= 0 {
		return slots
	}
	opening, closing, ok := p.Hours.open(day.Weekday())
	if !ok {
		return slots
	}

	// Candidates step in wall-clock minutes so a DST change never shifts
	// them off the opening time or past closing.
	step := Clock(SlotStep / time.Minute)
	length := Clock(durationMinutes)
	for c := opening; c+length <= closing; c += step {
		start := c.On(day)
		if start.Before(cutoff) {
			continue
		}
		if !overlapsAny(start, (c + length).On(day), busy) {
			slots = append(slots, c.String())
		}
	}
	return slots
}

// ConsultationDays reports, per date in week, whether an untimed consultation may be requested.
func ConsultationDays(week Week, p Policy, now time.Time) map[string]bool {
	out := make(map[string]bool, 7)
	for _, day := range week.Days() {
		out[DateKey(day)] = IsDayBookable(day, p, now)
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open: touching endpoints do not overlap.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
