package availability

import (
	"testing"
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

func weekdayHours(start, end string) BusinessHours {
	h := BusinessHours{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		open := wd != time.Sunday && wd != time.Saturday
		h[wd] = DayHours{IsOpen: open, Start: start, End: end}
	}
	return h
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, jst)
}

// 2026-10-18 is a Sunday; 2026-10-19 is the Monday of that week.
func mondayMorning() time.Time { return at(2026, time.October, 19, 9, 0) }

func TestComputeWeekSlots_FirstAndLastSlotOfDay(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "19:00"), DeadlineMinutes: 30}

	slots := ComputeWeekSlots(WeekOf(now, 0), p, nil, 60, now)
	monday := slots["2026-10-19"]
	if len(monday) == 0 {
		t.Fatal("expected monday slots")
	}
	if monday[0] != "10:00" {
		t.Fatalf("expected first slot 10:00, got %s", monday[0])
	}
	if last := monday[len(monday)-1]; last != "18:00" {
		t.Fatalf("expected last slot 18:00, got %s", last)
	}
	if len(monday) != 17 {
		t.Fatalf("expected 17 slots, got %d", len(monday))
	}
}

func TestComputeWeekSlots_ReservationBlocksOverlappingStarts(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "19:00"), DeadlineMinutes: 30}
	busy := []Interval{{Start: at(2026, time.October, 19, 10, 0), End: at(2026, time.October, 19, 11, 0)}}

	monday := ComputeWeekSlots(WeekOf(now, 0), p, busy, 60, now)["2026-10-19"]
	if len(monday) == 0 || monday[0] != "11:00" {
		t.Fatalf("expected first slot 11:00, got %v", monday)
	}
	for _, s := range monday {
		if s == "10:00" || s == "10:30" {
			t.Fatalf("slot %s overlaps the 10:00-11:00 reservation", s)
		}
	}
}

func TestComputeWeekSlots_HolidayIsClosed(t *testing.T) {
	now := mondayMorning()
	p := Policy{
		Hours:    weekdayHours("10:00", "19:00"),
		Holidays: NewHolidays("2026-10-21"),
	}

	slots := ComputeWeekSlots(WeekOf(now, 0), p, nil, 30, now)
	if got := slots["2026-10-21"]; len(got) != 0 {
		t.Fatalf("expected no slots on holiday, got %v", got)
	}
	if got := slots["2026-10-22"]; len(got) == 0 {
		t.Fatal("expected slots the day after the holiday")
	}
}

func TestComputeWeekSlots_ClosedDays(t *testing.T) {
	// Wednesday afternoon: Sunday..Tuesday are past, Saturday is closed.
	now := at(2026, time.October, 21, 15, 0)
	p := Policy{Hours: weekdayHours("10:00", "19:00"), DeadlineMinutes: 30}
	busy := []Interval{{Start: at(2026, time.October, 23, 12, 0), End: at(2026, time.October, 23, 13, 0)}}

	slots := ComputeWeekSlots(WeekOf(now, 0), p, busy, 60, now)
	if len(slots) != 7 {
		t.Fatalf("expected 7 dates, got %d", len(slots))
	}
	for _, date := range []string{"2026-10-18", "2026-10-19", "2026-10-20", "2026-10-24"} {
		if len(slots[date]) != 0 {
			t.Fatalf("expected %s closed, got %v", date, slots[date])
		}
	}
	if got := slots["2026-10-21"]; len(got) == 0 || got[0] != "15:30" {
		t.Fatalf("expected today to start at 15:30, got %v", got)
	}
}

func TestComputeWeekSlots_ZeroDuration(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "19:00")}

	slots := ComputeWeekSlots(WeekOf(now, 1), p, nil, 0, now)
	if len(slots) != 7 {
		t.Fatalf("expected 7 dates, got %d", len(slots))
	}
	for date, s := range slots {
		if s == nil || len(s) != 0 {
			t.Fatalf("expected empty list for %s, got %v", date, s)
		}
	}
}

func TestComputeWeekSlots_Invariants(t *testing.T) {
	now := at(2026, time.October, 20, 13, 10)
	hours := weekdayHours("09:30", "18:00")
	hours[time.Saturday] = DayHours{IsOpen: true, Start: "10:00", End: "16:00"}
	p := Policy{Hours: hours, DeadlineMinutes: 45}
	busy := []Interval{
		{Start: at(2026, time.October, 20, 14, 0), End: at(2026, time.October, 20, 15, 30)},
		{Start: at(2026, time.October, 22, 9, 30), End: at(2026, time.October, 22, 10, 0)},
		{Start: at(2026, time.October, 24, 12, 15), End: at(2026, time.October, 24, 12, 45)},
	}
	const duration = 90

	week := WeekOf(now, 0)
	cutoff := now.Add(45 * time.Minute)
	slots := ComputeWeekSlots(week, p, busy, duration, now)
	for _, day := range week.Days() {
		list := slots[DateKey(day)]
		_, closing, _ := hours.open(day.Weekday())
		var prev time.Time
		for i, s := range list {
			c, err := ParseClock(s)
			if err != nil {
				t.Fatalf("bad slot %q: %v", s, err)
			}
			start := c.On(day)
			end := start.Add(duration * time.Minute)
			if i > 0 && !start.After(prev) {
				t.Fatalf("%s: slots not ascending at %s", DateKey(day), s)
			}
			prev = start
			if start.Before(cutoff) {
				t.Fatalf("%s %s: starts before deadline", DateKey(day), s)
			}
			if end.After(closing.On(day)) {
				t.Fatalf("%s %s: runs past closing", DateKey(day), s)
			}
			for _, b := range busy {
				if start.Before(b.End) && end.After(b.Start) {
					t.Fatalf("%s %s: overlaps reservation", DateKey(day), s)
				}
			}
		}
	}
}

func TestComputeWeekSlots_TouchingReservationAllowed(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "12:00")}
	busy := []Interval{{Start: at(2026, time.October, 20, 11, 0), End: at(2026, time.October, 20, 12, 0)}}

	tuesday := ComputeWeekSlots(WeekOf(now, 0), p, busy, 60, now)["2026-10-20"]
	if len(tuesday) != 1 || tuesday[0] != "10:00" {
		t.Fatalf("expected only 10:00, got %v", tuesday)
	}
}

func TestComputeWeekSlots_ConsultationDoesNotBlock(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "12:00")}
	midnight := at(2026, time.October, 20, 0, 0)
	busy := []Interval{{Start: midnight, End: midnight}}

	tuesday := ComputeWeekSlots(WeekOf(now, 0), p, busy, 30, now)["2026-10-20"]
	if len(tuesday) != 4 {
		t.Fatalf("expected 4 slots, got %v", tuesday)
	}
}

func TestIsDayBookable_FullyBookedDayAllowsConsultation(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "19:00")}
	tuesday := at(2026, time.October, 20, 0, 0)
	busy := []Interval{{Start: at(2026, time.October, 20, 10, 0), End: at(2026, time.October, 20, 19, 0)}}

	if slots := ComputeWeekSlots(WeekOf(now, 0), p, busy, 30, now)["2026-10-20"]; len(slots) != 0 {
		t.Fatalf("expected fully booked day, got %v", slots)
	}
	if !IsDayBookable(tuesday, p, now) {
		t.Fatal("expected consultation to stay available on a fully booked open day")
	}
	if !ConsultationDays(WeekOf(now, 0), p, now)["2026-10-20"] {
		t.Fatal("expected consultation flag for 2026-10-20")
	}
}

func TestIsDayBookable(t *testing.T) {
	now := at(2026, time.October, 21, 18, 59)
	p := Policy{Hours: weekdayHours("10:00", "19:00"), Holidays: NewHolidays("2026-10-23")}

	cases := []struct {
		day  time.Time
		want bool
	}{
		{at(2026, time.October, 20, 0, 0), false}, // past
		{at(2026, time.October, 21, 0, 0), true},  // today
		{at(2026, time.October, 22, 0, 0), true},
		{at(2026, time.October, 23, 0, 0), false}, // holiday
		{at(2026, time.October, 24, 0, 0), false}, // saturday
	}
	for _, tc := range cases {
		if got := IsDayBookable(tc.day, p, now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", DateKey(tc.day), tc.want, got)
		}
	}
}

func TestDeadlineDefaultsToThirtyMinutes(t *testing.T) {
	now := at(2026, time.October, 19, 10, 0)
	p := Policy{Hours: weekdayHours("10:00", "12:00")}

	monday := ComputeWeekSlots(WeekOf(now, 0), p, nil, 30, now)["2026-10-19"]
	if len(monday) == 0 || monday[0] != "10:30" {
		t.Fatalf("expected first slot 10:30, got %v", monday)
	}
}

func TestDeadlineBoundaryIsInclusive(t *testing.T) {
	now := at(2026, time.October, 19, 10, 30)
	p := Policy{Hours: weekdayHours("10:00", "12:00"), DeadlineMinutes: 30}

	monday := ComputeWeekSlots(WeekOf(now, 0), p, nil, 30, now)["2026-10-19"]
	if len(monday) == 0 || monday[0] != "11:00" {
		t.Fatalf("expected first slot 11:00, got %v", monday)
	}
}

func TestSlotExcludedWhenCrossingClose(t *testing.T) {
	now := mondayMorning()
	p := Policy{Hours: weekdayHours("10:00", "11:45")}

	tuesday := ComputeWeekSlots(WeekOf(now, 0), p, nil, 60, now)["2026-10-20"]
	want := []string{"10:00", "10:30"}
	if len(tuesday) != len(want) {
		t.Fatalf("expected %v, got %v", want, tuesday)
	}
	for i := range want {
		if tuesday[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tuesday)
		}
	}
}
