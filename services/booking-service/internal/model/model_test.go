package model

import (
	"errors"
	"testing"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
)

func TestFillDefaults(t *testing.T) {
	s := SalonSettings{
		Timezone: "UTC",
		BusinessHours: availability.BusinessHours{
			time.Sunday: {IsOpen: false},
		},
	}
	s.FillDefaults()

	if len(s.BusinessHours) != 7 {
		t.Fatalf("expected 7 weekdays, got %d", len(s.BusinessHours))
	}
	if s.BusinessHours[time.Sunday].IsOpen {
		t.Fatal("explicit closed day must be kept")
	}
	if got := s.BusinessHours[time.Monday]; got != DefaultDayHours() {
		t.Fatalf("expected default monday, got %+v", got)
	}
	if s.BookingDeadlineMinutes != 30 {
		t.Fatalf("expected default deadline 30, got %d", s.BookingDeadlineMinutes)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	s := SalonSettings{Timezone: "UTC"}
	s.FillDefaults()
	s.BusinessHours[time.Friday] = availability.DayHours{IsOpen: true, Start: "20:00", End: "10:00"}
	if err := s.Validate(); !errors.Is(err, availability.ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}

	s.FillDefaults()
	s.BusinessHours[time.Friday] = DefaultDayHours()
	s.SpecialHolidays = []string{"2026/12/31"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected holiday format error")
	}

	s.SpecialHolidays = nil
	s.Timezone = "Not/AZone"
	if err := s.Validate(); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestSelectionTotals(t *testing.T) {
	sel := Selection{
		{ID: "cut", DurationMinutes: 60, Price: 5000},
		{ID: "color", DurationMinutes: 90, Price: 8000, PricePrefix: true},
	}
	if sel.TotalDuration() != 150 {
		t.Fatalf("expected 150 minutes, got %d", sel.TotalDuration())
	}
	if sel.TotalPrice() != 13000 {
		t.Fatalf("expected 13000, got %d", sel.TotalPrice())
	}
	if !sel.HasPricePrefix() {
		t.Fatal("expected price prefix")
	}
	if ids := sel.IDs(); len(ids) != 2 || ids[0] != "cut" || ids[1] != "color" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestBusyIntervals(t *testing.T) {
	day := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	reservations := []Reservation{
		{Status: StatusConfirmed, StartTime: day.Add(10 * time.Hour), EndTime: day.Add(11 * time.Hour)},
		{Status: StatusUnavailable, StartTime: day.Add(12 * time.Hour), EndTime: day.Add(12*time.Hour + 30*time.Minute)},
		{Status: StatusCompleted, StartTime: day.Add(9 * time.Hour), EndTime: day.Add(10 * time.Hour)},
		{Status: StatusCancelled, StartTime: day.Add(14 * time.Hour), EndTime: day.Add(15 * time.Hour)},
		{Status: StatusConfirmed, IsConsultation: true, StartTime: day, EndTime: day},
	}
	busy := BusyIntervals(reservations)
	if len(busy) != 3 {
		t.Fatalf("expected 3 blocking intervals, got %d", len(busy))
	}
}
