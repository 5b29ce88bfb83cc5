package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
)

const DefaultTimezone = "Asia/Tokyo"

type SalonSettings struct {
	SalonID                string
	Name                   string
	Timezone               string
	BusinessHours          availability.BusinessHours
	SpecialHolidays        []string
	BookingDeadlineMinutes int
	UpdatedAt              time.Time
}

// DefaultDayHours is used for any weekday an admin leaves unset.
func DefaultDayHours() availability.DayHours {
	return availability.DayHours{IsOpen: true, Start: "10:00", End: "20:00"}
}

// FillDefaults completes missing weekdays and the deadline.
func (s *SalonSettings) FillDefaults() {
	if s.BusinessHours == nil {
		s.BusinessHours = availability.BusinessHours{}
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if _, ok := s.BusinessHours[wd]; !ok {
			s.BusinessHours[wd] = DefaultDayHours()
		}
	}
	if s.BookingDeadlineMinutes <= 0 {
		s.BookingDeadlineMinutes = availability.DefaultDeadlineMinutes
	}
	if strings.TrimSpace(s.Timezone) == "" {
		s.Timezone = DefaultTimezone
	}
}

func (s SalonSettings) Validate() error {
	if err := s.BusinessHours.Validate(); err != nil {
		return err
	}
	for _, d := range s.SpecialHolidays {
		if _, err := availability.ParseDate(d, time.UTC); err != nil {
			return fmt.Errorf("special holiday %q: want YYYY-MM-DD", d)
		}
	}
	if s.BookingDeadlineMinutes < 0 {
		return fmt.Errorf("booking deadline must not be negative")
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

func (s SalonSettings) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (s SalonSettings) Policy() availability.Policy {
	return availability.Policy{
		Hours:           s.BusinessHours,
		Holidays:        availability.NewHolidays(s.SpecialHolidays...),
		DeadlineMinutes: s.BookingDeadlineMinutes,
	}
}
