package model

import (
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
)

const (
	StatusConfirmed   = "confirmed"
	StatusUnavailable = "unavailable"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"

	CreatedByCustomer = "customer"
	CreatedByAdmin    = "admin"
)

// ReservedMenu is the menu as it was when the reservation was made.
type ReservedMenu struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Price           int    `json:"price"`
	DurationMinutes int    `json:"duration"`
	PricePrefix     bool   `json:"pricePrefix"`
}

type Reservation struct {
	ID              string
	SalonID         string
	CustomerID      string
	CustomerName    string
	LineDisplayName string
	Menus           []ReservedMenu
	StartTime       time.Time
	EndTime         time.Time
	UserRequests    string
	AdminNotes      string
	IsConsultation  bool
	Status          string
	CreatedBy       string
	CreatedAt       time.Time
	CancelledAt     *time.Time
}

// Blocks reports whether the reservation occupies its time range.
// Consultations carry no committed time and cancelled entries free their range.
func (r Reservation) Blocks() bool {
	return !r.IsConsultation && r.Status != StatusCancelled && r.EndTime.After(r.StartTime)
}

func (r Reservation) Interval() availability.Interval {
	return availability.Interval{Start: r.StartTime, End: r.EndTime}
}

// BusyIntervals returns the spans of reservations that block slots.
func BusyIntervals(reservations []Reservation) []availability.Interval {
	out := make([]availability.Interval, 0, len(reservations))
	for _, r := range reservations {
		if r.Blocks() {
			out = append(out, r.Interval())
		}
	}
	return out
}

func ReservedMenus(sel Selection) []ReservedMenu {
	out := make([]ReservedMenu, 0, len(sel))
	for _, m := range sel {
		out = append(out, ReservedMenu{
			ID:              m.ID,
			Name:            m.Name,
			Price:           m.Price,
			DurationMinutes: m.DurationMinutes,
			PricePrefix:     m.PricePrefix,
		})
	}
	return out
}
