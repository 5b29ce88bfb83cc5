package outbox

import (
	"encoding/json"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
)

// Topic names. The Kafka topic equals the event type.
const (
	ReservationCreated   = "salon.reservation.created.v1"
	ReservationBlocked   = "salon.reservation.blocked.v1"
	ReservationUpdated   = "salon.reservation.updated.v1"
	ReservationCancelled = "salon.reservation.cancelled.v1"
	ReservationCompleted = "salon.reservation.completed.v1"
	SettingsUpdated      = "salon.settings.updated.v1"
)

// ReservationTopics are the events that change a salon's busy set.
var ReservationTopics = []string{ReservationCreated, ReservationBlocked, ReservationUpdated, ReservationCancelled, ReservationCompleted}

type Event struct {
	SalonID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// ReservationPayload is the body of every salon.reservation.* event.
type ReservationPayload struct {
	ReservationID   string               `json:"reservation_id"`
	SalonID         string               `json:"salon_id"`
	CustomerID      string               `json:"customer_id,omitempty"`
	CustomerName    string               `json:"customer_name,omitempty"`
	LineDisplayName string               `json:"line_display_name,omitempty"`
	Menus           []model.ReservedMenu `json:"menus,omitempty"`
	StartTime       string               `json:"start_time"`
	EndTime         string               `json:"end_time"`
	IsConsultation  bool                 `json:"is_consultation"`
	UserRequests    string               `json:"user_requests,omitempty"`
	AdminNotes      string               `json:"admin_notes,omitempty"`
	Status          string               `json:"status"`
	CreatedBy       string               `json:"created_by"`
	OccurredAt      string               `json:"occurred_at"`
}

func NewReservationEvent(eventType string, res model.Reservation, at time.Time) (Event, error) {
	payload, err := json.Marshal(ReservationPayload{
		ReservationID:   res.ID,
		SalonID:         res.SalonID,
		CustomerID:      res.CustomerID,
		CustomerName:    res.CustomerName,
		LineDisplayName: res.LineDisplayName,
		Menus:           res.Menus,
		StartTime:       res.StartTime.UTC().Format(time.RFC3339),
		EndTime:         res.EndTime.UTC().Format(time.RFC3339),
		IsConsultation:  res.IsConsultation,
		UserRequests:    res.UserRequests,
		AdminNotes:      res.AdminNotes,
		Status:          res.Status,
		CreatedBy:       res.CreatedBy,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		SalonID:       res.SalonID,
		AggregateType: "reservation",
		AggregateID:   res.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

func NewSettingsEvent(s model.SalonSettings, at time.Time) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"salon_id":                 s.SalonID,
		"timezone":                 s.Timezone,
		"business_hours":           s.BusinessHours,
		"special_holidays":         s.SpecialHolidays,
		"booking_deadline_minutes": s.BookingDeadlineMinutes,
		"occurred_at":              at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		SalonID:       s.SalonID,
		AggregateType: "salon",
		AggregateID:   s.SalonID,
		EventType:     SettingsUpdated,
		Payload:       payload,
	}, nil
}
