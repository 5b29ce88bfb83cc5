package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
)

func TestNewReservationEvent(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	res := model.Reservation{
		ID:           "7f7a3f59-3f0e-4d5e-9d7a-1c2f0b0f9a10",
		SalonID:      "salon-1",
		CustomerID:   "cust-1",
		CustomerName: "Sato",
		Menus:        []model.ReservedMenu{{ID: "cut", Name: "Cut", Price: 5000, DurationMinutes: 60}},
		StartTime:    time.Date(2026, 10, 20, 10, 0, 0, 0, jst),
		EndTime:      time.Date(2026, 10, 20, 11, 0, 0, 0, jst),
		Status:       model.StatusConfirmed,
		CreatedBy:    model.CreatedByCustomer,
	}

	evt, err := NewReservationEvent(ReservationCreated, res, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewReservationEvent failed: %v", err)
	}
	if evt.EventType != ReservationCreated || evt.AggregateID != res.ID || evt.AggregateType != "reservation" || evt.SalonID != "salon-1" {
		t.Fatalf("unexpected envelope %+v", evt)
	}

	var payload ReservationPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload.StartTime != "2026-10-20T01:00:00Z" {
		t.Fatalf("expected UTC start, got %s", payload.StartTime)
	}
	if payload.SalonID != "salon-1" || len(payload.Menus) != 1 || payload.Menus[0].DurationMinutes != 60 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
