package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

// splitIDs parses "a,b,,c" into [a b c].
func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// salonContext is the per-request view of a salon's configuration.
type salonContext struct {
	settings model.SalonSettings
	loc      *time.Location
	policy   availability.Policy
	now      time.Time
}

func newSalonContext(s model.SalonSettings, now time.Time) (salonContext, error) {
	s.FillDefaults()
	loc, err := s.Location()
	if err != nil {
		return salonContext{}, err
	}
	return salonContext{settings: s, loc: loc, policy: s.Policy(), now: now.In(loc)}, nil
}

// loadSalon writes the error response itself and reports whether the caller may continue.
func loadSalon(w http.ResponseWriter, r *http.Request, store SettingsStore, salonID string, now time.Time) (salonContext, bool) {
	if salonID == "" {
		http.Error(w, "salon_id required", http.StatusBadRequest)
		return salonContext{}, false
	}
	s, err := store.Get(r.Context(), salonID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "salon not found", http.StatusNotFound)
			return salonContext{}, false
		}
		http.Error(w, "failed to load salon settings", http.StatusInternalServerError)
		return salonContext{}, false
	}
	sc, err := newSalonContext(s, now)
	if err != nil {
		http.Error(w, "salon settings are invalid", http.StatusInternalServerError)
		return salonContext{}, false
	}
	return sc, true
}

func loadSelection(w http.ResponseWriter, r *http.Request, store MenuStore, salonID string, ids []string) (model.Selection, bool) {
	if len(ids) == 0 {
		return model.Selection{}, true
	}
	sel, err := store.GetMenus(r.Context(), salonID, ids)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownMenu) {
			http.Error(w, "unknown menu", http.StatusBadRequest)
			return nil, false
		}
		http.Error(w, "failed to load menus", http.StatusInternalServerError)
		return nil, false
	}
	return sel, true
}

// slotOffered recomputes the slots of day against the current busy set and reports
// whether start is among them.
func slotOffered(r *http.Request, busyStore BusyStore, sc salonContext, salonID string, day time.Time, start availability.Clock, durationMinutes int) (bool, error) {
	if !availability.IsDayBookable(day, sc.policy, sc.now) {
		return false, nil
	}
	busy, err := busyStore.ListBusy(r.Context(), salonID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return false, err
	}
	slots := availability.DaySlots(day, sc.policy, busy, durationMinutes, sc.policy.Cutoff(sc.now))
	return slices.Contains(slots, start.String()), nil
}

type reservationView struct {
	ID              string               `json:"id"`
	SalonID         string               `json:"salon_id"`
	CustomerID      string               `json:"customer_id,omitempty"`
	CustomerName    string               `json:"customer_name,omitempty"`
	LineDisplayName string               `json:"line_display_name,omitempty"`
	Menus           []model.ReservedMenu `json:"menus"`
	Date            string               `json:"date"`
	Time            string               `json:"time,omitempty"`
	StartTime       string               `json:"start_time"`
	EndTime         string               `json:"end_time"`
	TotalPrice      int                  `json:"total_price"`
	UserRequests    string               `json:"user_requests,omitempty"`
	AdminNotes      string               `json:"admin_notes,omitempty"`
	IsConsultation  bool                 `json:"is_consultation"`
	Status          string               `json:"status"`
	CreatedBy       string               `json:"created_by"`
	CreatedAt       string               `json:"created_at,omitempty"`
	CancelledAt     string               `json:"cancelled_at,omitempty"`
}

func newReservationView(res model.Reservation, loc *time.Location) reservationView {
	start := res.StartTime.In(loc)
	v := reservationView{
		ID:              res.ID,
		SalonID:         res.SalonID,
		CustomerID:      res.CustomerID,
		CustomerName:    res.CustomerName,
		LineDisplayName: res.LineDisplayName,
		Menus:           res.Menus,
		Date:            availability.DateKey(start),
		StartTime:       start.Format(time.RFC3339),
		EndTime:         res.EndTime.In(loc).Format(time.RFC3339),
		UserRequests:    res.UserRequests,
		AdminNotes:      res.AdminNotes,
		IsConsultation:  res.IsConsultation,
		Status:          res.Status,
		CreatedBy:       res.CreatedBy,
	}
	if v.Menus == nil {
		v.Menus = []model.ReservedMenu{}
	}
	for _, m := range v.Menus {
		v.TotalPrice += m.Price
	}
	if !res.IsConsultation {
		v.Time = start.Format("15:04")
	}
	if !res.CreatedAt.IsZero() {
		v.CreatedAt = res.CreatedAt.In(loc).Format(time.RFC3339)
	}
	if res.CancelledAt != nil {
		v.CancelledAt = res.CancelledAt.In(loc).Format(time.RFC3339)
	}
	return v
}
