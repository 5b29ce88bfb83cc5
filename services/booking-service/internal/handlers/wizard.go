package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/wizard"
)

type WizardHandler struct {
	settings SettingsStore
	menus    MenuStore
	busy     BusyStore
	now      func() time.Time
}

func NewWizardHandler(settings SettingsStore, menus MenuStore, busy BusyStore) *WizardHandler {
	return &WizardHandler{settings: settings, menus: menus, busy: busy, now: time.Now}
}

type wizardEvent struct {
	Type          string   `json:"type"`
	MenuIDs       []string `json:"menu_ids"`
	WeekOffset    int      `json:"week_offset"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	UserRequests  string   `json:"user_requests"`
	ReservationID string   `json:"reservation_id"`
}

type wizardRequest struct {
	SalonID string        `json:"salon_id"`
	State   *wizard.State `json:"state"`
	Event   wizardEvent   `json:"event"`
}

type wizardSummary struct {
	Menus           []model.ReservedMenu `json:"menus"`
	DurationMinutes int                  `json:"duration_minutes"`
	TotalPrice      int                  `json:"total_price"`
	PricePrefix     bool                 `json:"price_prefix"`
}

type wizardResponse struct {
	State   wizard.State   `json:"state"`
	Summary *wizardSummary `json:"summary,omitempty"`
}

// Advance applies one event to the client-held state. Slot and consultation picks are
// checked against the salon's current availability before the transition runs.
func (h *WizardHandler) Advance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req wizardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SalonID = strings.TrimSpace(req.SalonID)
	state := wizard.New()
	if req.State != nil {
		state = *req.State
	}

	sc, ok := loadSalon(w, r, h.settings, req.SalonID, h.now())
	if !ok {
		return
	}
	if !h.refreshSelection(w, r, req.SalonID, &state) {
		return
	}

	var event wizard.Event
	switch strings.TrimSpace(req.Event.Type) {
	case "select_menus":
		sel, ok := loadSelection(w, r, h.menus, req.SalonID, req.Event.MenuIDs)
		if !ok {
			return
		}
		event = wizard.SelectMenus{IDs: sel.IDs(), DurationMinutes: sel.TotalDuration()}
	case "proceed_to_slots":
		event = wizard.ProceedToSlots{}
	case "change_week":
		if req.Event.WeekOffset > maxWeekOffset {
			http.Error(w, "week_offset too far ahead", http.StatusBadRequest)
			return
		}
		event = wizard.ChangeWeek{Offset: req.Event.WeekOffset}
	case "pick_slot":
		if state.Step == wizard.StepSlotSelection && !h.checkSlot(w, r, sc, req.SalonID, state, req.Event) {
			return
		}
		event = wizard.PickSlot{Date: req.Event.Date, Time: req.Event.Time}
	case "pick_consultation":
		day, err := availability.ParseDate(req.Event.Date, sc.loc)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		if state.Step == wizard.StepSlotSelection && !availability.IsDayBookable(day, sc.policy, sc.now) {
			http.Error(w, "day is not bookable", http.StatusUnprocessableEntity)
			return
		}
		event = wizard.PickConsultation{Date: availability.DateKey(day)}
	case "confirm":
		event = wizard.Confirm{UserRequests: req.Event.UserRequests}
	case "back":
		event = wizard.Back{}
	case "submit":
		event = wizard.Submit{ReservationID: strings.TrimSpace(req.Event.ReservationID)}
	default:
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	next, err := wizard.Transition(state, event)
	if err != nil {
		switch {
		case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, wizard.ErrFinished):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		}
		return
	}

	resp := wizardResponse{State: next}
	if len(next.MenuIDs) > 0 {
		sel, ok := loadSelection(w, r, h.menus, req.SalonID, next.MenuIDs)
		if !ok {
			return
		}
		resp.Summary = &wizardSummary{
			Menus:           model.ReservedMenus(sel),
			DurationMinutes: sel.TotalDuration(),
			TotalPrice:      sel.TotalPrice(),
			PricePrefix:     sel.HasPricePrefix(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// refreshSelection replaces the client's duration with one computed from its menu ids.
// Once past menu selection the state must carry a non-empty selection.
func (h *WizardHandler) refreshSelection(w http.ResponseWriter, r *http.Request, salonID string, state *wizard.State) bool {
	if state.Step == wizard.StepSubmitted {
		return true
	}
	if state.WeekOffset < 0 || state.WeekOffset > maxWeekOffset {
		http.Error(w, "week_offset out of range", http.StatusUnprocessableEntity)
		return false
	}
	sel, ok := loadSelection(w, r, h.menus, salonID, state.MenuIDs)
	if !ok {
		return false
	}
	if state.Step != wizard.StepMenuSelection && (len(sel) == 0 || sel.TotalDuration() <= 0) {
		http.Error(w, "menu selection required", http.StatusUnprocessableEntity)
		return false
	}
	state.MenuIDs = sel.IDs()
	state.DurationMinutes = sel.TotalDuration()
	return true
}

func (h *WizardHandler) checkSlot(w http.ResponseWriter, r *http.Request, sc salonContext, salonID string, state wizard.State, ev wizardEvent) bool {
	day, err := availability.ParseDate(ev.Date, sc.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return false
	}
	start, err := availability.ParseClock(ev.Time)
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return false
	}
	if !availability.WeekOf(sc.now, state.WeekOffset).Contains(day) {
		http.Error(w, "date is outside the visible week", http.StatusBadRequest)
		return false
	}
	offered, err := slotOffered(r, h.busy, sc, salonID, day, start, state.DurationMinutes)
	if err != nil {
		http.Error(w, "failed to load reservations", http.StatusInternalServerError)
		return false
	}
	if !offered {
		http.Error(w, "slot is no longer available", http.StatusConflict)
		return false
	}
	return true
}
