package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yhd-salon/salonbook/libs/auth"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/outbox"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/storage"
)

const (
	defaultBlockMinutes = 30
	maxListDays         = 62
)

// AdminHandler serves salon staff. Every route expects claims set by auth.RequireRole;
// the salon is always taken from the token, never from the request.
type AdminHandler struct {
	settings     SettingsStore
	menus        MenuStore
	reservations ReservationStore
	events       EventWriter
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
}

func NewAdminHandler(settings SettingsStore, menus MenuStore, reservations ReservationStore, events EventWriter, notifier Notifier, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		settings:     settings,
		menus:        menus,
		reservations: reservations,
		events:       events,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

func salonFromClaims(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || strings.TrimSpace(claims.SalonID) == "" {
		http.Error(w, "missing salon scope", http.StatusForbidden)
		return "", false
	}
	return claims.SalonID, true
}

type settingsBody struct {
	SalonID                string                     `json:"salon_id"`
	Name                   string                     `json:"name"`
	Timezone               string                     `json:"timezone"`
	BusinessHours          availability.BusinessHours `json:"business_hours"`
	SpecialHolidays        []string                   `json:"special_holidays"`
	BookingDeadlineMinutes int                        `json:"booking_deadline_minutes"`
	UpdatedAt              string                     `json:"updated_at,omitempty"`
}

func newSettingsBody(s model.SalonSettings) settingsBody {
	body := settingsBody{
		SalonID:                s.SalonID,
		Name:                   s.Name,
		Timezone:               s.Timezone,
		BusinessHours:          s.BusinessHours,
		SpecialHolidays:        s.SpecialHolidays,
		BookingDeadlineMinutes: s.BookingDeadlineMinutes,
	}
	if body.SpecialHolidays == nil {
		body.SpecialHolidays = []string{}
	}
	if !s.UpdatedAt.IsZero() {
		body.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return body
}

// Settings handles GET (current settings, defaults for an unconfigured salon) and PUT (replace).
func (h *AdminHandler) Settings(w http.ResponseWriter, r *http.Request) {
	salonID, ok := salonFromClaims(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		s, err := h.settings.Get(r.Context(), salonID)
		if err != nil && !storage.IsNotFound(err) {
			http.Error(w, "failed to load salon settings", http.StatusInternalServerError)
			return
		}
		s.SalonID = salonID
		s.FillDefaults()
		writeJSON(w, http.StatusOK, newSettingsBody(s))
	case http.MethodPut:
		h.putSettings(w, r, salonID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) putSettings(w http.ResponseWriter, r *http.Request, salonID string) {
	var body settingsBody
	if !decodeJSON(w, r, &body) {
		return
	}
	s := model.SalonSettings{
		SalonID:                salonID,
		Name:                   strings.TrimSpace(body.Name),
		Timezone:               strings.TrimSpace(body.Timezone),
		BusinessHours:          body.BusinessHours,
		SpecialHolidays:        body.SpecialHolidays,
		BookingDeadlineMinutes: body.BookingDeadlineMinutes,
	}
	if s.BookingDeadlineMinutes < 0 {
		http.Error(w, "booking_deadline_minutes must not be negative", http.StatusBadRequest)
		return
	}
	s.FillDefaults()
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.settings.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.settings.Upsert(ctx, tx, s); err != nil {
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	evt, err := outbox.NewSettingsEvent(s, h.now())
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.events.Insert(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(salonID)
	}
	h.logger.Info("salon settings updated", "salon_id", salonID)

	s.UpdatedAt = h.now()
	writeJSON(w, http.StatusOK, newSettingsBody(s))
}

// Reservations handles GET (list) and POST (create or edit a customer reservation).
func (h *AdminHandler) Reservations(w http.ResponseWriter, r *http.Request) {
	salonID, ok := salonFromClaims(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.listReservations(w, r, salonID)
	case http.MethodPost:
		h.saveReservation(w, r, salonID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// listReservations lists every reservation starting on dates from..to inclusive.
// Without a range it lists the current week.
func (h *AdminHandler) listReservations(w http.ResponseWriter, r *http.Request, salonID string) {
	sc, ok := loadSalon(w, r, h.settings, salonID, h.now())
	if !ok {
		return
	}

	week := availability.WeekOf(sc.now, 0)
	from, to := week.Start, week.End()
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := availability.ParseDate(raw, sc.loc)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = d
		to = d.AddDate(0, 0, 7)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		d, err := availability.ParseDate(raw, sc.loc)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}
	if to.Sub(from) > maxListDays*24*time.Hour {
		http.Error(w, "range too large", http.StatusBadRequest)
		return
	}

	list, err := h.reservations.ListInRange(r.Context(), salonID, from, to)
	if err != nil {
		http.Error(w, "failed to list reservations", http.StatusInternalServerError)
		return
	}
	items := make([]reservationView, 0, len(list))
	for _, res := range list {
		items = append(items, newReservationView(res, sc.loc))
	}
	writeJSON(w, http.StatusOK, items)
}

type adminReservationRequest struct {
	ReservationID   string   `json:"reservation_id"`
	CustomerID      string   `json:"customer_id"`
	CustomerName    string   `json:"customer_name"`
	LineDisplayName string   `json:"line_display_name"`
	MenuIDs         []string `json:"menu_ids"`
	Date            string   `json:"date"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	UserRequests    string   `json:"user_requests"`
	AdminNotes      string   `json:"admin_notes"`
}

// saveReservation books a customer on staff's behalf, or edits a confirmed booking when
// reservation_id is set. Times are free (not tied to the slot grid or the deadline) but
// the range still may not overlap another blocking reservation. Editing a consultation
// gives it the committed time.
func (h *AdminHandler) saveReservation(w http.ResponseWriter, r *http.Request, salonID string) {
	var req adminReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ReservationID == "" && req.CustomerName == "" {
		http.Error(w, "customer_name required", http.StatusBadRequest)
		return
	}
	if len(req.MenuIDs) == 0 {
		http.Error(w, "menu_ids required", http.StatusBadRequest)
		return
	}

	sc, ok := loadSalon(w, r, h.settings, salonID, h.now())
	if !ok {
		return
	}
	day, err := availability.ParseDate(req.Date, sc.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	startClock, err := availability.ParseClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endClock, err := availability.ParseClock(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if endClock <= startClock {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}
	sel, ok := loadSelection(w, r, h.menus, salonID, req.MenuIDs)
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.reservations.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var res model.Reservation
	eventType := outbox.ReservationCreated
	status := http.StatusCreated
	if req.ReservationID != "" {
		res, err = h.reservations.GetForUpdate(ctx, tx, salonID, req.ReservationID)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "reservation not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load reservation", http.StatusInternalServerError)
			return
		}
		if res.Status != model.StatusConfirmed {
			http.Error(w, "reservation is "+res.Status, http.StatusConflict)
			return
		}
		eventType = outbox.ReservationUpdated
		status = http.StatusOK
	} else {
		res = model.Reservation{
			SalonID:   salonID,
			Status:    model.StatusConfirmed,
			CreatedBy: model.CreatedByAdmin,
		}
	}
	if req.CustomerName != "" {
		res.CustomerID = strings.TrimSpace(req.CustomerID)
		res.CustomerName = req.CustomerName
		res.LineDisplayName = strings.TrimSpace(req.LineDisplayName)
	}
	res.Menus = model.ReservedMenus(sel)
	res.StartTime = startClock.On(day)
	res.EndTime = endClock.On(day)
	res.IsConsultation = false
	res.UserRequests = strings.TrimSpace(req.UserRequests)
	res.AdminNotes = strings.TrimSpace(req.AdminNotes)

	if eventType == outbox.ReservationUpdated {
		err = h.reservations.Update(ctx, tx, &res)
	} else {
		err = h.reservations.Create(ctx, tx, &res)
	}
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time range overlaps a reservation", http.StatusConflict)
			return
		}
		http.Error(w, "failed to save reservation", http.StatusInternalServerError)
		return
	}
	if !h.insertReservationEvent(w, r, tx, eventType, res) {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(salonID)
	}
	h.logger.Info("reservation saved by staff", "salon_id", salonID, "reservation_id", res.ID, "event_type", eventType)
	writeJSON(w, status, newReservationView(res, sc.loc))
}

type blockRequest struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Note            string `json:"note"`
}

// Block marks a time range unavailable. It may start anywhere inside opening hours,
// not only on the slot grid, but it must not overlap a live reservation.
func (h *AdminHandler) Block(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	salonID, ok := salonFromClaims(w, r)
	if !ok {
		return
	}
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultBlockMinutes
	}
	if req.DurationMinutes < 0 || req.DurationMinutes > 24*60 {
		http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
		return
	}

	sc, ok := loadSalon(w, r, h.settings, salonID, h.now())
	if !ok {
		return
	}
	day, err := availability.ParseDate(req.Date, sc.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	start, err := availability.ParseClock(req.Time)
	if err != nil {
		http.Error(w, "invalid time", http.StatusBadRequest)
		return
	}
	res := &model.Reservation{
		SalonID:      salonID,
		Menus:        []model.ReservedMenu{},
		StartTime:    start.On(day),
		UserRequests: strings.TrimSpace(req.Note),
		Status:       model.StatusUnavailable,
		CreatedBy:    model.CreatedByAdmin,
	}
	res.EndTime = res.StartTime.Add(time.Duration(req.DurationMinutes) * time.Minute)

	dh := sc.settings.BusinessHours[day.Weekday()]
	opening, closing, err := dh.Span()
	if !dh.IsOpen || err != nil {
		http.Error(w, "salon is closed that day", http.StatusUnprocessableEntity)
		return
	}
	if res.StartTime.Before(opening.On(day)) || res.EndTime.After(closing.On(day)) {
		http.Error(w, "block must fit within opening hours", http.StatusUnprocessableEntity)
		return
	}

	ctx := r.Context()
	tx, err := h.reservations.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.reservations.Create(ctx, tx, res); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time range overlaps a reservation", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create block", http.StatusInternalServerError)
		return
	}
	if !h.insertReservationEvent(w, r, tx, outbox.ReservationBlocked, *res) {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(salonID)
	}
	writeJSON(w, http.StatusCreated, newReservationView(*res, sc.loc))
}

type reservationActionRequest struct {
	ReservationID string `json:"reservation_id"`
}

var errStatusConflict = errors.New("reservation cannot change to that status")

// Cancel frees a reservation's time range. Cancelling twice returns the cancelled reservation.
func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, model.StatusCancelled, outbox.ReservationCancelled)
}

// Complete records that a confirmed visit took place.
func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, model.StatusCompleted, outbox.ReservationCompleted)
}

func allowedTransition(from, to string) error {
	switch to {
	case model.StatusCancelled:
		if from == model.StatusConfirmed || from == model.StatusUnavailable {
			return nil
		}
	case model.StatusCompleted:
		if from == model.StatusConfirmed {
			return nil
		}
	}
	return errStatusConflict
}

func (h *AdminHandler) changeStatus(w http.ResponseWriter, r *http.Request, status, eventType string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	salonID, ok := salonFromClaims(w, r)
	if !ok {
		return
	}
	var req reservationActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.ReservationID == "" {
		http.Error(w, "reservation_id required", http.StatusBadRequest)
		return
	}
	sc, ok := loadSalon(w, r, h.settings, salonID, h.now())
	if !ok {
		return
	}

	ctx := r.Context()
	tx, err := h.reservations.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := h.reservations.GetForUpdate(ctx, tx, salonID, req.ReservationID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "reservation not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load reservation", http.StatusInternalServerError)
		return
	}
	if res.Status == status {
		writeJSON(w, http.StatusOK, newReservationView(res, sc.loc))
		return
	}
	if err := allowedTransition(res.Status, status); err != nil {
		http.Error(w, "reservation is "+res.Status, http.StatusConflict)
		return
	}

	changedAt, err := h.reservations.UpdateStatus(ctx, tx, salonID, res.ID, status)
	if err != nil {
		http.Error(w, "failed to update reservation", http.StatusInternalServerError)
		return
	}
	res.Status = status
	if status == model.StatusCancelled {
		res.CancelledAt = &changedAt
	}
	if !h.insertReservationEvent(w, r, tx, eventType, res) {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(salonID)
	}
	h.logger.Info("reservation status changed", "salon_id", salonID, "reservation_id", res.ID, "status", status)
	writeJSON(w, http.StatusOK, newReservationView(res, sc.loc))
}

func (h *AdminHandler) insertReservationEvent(w http.ResponseWriter, r *http.Request, tx pgx.Tx, eventType string, res model.Reservation) bool {
	evt, err := outbox.NewReservationEvent(eventType, res, h.now())
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return false
	}
	if err := h.events.Insert(r.Context(), tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return false
	}
	return true
}
