package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/outbox"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type BookingHandler struct {
	settings     SettingsStore
	menus        MenuStore
	reservations ReservationStore
	events       EventWriter
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
}

func NewBookingHandler(settings SettingsStore, menus MenuStore, reservations ReservationStore, events EventWriter, notifier Notifier, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		settings:     settings,
		menus:        menus,
		reservations: reservations,
		events:       events,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

type createBookingRequest struct {
	SalonID         string   `json:"salon_id"`
	MenuIDs         []string `json:"menu_ids"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Consultation    bool     `json:"consultation"`
	CustomerID      string   `json:"customer_id"`
	CustomerName    string   `json:"customer_name"`
	LineDisplayName string   `json:"line_display_name"`
	UserRequests    string   `json:"user_requests"`
}

type createBookingResponse struct {
	ReservationID string          `json:"reservation_id"`
	Reservation   reservationView `json:"reservation"`
	PricePrefix   bool            `json:"price_prefix"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SalonID = strings.TrimSpace(req.SalonID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.SalonID == "" || req.CustomerID == "" || req.CustomerName == "" || len(req.MenuIDs) == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if !req.Consultation && strings.TrimSpace(req.Time) == "" {
		http.Error(w, "time required unless consultation", http.StatusBadRequest)
		return
	}

	sc, ok := loadSalon(w, r, h.settings, req.SalonID, h.now())
	if !ok {
		return
	}
	sel, ok := loadSelection(w, r, h.menus, req.SalonID, req.MenuIDs)
	if !ok {
		return
	}
	day, err := availability.ParseDate(req.Date, sc.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	res := &model.Reservation{
		SalonID:         req.SalonID,
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		LineDisplayName: strings.TrimSpace(req.LineDisplayName),
		Menus:           model.ReservedMenus(sel),
		UserRequests:    strings.TrimSpace(req.UserRequests),
		IsConsultation:  req.Consultation,
		Status:          model.StatusConfirmed,
		CreatedBy:       model.CreatedByCustomer,
	}
	var start availability.Clock
	if req.Consultation {
		res.StartTime, res.EndTime = day, day
	} else {
		start, err = availability.ParseClock(req.Time)
		if err != nil {
			http.Error(w, "invalid time", http.StatusBadRequest)
			return
		}
		res.StartTime = start.On(day)
		res.EndTime = res.StartTime.Add(time.Duration(sel.TotalDuration()) * time.Minute)
	}

	ctx, span := otel.Tracer("booking").Start(r.Context(), "reservation.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.id", req.SalonID),
		attribute.Bool("reservation.consultation", req.Consultation),
		attribute.Int("booking.duration_minutes", sel.TotalDuration()),
	)
	r = r.WithContext(ctx)

	tx, err := h.reservations.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.reservations.LockIdempotencyKey(ctx, tx, req.SalonID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			replayIdempotent(w, rec.StatusCode, rec.ResponsePayload)
			return
		}
	}

	reject := func(status int, msg string) {
		if idempotencyKey != "" && h.finalizeIdempotencyError(ctx, tx, req.SalonID, idempotencyKey, status, msg) {
			_ = tx.Commit(ctx)
		}
		http.Error(w, msg, status)
	}

	if req.Consultation {
		if !availability.IsDayBookable(day, sc.policy, sc.now) {
			reject(http.StatusUnprocessableEntity, "day is not bookable")
			return
		}
	} else {
		offered, err := slotOffered(r, h.reservations, sc, req.SalonID, day, start, sel.TotalDuration())
		if err != nil {
			http.Error(w, "failed to load reservations", http.StatusInternalServerError)
			return
		}
		if !offered {
			reject(http.StatusConflict, "slot is no longer available")
			return
		}
	}

	if err := h.reservations.Create(ctx, tx, res); err != nil {
		if storage.IsConflict(err) {
			// The exclusion constraint aborted the transaction; nothing more can be written in it.
			http.Error(w, "slot is no longer available", http.StatusConflict)
			return
		}
		span.RecordError(err)
		http.Error(w, "failed to create reservation", http.StatusInternalServerError)
		return
	}

	evt, err := outbox.NewReservationEvent(outbox.ReservationCreated, *res, h.now())
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.events.Insert(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{
		ReservationID: res.ID,
		Reservation:   newReservationView(*res, sc.loc),
		PricePrefix:   sel.HasPricePrefix(),
	})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.reservations.FinalizeIdempotency(ctx, tx, req.SalonID, idempotencyKey, res.ID, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(req.SalonID)
	}
	h.logger.Info("reservation created",
		"salon_id", req.SalonID,
		"reservation_id", res.ID,
		"consultation", res.IsConsultation,
		"start_time", res.StartTime.Format(time.RFC3339),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

// replayIdempotent writes a stored answer the way it was first written: successes as
// JSON, rejections as the plain text http.Error produced.
func replayIdempotent(w http.ResponseWriter, status int, payload []byte) {
	if status == http.StatusCreated {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
	}
	w.WriteHeader(status)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
	}
}

// finalizeIdempotencyError stores a rejection so a retry with the same key gets the same answer.
func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, salonID, key string, status int, msg string) bool {
	body := []byte(msg + "\n")
	if err := h.reservations.FinalizeIdempotency(ctx, tx, salonID, key, "", status, body); err != nil {
		h.logger.Warn("failed to finalize idempotency error", "err", err)
		return false
	}
	return true
}

// History lists a customer's reservations, newest first.
func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	salonID := strings.TrimSpace(r.URL.Query().Get("salon_id"))
	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if salonID == "" || customerID == "" {
		http.Error(w, "salon_id and customer_id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	sc, ok := loadSalon(w, r, h.settings, salonID, h.now())
	if !ok {
		return
	}
	list, err := h.reservations.ListByCustomer(r.Context(), salonID, customerID, limit)
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
