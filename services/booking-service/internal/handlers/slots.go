package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/feed"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const maxWeekOffset = 52

type SlotsHandler struct {
	settings SettingsStore
	menus    MenuStore
	busy     BusyStore
	hub      *feed.Hub
	logger   *slog.Logger
	now      func() time.Time
	// tick re-evaluates a stream against the clock even when no reservation changes.
	tick time.Duration
}

func NewSlotsHandler(settings SettingsStore, menus MenuStore, busy BusyStore, hub *feed.Hub, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{
		settings: settings,
		menus:    menus,
		busy:     busy,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
		tick:     time.Minute,
	}
}

type menuItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int    `json:"price"`
	PricePrefix     bool   `json:"price_prefix"`
}

type categoryItem struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Menus []menuItem `json:"menus"`
}

func (h *SlotsHandler) Menus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	salonID := strings.TrimSpace(r.URL.Query().Get("salon_id"))
	if salonID == "" {
		http.Error(w, "salon_id required", http.StatusBadRequest)
		return
	}

	categories, err := h.menus.ListCategories(r.Context(), salonID)
	if err != nil {
		http.Error(w, "failed to load menus", http.StatusInternalServerError)
		return
	}
	resp := make([]categoryItem, 0, len(categories))
	for _, c := range categories {
		item := categoryItem{ID: c.ID, Name: c.Name, Menus: make([]menuItem, 0, len(c.Menus))}
		for _, m := range c.Menus {
			item.Menus = append(item.Menus, menuItem{
				ID:              m.ID,
				Name:            m.Name,
				DurationMinutes: m.DurationMinutes,
				Price:           m.Price,
				PricePrefix:     m.PricePrefix,
			})
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

type gridView struct {
	Open  string `json:"open,omitempty"`
	Close string `json:"close,omitempty"`
}

type dayView struct {
	Date                  string   `json:"date"`
	Weekday               string   `json:"weekday"`
	Closed                bool     `json:"closed"`
	ConsultationAvailable bool     `json:"consultation_available"`
	Slots                 []string `json:"slots"`
}

type weekView struct {
	SalonID         string    `json:"salon_id"`
	WeekOffset      int       `json:"week_offset"`
	WeekStart       string    `json:"week_start"`
	WeekEnd         string    `json:"week_end"`
	DurationMinutes int       `json:"duration_minutes"`
	Grid            gridView  `json:"grid"`
	Days            []dayView `json:"days"`
}

func buildWeekView(salonID string, sc salonContext, offset int, week availability.Week, busy []availability.Interval, durationMinutes int) weekView {
	slots := availability.ComputeWeekSlots(week, sc.policy, busy, durationMinutes, sc.now)
	consultation := availability.ConsultationDays(week, sc.policy, sc.now)

	days := week.Days()
	view := weekView{
		SalonID:         salonID,
		WeekOffset:      offset,
		WeekStart:       availability.DateKey(days[0]),
		WeekEnd:         availability.DateKey(days[len(days)-1]),
		DurationMinutes: durationMinutes,
		Days:            make([]dayView, 0, len(days)),
	}
	if opening, closing, ok := availability.GridBounds(sc.policy.Hours); ok {
		view.Grid = gridView{Open: opening.String(), Close: closing.String()}
	}
	for _, day := range days {
		key := availability.DateKey(day)
		view.Days = append(view.Days, dayView{
			Date:                  key,
			Weekday:               day.Weekday().String(),
			Closed:                !consultation[key],
			ConsultationAvailable: consultation[key],
			Slots:                 slots[key],
		})
	}
	return view
}

type slotsQuery struct {
	salonID string
	offset  int
	menuIDs []string
}

func parseSlotsQuery(r *http.Request) (slotsQuery, error) {
	q := slotsQuery{
		salonID: strings.TrimSpace(r.URL.Query().Get("salon_id")),
		menuIDs: splitIDs(r.URL.Query().Get("menu_ids")),
	}
	if q.salonID == "" {
		return q, fmt.Errorf("salon_id required")
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("week_offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxWeekOffset {
			return q, fmt.Errorf("week_offset must be between 0 and %d", maxWeekOffset)
		}
		q.offset = n
	}
	return q, nil
}

func (h *SlotsHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := parseSlotsQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, ok := loadSalon(w, r, h.settings, q.salonID, h.now())
	if !ok {
		return
	}
	sel, ok := loadSelection(w, r, h.menus, q.salonID, q.menuIDs)
	if !ok {
		return
	}

	ctx, span := otel.Tracer("booking").Start(r.Context(), "availability.week")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.id", q.salonID),
		attribute.Int("week.offset", q.offset),
		attribute.Int("booking.duration_minutes", sel.TotalDuration()),
	)

	week := availability.WeekOf(sc.now, q.offset)
	busy, err := h.busy.ListBusy(ctx, q.salonID, week.Start, week.End())
	if err != nil {
		span.RecordError(err)
		http.Error(w, "failed to load reservations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, buildWeekView(q.salonID, sc, q.offset, week, busy, sel.TotalDuration()))
}

// Stream serves the week view as server-sent events. A "week" event is written
// whenever the computed view changes, re-checked on every reservation snapshot
// and on every tick. A tick that crosses into a new week moves the subscription.
func (h *SlotsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	q, err := parseSlotsQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, ok := loadSalon(w, r, h.settings, q.salonID, h.now())
	if !ok {
		return
	}
	sel, ok := loadSelection(w, r, h.menus, q.salonID, q.menuIDs)
	if !ok {
		return
	}
	duration := sel.TotalDuration()

	ctx := r.Context()
	follower := feed.NewFollower(h.hub, q.salonID)
	defer follower.Close()

	week := availability.WeekOf(sc.now, q.offset)
	if err := follower.Switch(ctx, week); err != nil {
		http.Error(w, "failed to load reservations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	var busy []availability.Interval
	var haveSnapshot bool
	var last []byte
	emit := func() bool {
		if !haveSnapshot {
			return true
		}
		view := buildWeekView(q.salonID, sc, q.offset, week, busy, duration)
		body, err := json.Marshal(view)
		if err != nil {
			h.logger.Error("week view encode failed", "err", err)
			return false
		}
		if bytes.Equal(body, last) {
			return true
		}
		last = body
		if _, err := fmt.Fprintf(w, "event: week\ndata: %s\n\n", body); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-follower.C():
			if !ok {
				return
			}
			if !snap.Week.Equal(week) {
				continue
			}
			busy, haveSnapshot = snap.Busy, true
			h.refreshSettings(ctx, q.salonID, &sc)
			if !emit() {
				return
			}
		case <-ticker.C:
			sc.now = h.now().In(sc.loc)
			h.refreshSettings(ctx, q.salonID, &sc)
			if next := availability.WeekOf(sc.now, q.offset); !next.Equal(week) {
				week, haveSnapshot = next, false
				if err := follower.Switch(ctx, week); err != nil {
					h.logger.Warn("stream week switch failed", "salon_id", q.salonID, "err", err)
					return
				}
				continue
			}
			if !emit() {
				return
			}
		}
	}
}

// refreshSettings picks up admin changes; on failure the previous settings stay in use.
func (h *SlotsHandler) refreshSettings(ctx context.Context, salonID string, sc *salonContext) {
	s, err := h.settings.Get(ctx, salonID)
	if err != nil {
		h.logger.Warn("settings refresh failed", "salon_id", salonID, "err", err)
		return
	}
	next, err := newSalonContext(s, h.now())
	if err != nil {
		h.logger.Warn("settings refresh rejected", "salon_id", salonID, "err", err)
		return
	}
	*sc = next
}
