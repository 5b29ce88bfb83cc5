package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/feed"
)

func newTestSlotsHandler(db *fakeDB, hub *feed.Hub) *SlotsHandler {
	h := NewSlotsHandler(db, db, db, hub, discardLogger())
	h.now = fixedNow
	return h
}

func getWeek(t *testing.T, h *SlotsHandler, query string) weekView {
	t.Helper()
	rw := httptest.NewRecorder()
	h.Slots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?"+query, nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var view weekView
	if err := json.Unmarshal(rw.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode week view: %v", err)
	}
	return view
}

func dayOf(t *testing.T, view weekView, date string) dayView {
	t.Helper()
	for _, d := range view.Days {
		if d.Date == date {
			return d
		}
	}
	t.Fatalf("date %s not in view", date)
	return dayView{}
}

func TestSlotsWeekView(t *testing.T) {
	db := newFakeDB()
	db.add(confirmedAt(tokyoAt(2026, time.October, 19, 10, 0), 60))
	h := newTestSlotsHandler(db, nil)

	view := getWeek(t, h, "salon_id=salon-1&menu_ids=cut")
	if view.WeekStart != "2026-10-18" || view.WeekEnd != "2026-10-24" || len(view.Days) != 7 {
		t.Fatalf("unexpected week %s..%s with %d days", view.WeekStart, view.WeekEnd, len(view.Days))
	}
	if view.DurationMinutes != 60 {
		t.Fatalf("expected 60 minutes, got %d", view.DurationMinutes)
	}
	if view.Grid.Open != "10:00" || view.Grid.Close != "19:00" {
		t.Fatalf("unexpected grid %+v", view.Grid)
	}

	monday := dayOf(t, view, "2026-10-19")
	if len(monday.Slots) == 0 || monday.Slots[0] != "11:00" || monday.Slots[len(monday.Slots)-1] != "18:00" {
		t.Fatalf("unexpected monday slots %v", monday.Slots)
	}
	if sunday := dayOf(t, view, "2026-10-18"); !sunday.Closed || sunday.ConsultationAvailable || len(sunday.Slots) != 0 {
		t.Fatalf("expected sunday closed, got %+v", sunday)
	}
	if holiday := dayOf(t, view, "2026-10-23"); !holiday.Closed || len(holiday.Slots) != 0 {
		t.Fatalf("expected holiday closed, got %+v", holiday)
	}
}

func TestSlotsNoMenusGivesEmptyDays(t *testing.T) {
	h := newTestSlotsHandler(newFakeDB(), nil)
	view := getWeek(t, h, "salon_id=salon-1&week_offset=1")
	if view.WeekStart != "2026-10-25" {
		t.Fatalf("expected next week, got %s", view.WeekStart)
	}
	for _, d := range view.Days {
		if d.Slots == nil || len(d.Slots) != 0 {
			t.Fatalf("expected empty slot list for %s, got %v", d.Date, d.Slots)
		}
	}
	if !dayOf(t, view, "2026-10-26").ConsultationAvailable {
		t.Fatal("expected consultation on an open day without menus")
	}
}

func TestSlotsBadRequests(t *testing.T) {
	h := newTestSlotsHandler(newFakeDB(), nil)
	cases := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"salon_id=salon-1&week_offset=-1", http.StatusBadRequest},
		{"salon_id=salon-1&week_offset=abc", http.StatusBadRequest},
		{"salon_id=salon-1&menu_ids=perm", http.StatusBadRequest},
		{"salon_id=nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rw := httptest.NewRecorder()
		h.Slots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?"+tc.query, nil))
		if rw.Code != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.query, tc.want, rw.Code)
		}
	}
}

func TestMenus(t *testing.T) {
	h := newTestSlotsHandler(newFakeDB(), nil)
	rw := httptest.NewRecorder()
	h.Menus(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/menus?salon_id=salon-1", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var cats []categoryItem
	if err := json.Unmarshal(rw.Body.Bytes(), &cats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cats) != 1 || len(cats[0].Menus) != 2 || !cats[0].Menus[1].PricePrefix {
		t.Fatalf("unexpected categories %+v", cats)
	}
}

func TestStreamPushesChanges(t *testing.T) {
	db := newFakeDB()
	hub := feed.NewHub(db, discardLogger(), feed.Config{PollEvery: time.Hour})
	h := newTestSlotsHandler(db, hub)
	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?salon_id=salon-1&menu_ids=cut", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := make(chan weekView, 4)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var view weekView
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &view); err == nil {
				events <- view
			}
		}
	}()

	next := func() weekView {
		select {
		case v, ok := <-events:
			if !ok {
				t.Fatal("stream ended")
			}
			return v
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for event")
		}
		return weekView{}
	}

	first := next()
	if !slices.Contains(dayOf(t, first, "2026-10-20").Slots, "10:00") {
		t.Fatalf("expected tuesday 10:00 open, got %v", dayOf(t, first, "2026-10-20").Slots)
	}

	db.add(confirmedAt(tokyoAt(2026, time.October, 20, 10, 0), 60))
	hub.Notify(testSalon)

	second := next()
	if slices.Contains(dayOf(t, second, "2026-10-20").Slots, "10:00") {
		t.Fatalf("expected tuesday 10:00 taken, got %v", dayOf(t, second, "2026-10-20").Slots)
	}
}
