package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/outbox"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/storage"
)

const testSalon = "salon-1"

var tokyo = mustLoad("Asia/Tokyo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func tokyoAt(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, tokyo)
}

// 2026-10-19 is a Monday.
func fixedNow() time.Time { return tokyoAt(2026, time.October, 19, 9, 0) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() model.SalonSettings {
	hours := availability.BusinessHours{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		hours[wd] = availability.DayHours{IsOpen: wd != time.Sunday && wd != time.Saturday, Start: "10:00", End: "19:00"}
	}
	return model.SalonSettings{
		SalonID:                testSalon,
		Name:                   "Salon One",
		Timezone:               "Asia/Tokyo",
		BusinessHours:          hours,
		SpecialHolidays:        []string{"2026-10-23"},
		BookingDeadlineMinutes: 30,
	}
}

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// fakeDB implements every store the handlers use, in memory.
type fakeDB struct {
	mu           sync.Mutex
	settings     map[string]model.SalonSettings
	menus        map[string]model.Menu
	categories   []model.Category
	reservations []model.Reservation
	idem         map[string]storage.IdempotencyRecord
	events       []outbox.Event
	txs          []*fakeTx
	// forceConflict makes the next Create fail as the exclusion constraint would.
	forceConflict bool
	nextID        int
}

func newFakeDB() *fakeDB {
	cut := model.Menu{ID: "cut", CategoryID: "hair", Name: "Cut", DurationMinutes: 60, Price: 5000}
	color := model.Menu{ID: "color", CategoryID: "hair", Name: "Color", DurationMinutes: 90, Price: 8000, PricePrefix: true}
	return &fakeDB{
		settings:   map[string]model.SalonSettings{testSalon: testSettings()},
		menus:      map[string]model.Menu{cut.ID: cut, color.ID: color},
		categories: []model.Category{{ID: "hair", Name: "Hair", Menus: []model.Menu{cut, color}}},
		idem:       map[string]storage.IdempotencyRecord{},
	}
}

func (f *fakeDB) Get(_ context.Context, salonID string) (model.SalonSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[salonID]
	if !ok {
		return model.SalonSettings{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeDB) Upsert(_ context.Context, _ pgx.Tx, s model.SalonSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[s.SalonID] = s
	return nil
}

func (f *fakeDB) ListCategories(context.Context, string) ([]model.Category, error) {
	return f.categories, nil
}

func (f *fakeDB) GetMenus(_ context.Context, _ string, ids []string) (model.Selection, error) {
	sel := make(model.Selection, 0, len(ids))
	for _, id := range ids {
		m, ok := f.menus[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", storage.ErrUnknownMenu, id)
		}
		sel = append(sel, m)
	}
	return sel, nil
}

func (f *fakeDB) ListBusy(_ context.Context, _ string, from, to time.Time) ([]availability.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []availability.Interval
	for _, iv := range model.BusyIntervals(f.reservations) {
		if iv.Start.Before(to) && iv.End.After(from) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeDB) LockIdempotencyKey(_ context.Context, _ pgx.Tx, salonID, key string) (storage.IdempotencyRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.idem[salonID+"/"+key]
	if ok {
		return rec, true, nil
	}
	rec = storage.IdempotencyRecord{SalonID: salonID, IdempotencyKey: key}
	f.idem[salonID+"/"+key] = rec
	return rec, false, nil
}

func (f *fakeDB) FinalizeIdempotency(_ context.Context, _ pgx.Tx, salonID, key, reservationID string, statusCode int, response []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idem[salonID+"/"+key] = storage.IdempotencyRecord{
		SalonID:         salonID,
		IdempotencyKey:  key,
		ReservationID:   reservationID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	return nil
}

func (f *fakeDB) Create(_ context.Context, _ pgx.Tx, res *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceConflict {
		f.forceConflict = false
		return &pgconn.PgError{Code: "23P01"}
	}
	if res.Blocks() {
		for _, existing := range f.reservations {
			if existing.Blocks() && res.StartTime.Before(existing.EndTime) && existing.StartTime.Before(res.EndTime) {
				return &pgconn.PgError{Code: "23P01"}
			}
		}
	}
	f.nextID++
	res.ID = fmt.Sprintf("res-%d", f.nextID)
	res.CreatedAt = fixedNow()
	f.reservations = append(f.reservations, *res)
	return nil
}

func (f *fakeDB) GetForUpdate(_ context.Context, _ pgx.Tx, salonID, reservationID string) (model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, res := range f.reservations {
		if res.ID == reservationID && res.SalonID == salonID {
			return res, nil
		}
	}
	return model.Reservation{}, storage.ErrNotFound
}

func (f *fakeDB) Update(_ context.Context, _ pgx.Tx, res *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := -1
	for i, existing := range f.reservations {
		if existing.ID == res.ID && existing.SalonID == res.SalonID {
			idx = i
			continue
		}
		if res.Blocks() && existing.Blocks() && res.StartTime.Before(existing.EndTime) && existing.StartTime.Before(res.EndTime) {
			return &pgconn.PgError{Code: "23P01"}
		}
	}
	if idx < 0 {
		return storage.ErrNotFound
	}
	f.reservations[idx] = *res
	return nil
}

func (f *fakeDB) UpdateStatus(_ context.Context, _ pgx.Tx, salonID, reservationID, status string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := fixedNow()
	for i := range f.reservations {
		if f.reservations[i].ID == reservationID && f.reservations[i].SalonID == salonID {
			f.reservations[i].Status = status
			if status == model.StatusCancelled {
				f.reservations[i].CancelledAt = &now
			}
			return now, nil
		}
	}
	return time.Time{}, storage.ErrNotFound
}

func (f *fakeDB) ListInRange(_ context.Context, salonID string, from, to time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, res := range f.reservations {
		if res.SalonID == salonID && !res.StartTime.Before(from) && res.StartTime.Before(to) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeDB) ListByCustomer(_ context.Context, salonID, customerID string, limit int) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for i := len(f.reservations) - 1; i >= 0 && len(out) < limit; i-- {
		res := f.reservations[i]
		if res.SalonID == salonID && res.CustomerID == customerID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeDB) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeDB) add(res model.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if res.ID == "" {
		res.ID = fmt.Sprintf("res-%d", f.nextID)
	}
	if res.SalonID == "" {
		res.SalonID = testSalon
	}
	if res.Status == "" {
		res.Status = model.StatusConfirmed
	}
	f.reservations = append(f.reservations, res)
}

func (f *fakeDB) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	salon []string
}

func (n *fakeNotifier) Notify(salonID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.salon = append(n.salon, salonID)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.salon)
}

func confirmedAt(start time.Time, minutes int) model.Reservation {
	return model.Reservation{
		SalonID:   testSalon,
		StartTime: start,
		EndTime:   start.Add(time.Duration(minutes) * time.Minute),
		Status:    model.StatusConfirmed,
		CreatedBy: model.CreatedByCustomer,
	}
}
