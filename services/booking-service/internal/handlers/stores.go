package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/outbox"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/storage"
)

// SettingsStore is satisfied by *storage.SettingsRepository.
type SettingsStore interface {
	Get(ctx context.Context, salonID string) (model.SalonSettings, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Upsert(ctx context.Context, tx pgx.Tx, s model.SalonSettings) error
}

// MenuStore is satisfied by *storage.MenuRepository.
type MenuStore interface {
	ListCategories(ctx context.Context, salonID string) ([]model.Category, error)
	GetMenus(ctx context.Context, salonID string, ids []string) (model.Selection, error)
}

// BusyStore is the read side of reservations used for slot computation.
type BusyStore interface {
	ListBusy(ctx context.Context, salonID string, from, to time.Time) ([]availability.Interval, error)
}

// ReservationStore is satisfied by *storage.ReservationRepository.
type ReservationStore interface {
	BusyStore
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, salonID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, salonID, key, reservationID string, statusCode int, response []byte) error
	Create(ctx context.Context, tx pgx.Tx, res *model.Reservation) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, salonID, reservationID string) (model.Reservation, error)
	Update(ctx context.Context, tx pgx.Tx, res *model.Reservation) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, salonID, reservationID, status string) (time.Time, error)
	ListInRange(ctx context.Context, salonID string, from, to time.Time) ([]model.Reservation, error)
	ListByCustomer(ctx context.Context, salonID, customerID string, limit int) ([]model.Reservation, error)
}

// EventWriter is satisfied by *outbox.Repository.
type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Notifier is told after a commit changes a salon's busy set. *feed.Hub implements it.
type Notifier interface {
	Notify(salonID string)
}

var (
	_ SettingsStore    = (*storage.SettingsRepository)(nil)
	_ MenuStore        = (*storage.MenuRepository)(nil)
	_ ReservationStore = (*storage.ReservationRepository)(nil)
	_ EventWriter      = (*outbox.Repository)(nil)
)
