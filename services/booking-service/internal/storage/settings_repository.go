package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yhd-salon/salonbook/libs/db"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
)

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get loads a salon's settings. ErrNotFound means the salon was never configured.
func (r *SettingsRepository) Get(ctx context.Context, salonID string) (model.SalonSettings, error) {
	var s model.SalonSettings
	var hoursJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT salon_id, name, timezone, business_hours, special_holidays, booking_deadline_minutes, updated_at
		FROM salon_settings
		WHERE salon_id = $1
	`, salonID).Scan(&s.SalonID, &s.Name, &s.Timezone, &hoursJSON, &s.SpecialHolidays, &s.BookingDeadlineMinutes, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SalonSettings{}, ErrNotFound
		}
		return model.SalonSettings{}, err
	}
	var hours availability.BusinessHours
	if err := json.Unmarshal(hoursJSON, &hours); err != nil {
		return model.SalonSettings{}, fmt.Errorf("decode business hours for %s: %w", salonID, err)
	}
	s.BusinessHours = hours
	return s, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, tx pgx.Tx, s model.SalonSettings) error {
	hoursJSON, err := json.Marshal(s.BusinessHours)
	if err != nil {
		return err
	}
	holidays := s.SpecialHolidays
	if holidays == nil {
		holidays = []string{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO salon_settings (salon_id, name, timezone, business_hours, special_holidays, booking_deadline_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (salon_id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			business_hours = EXCLUDED.business_hours,
			special_holidays = EXCLUDED.special_holidays,
			booking_deadline_minutes = EXCLUDED.booking_deadline_minutes,
			updated_at = now()
	`, s.SalonID, s.Name, s.Timezone, hoursJSON, holidays, s.BookingDeadlineMinutes)
	return err
}

func (r *SettingsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
