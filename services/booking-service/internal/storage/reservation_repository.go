package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yhd-salon/salonbook/libs/db"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
	"github.com/yhd-salon/salonbook/services/booking-service/internal/model"
)

type ReservationRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	SalonID         string
	IdempotencyKey  string
	ReservationID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewReservationRepository(pool *db.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *ReservationRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, salonID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, salonID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reservation_idempotency_keys (salon_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (salon_id, idempotency_key) DO NOTHING
	`, salonID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, salonID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *ReservationRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, salonID, key, reservationID string, statusCode int, response []byte) error {
	var id *string
	if reservationID != "" {
		id = &reservationID
	}
	_, err := tx.Exec(ctx, `
		UPDATE reservation_idempotency_keys
		SET reservation_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE salon_id = $1 AND idempotency_key = $2
	`, salonID, key, id, statusCode, response)
	return err
}

// Create inserts res and assigns its ID. Overlapping blocking reservations fail with
// an exclusion violation (see IsConflict).
func (r *ReservationRepository) Create(ctx context.Context, tx pgx.Tx, res *model.Reservation) error {
	menus, err := json.Marshal(res.Menus)
	if err != nil {
		return fmt.Errorf("encode menus: %w", err)
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO reservations
			(id, salon_id, customer_id, customer_name, line_display_name, menus,
			 start_time, end_time, user_requests, admin_notes, is_consultation, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`, res.ID, res.SalonID, res.CustomerID, res.CustomerName, res.LineDisplayName, menus,
		res.StartTime, res.EndTime, res.UserRequests, res.AdminNotes, res.IsConsultation, res.Status, res.CreatedBy).Scan(&res.CreatedAt)
	return err
}

// Update rewrites the editable fields of an existing reservation. Moving it onto a
// blocking reservation fails with an exclusion violation, as Create does.
func (r *ReservationRepository) Update(ctx context.Context, tx pgx.Tx, res *model.Reservation) error {
	menus, err := json.Marshal(res.Menus)
	if err != nil {
		return fmt.Errorf("encode menus: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET customer_id = $3,
			customer_name = $4,
			line_display_name = $5,
			menus = $6,
			start_time = $7,
			end_time = $8,
			user_requests = $9,
			admin_notes = $10,
			is_consultation = $11,
			updated_at = now()
		WHERE id::text = $1 AND salon_id = $2
	`, res.ID, res.SalonID, res.CustomerID, res.CustomerName, res.LineDisplayName, menus,
		res.StartTime, res.EndTime, res.UserRequests, res.AdminNotes, res.IsConsultation)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReservationRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, salonID, reservationID string) (model.Reservation, error) {
	row := tx.QueryRow(ctx, selectReservation+`
		WHERE id::text = $1 AND salon_id = $2
		FOR UPDATE
	`, reservationID, salonID)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	return res, err
}

// UpdateStatus sets status and returns the change time. Cancelling also stamps cancelled_at.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, salonID, reservationID, status string) (time.Time, error) {
	var changedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE reservations
		SET status = $3,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END,
			updated_at = now()
		WHERE id::text = $1 AND salon_id = $2
		RETURNING updated_at
	`, reservationID, salonID, status).Scan(&changedAt)
	return changedAt, err
}

// ListBlocking returns reservations that occupy time within [from, to).
func (r *ReservationRepository) ListBlocking(ctx context.Context, salonID string, from, to time.Time) ([]model.Reservation, error) {
	return r.query(ctx, selectReservation+`
		WHERE salon_id = $1
			AND NOT is_consultation
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, salonID, from, to)
}

// ListBusy adapts ListBlocking to the feed source contract.
func (r *ReservationRepository) ListBusy(ctx context.Context, salonID string, from, to time.Time) ([]availability.Interval, error) {
	reservations, err := r.ListBlocking(ctx, salonID, from, to)
	if err != nil {
		return nil, err
	}
	return model.BusyIntervals(reservations), nil
}

// ListInRange returns every reservation starting in [from, to), consultations included.
func (r *ReservationRepository) ListInRange(ctx context.Context, salonID string, from, to time.Time) ([]model.Reservation, error) {
	return r.query(ctx, selectReservation+`
		WHERE salon_id = $1
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time ASC, created_at ASC
	`, salonID, from, to)
}

func (r *ReservationRepository) ListByCustomer(ctx context.Context, salonID, customerID string, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, selectReservation+`
		WHERE salon_id = $1 AND customer_id = $2
		ORDER BY start_time DESC
		LIMIT $3
	`, salonID, customerID, limit)
}

const selectReservation = `
	SELECT id::text, salon_id, COALESCE(customer_id, ''), customer_name, COALESCE(line_display_name, ''),
		menus, start_time, end_time, COALESCE(user_requests, ''), COALESCE(admin_notes, ''), is_consultation, status, created_by,
		created_at, cancelled_at
	FROM reservations
`

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanReservation(row pgx.Row) (model.Reservation, error) {
	var res model.Reservation
	var menus []byte
	var cancelledAt *time.Time
	if err := row.Scan(
		&res.ID,
		&res.SalonID,
		&res.CustomerID,
		&res.CustomerName,
		&res.LineDisplayName,
		&menus,
		&res.StartTime,
		&res.EndTime,
		&res.UserRequests,
		&res.AdminNotes,
		&res.IsConsultation,
		&res.Status,
		&res.CreatedBy,
		&res.CreatedAt,
		&cancelledAt,
	); err != nil {
		return model.Reservation{}, err
	}
	if len(menus) > 0 {
		if err := json.Unmarshal(menus, &res.Menus); err != nil {
			return model.Reservation{}, fmt.Errorf("decode menus for %s: %w", res.ID, err)
		}
	}
	res.CancelledAt = cancelledAt
	return res, nil
}

func (r *ReservationRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, salonID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := tx.QueryRow(ctx, `
		SELECT salon_id,
			idempotency_key,
			COALESCE(reservation_id::text, ''),
			COALESCE(status_code, 0),
			response_payload
		FROM reservation_idempotency_keys
		WHERE salon_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, salonID, key).Scan(
		&rec.SalonID,
		&rec.IdempotencyKey,
		&rec.ReservationID,
		&rec.StatusCode,
		&rec.ResponsePayload,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	return rec, nil
}
