package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"
	fkViolation     = "23503"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

// Slot.Booked is computed from the appointments table in every read; there is
// no booked column to drift out of sync.
const slotColumns = `
	s.id, s.doctor_id, s.slot_date, s.start_time, s.end_time,
	EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = s.id),
	s.created_at, s.updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.SlotDate,
		&s.StartTime,
		&s.EndTime,
		&s.Booked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.UserID,
		&a.ApptDate,
		&a.StartTime,
		&a.EndTime,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Interface methods

func (r *PgRepository) GetSlotByID(ctx context.Context, id int64) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		WHERE s.id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots s
		ORDER BY s.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateSlot(ctx context.Context, s *Slot) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (doctor_id, slot_date, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, doctor_id, slot_date, start_time, end_time, false, created_at, updated_at
	`, s.DoctorID, s.SlotDate, s.StartTime, s.EndTime)

	created, err := scanSlot(row)
	if err != nil {
		if pgErrCode(err) == fkViolation {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateSlot(ctx context.Context, s *Slot) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots s
		SET doctor_id = $2,
		    slot_date = $3,
		    start_time = $4,
		    end_time = $5,
		    updated_at = now()
		WHERE s.id = $1
		RETURNING `+slotColumns,
		s.ID, s.DoctorID, s.SlotDate, s.StartTime, s.EndTime)

	updated, err := scanSlot(row)
	if err != nil {
		if pgErrCode(err) == fkViolation {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		// a referencing appointment blocks deletion
		if pgErrCode(err) == fkViolation {
			return ErrSlotTaken
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) SlotBooked(ctx context.Context, slotID int64) (bool, error) {
	var booked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE slot_id = $1)
	`, slotID).Scan(&booked)
	if err != nil {
		return false, err
	}
	return booked, nil
}

func (r *PgRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, slot_id, user_id, appt_date, start_time, end_time, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByUser(ctx context.Context, userID int64) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, slot_id, user_id, appt_date, start_time, end_time, created_at, updated_at
		FROM appointments
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateAppointment binds the slot and creates the appointment in one
// statement; the UNIQUE constraint on appointments.slot_id is the final
// arbiter against a double booking that slips past the slot lock.
func (r *PgRepository) CreateAppointment(ctx context.Context, userID int64, slot *Slot) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (slot_id, user_id, appt_date, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, slot_id, user_id, appt_date, start_time, end_time, created_at, updated_at
	`, slot.ID, userID, slot.SlotDate, slot.StartTime, slot.EndTime)

	created, err := scanAppointment(row)
	if err != nil {
		switch pgErrCode(err) {
		case uniqueViolation:
			return nil, ErrSlotTaken
		case fkViolation:
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return created, nil
}

// MoveAppointment rebinds the appointment to newSlot and rewrites its window
// in a single row update, so old-slot release and new-slot binding commit
// together.
func (r *PgRepository) MoveAppointment(ctx context.Context, apptID int64, newSlot *Slot) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    appt_date = $3,
		    start_time = $4,
		    end_time = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, slot_id, user_id, appt_date, start_time, end_time, created_at, updated_at
	`, apptID, newSlot.ID, newSlot.SlotDate, newSlot.StartTime, newSlot.EndTime)

	moved, err := scanAppointment(row)
	if err != nil {
		if pgErrCode(err) == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return moved, nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
