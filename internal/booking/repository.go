package booking

import (
	"context"
	"errors"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned when a slot already has a bound appointment.
	ErrSlotTaken = errors.New("slot already booked")
)

// Repository contains all DB interactions needed by the scheduler.
type Repository interface {
	GetSlotByID(ctx context.Context, id int64) (*Slot, error)
	ListSlots(ctx context.Context) ([]Slot, error)
	CreateSlot(ctx context.Context, s *Slot) (*Slot, error)
	UpdateSlot(ctx context.Context, s *Slot) (*Slot, error)
	DeleteSlot(ctx context.Context, id int64) error

	// For conflict checks
	SlotBooked(ctx context.Context, slotID int64) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	ListAppointmentsByUser(ctx context.Context, userID int64) ([]Appointment, error)

	// Creation and moves run in a single transaction so slot binding and
	// appointment state are never observed half-applied.
	CreateAppointment(ctx context.Context, userID int64, slot *Slot) (*Appointment, error)
	MoveAppointment(ctx context.Context, apptID int64, newSlot *Slot) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
}
