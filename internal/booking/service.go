package booking

import (
	"context"
	"errors"
	"fmt"

	redisclient "github.com/medisched/hospital-booking/internal/redis"
)

var (
	// ErrInvalidID is a malformed identifier rejected before any lookup.
	ErrInvalidID         = errors.New("identifier must be positive")
	ErrInvalidSlotWindow = errors.New("slot start time must be before end time")
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
)

// Scheduler books, reschedules and cancels appointments against slots. A
// per-slot distributed lock serializes conflicting writes on the same slot;
// no cross-slot locking.
type Scheduler struct {
	repo   Repository
	locker redisclient.Locker
}

func NewScheduler(repo Repository, locker redisclient.Locker) *Scheduler {
	return &Scheduler{
		repo:   repo,
		locker: locker,
	}
}

// Book reserves slotID for userID. Two concurrent Book calls on the same
// slot never both succeed: the loser sees ErrSlotTaken or ErrSlotContended.
func (s *Scheduler) Book(ctx context.Context, userID, slotID int64) (*Appointment, error) {
	if userID <= 0 || slotID <= 0 {
		return nil, ErrInvalidID
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Booked {
		return nil, ErrSlotTaken
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		// Inside the critical section re-check that the slot is still free
		booked, err := s.repo.SlotBooked(lockCtx, slotID)
		if err != nil {
			return fmt.Errorf("check slot state: %w", err)
		}
		if booked {
			return ErrSlotTaken
		}

		appt, err := s.repo.CreateAppointment(lockCtx, userID, slot)
		if err != nil {
			return err
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves an appointment to newSlotID. The appointment's window is
// rewritten to exactly match the new slot's window; the old slot becomes
// bookable again the moment the move commits.
func (s *Scheduler) Reschedule(ctx context.Context, apptID, newSlotID int64) (*Appointment, error) {
	if apptID <= 0 || newSlotID <= 0 {
		return nil, ErrInvalidID
	}

	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	newSlot, err := s.repo.GetSlotByID(ctx, newSlotID)
	if err != nil {
		return nil, err
	}

	// Moving onto the slot it already holds is a no-op.
	if appt.SlotID == newSlotID {
		return appt, nil
	}

	if newSlot.Booked {
		return nil, ErrSlotTaken
	}

	var moved *Appointment

	err = s.locker.WithSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		booked, err := s.repo.SlotBooked(lockCtx, newSlotID)
		if err != nil {
			return fmt.Errorf("check slot state: %w", err)
		}
		if booked {
			return ErrSlotTaken
		}

		m, err := s.repo.MoveAppointment(lockCtx, apptID, newSlot)
		if err != nil {
			return err
		}

		moved = m
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return moved, nil
}

// Cancel deletes the appointment; its slot is released by derivation.
// A non-positive id is rejected before any lookup is attempted.
func (s *Scheduler) Cancel(ctx context.Context, apptID int64) error {
	if apptID <= 0 {
		return ErrInvalidID
	}
	return s.repo.DeleteAppointment(ctx, apptID)
}

// Appointment retrieves a single appointment by id.
func (s *Scheduler) Appointment(ctx context.Context, apptID int64) (*Appointment, error) {
	if apptID <= 0 {
		return nil, ErrInvalidID
	}
	return s.repo.GetAppointmentByID(ctx, apptID)
}

// ListByUser returns the user's appointments in insertion order.
func (s *Scheduler) ListByUser(ctx context.Context, userID int64) ([]Appointment, error) {
	if userID <= 0 {
		return nil, ErrInvalidID
	}
	return s.repo.ListAppointmentsByUser(ctx, userID)
}

// Slot store pass-throughs. The booked flag on incoming slots is ignored:
// booked state is derived from the appointments relation.

func (s *Scheduler) Slot(ctx context.Context, id int64) (*Slot, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	return s.repo.GetSlotByID(ctx, id)
}

func (s *Scheduler) Slots(ctx context.Context) ([]Slot, error) {
	return s.repo.ListSlots(ctx)
}

func (s *Scheduler) AddSlot(ctx context.Context, slot *Slot) (*Slot, error) {
	if slot.DoctorID <= 0 {
		return nil, ErrInvalidID
	}
	if !slot.StartTime.Before(slot.EndTime) {
		return nil, ErrInvalidSlotWindow
	}
	return s.repo.CreateSlot(ctx, slot)
}

func (s *Scheduler) UpdateSlot(ctx context.Context, slot *Slot) (*Slot, error) {
	if slot.ID <= 0 || slot.DoctorID <= 0 {
		return nil, ErrInvalidID
	}
	if !slot.StartTime.Before(slot.EndTime) {
		return nil, ErrInvalidSlotWindow
	}
	return s.repo.UpdateSlot(ctx, slot)
}

func (s *Scheduler) DeleteSlot(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	return s.repo.DeleteSlot(ctx, id)
}
