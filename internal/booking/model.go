package booking

import "time"

// Slot is a bookable time window owned by a doctor. Booked is derived from
// the presence of a referencing appointment, never stored independently.
type Slot struct {
	ID        int64
	DoctorID  int64
	SlotDate  time.Time
	StartTime time.Time
	EndTime   time.Time
	Booked    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is a user's reservation against a slot. Its window always
// mirrors the bound slot's window.
type Appointment struct {
	ID        int64
	SlotID    int64
	UserID    int64
	ApptDate  time.Time
	StartTime time.Time
	EndTime   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
