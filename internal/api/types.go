package api

import (
	"time"

	"github.com/medisched/hospital-booking/internal/booking"
	"github.com/medisched/hospital-booking/internal/user"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	RoleName string `json:"role_name"`
}

type CreateUserRequest struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	MobileNumber   string  `json:"mobile_number"`
	RoleID         int64   `json:"role_id"`
	Specialization *string `json:"specialization,omitempty"`
	Hospital       *string `json:"hospital,omitempty"`
}

type UserResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	MobileNumber   string  `json:"mobile_number"`
	RoleID         int64   `json:"role_id"`
	RoleName       string  `json:"role_name,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	Hospital       *string `json:"hospital,omitempty"`
}

// password hash deliberately never leaves the service
func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		MobileNumber:   u.MobileNumber,
		RoleID:         u.RoleID,
		RoleName:       u.RoleName,
		Specialization: u.Specialization,
		Hospital:       u.Hospital,
	}
}

type SlotRequest struct {
	DoctorID  int64     `json:"doctor_id"`
	SlotDate  time.Time `json:"slot_date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type SlotResponse struct {
	ID        int64     `json:"id"`
	DoctorID  int64     `json:"doctor_id"`
	SlotDate  time.Time `json:"slot_date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Booked    bool      `json:"booked"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		SlotDate:  s.SlotDate,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Booked:    s.Booked,
	}
}

type BookAppointmentRequest struct {
	SlotID int64 `json:"slot_id"`
	UserID int64 `json:"user_id"`
}

type RescheduleRequest struct {
	NewSlotID int64 `json:"new_slot_id"`
}

type AppointmentResponse struct {
	ID        int64     `json:"id"`
	SlotID    int64     `json:"slot_id"`
	UserID    int64     `json:"user_id"`
	ApptDate  time.Time `json:"appt_date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		SlotID:    a.SlotID,
		UserID:    a.UserID,
		ApptDate:  a.ApptDate,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
