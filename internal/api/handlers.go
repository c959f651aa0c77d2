package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medisched/hospital-booking/internal/auth"
	"github.com/medisched/hospital-booking/internal/booking"
	"github.com/medisched/hospital-booking/internal/user"
)

// UserStore is the user-repository surface the handlers need.
type UserStore interface {
	Create(ctx context.Context, u *user.User) (*user.User, error)
	GetByID(ctx context.Context, id int64) (*user.User, error)
	Update(ctx context.Context, u *user.User) (*user.User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]user.User, error)
}

func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Auth

func loginHandler(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "could not parse JSON")
			return
		}

		result, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleAuthError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token:    result.Token,
			RoleName: result.RoleName,
		})
	}
}

func handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "bad_request", "email and password required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		// one message for unknown email and wrong password
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	default:
		handleStoreError(w, err)
	}
}

// Users

func createUserHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" || req.Email == "" || req.Password == "" || req.MobileNumber == "" || req.RoleID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "name, email, password, mobile_number and role_id are required")
			return
		}
		if len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "password must be at least 8 characters")
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "could not process password")
			return
		}

		created, err := store.Create(r.Context(), &user.User{
			Name:           req.Name,
			Email:          req.Email,
			PasswordHash:   hash,
			MobileNumber:   req.MobileNumber,
			RoleID:         req.RoleID,
			Specialization: req.Specialization,
			Hospital:       req.Hospital,
		})
		if err != nil {
			handleUserError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toUserResponse(created))
	}
}

func listUsersHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.List(r.Context())
		if err != nil {
			handleUserError(w, err)
			return
		}

		resp := make([]UserResponse, 0, len(users))
		for i := range users {
			resp = append(resp, toUserResponse(&users[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getUserHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be an integer")
			return
		}

		u, err := store.GetByID(r.Context(), id)
		if err != nil {
			handleUserError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	}
}

func updateUserHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be an integer")
			return
		}

		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" || req.Email == "" || req.MobileNumber == "" || req.RoleID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "name, email, mobile_number and role_id are required")
			return
		}

		updated, err := store.Update(r.Context(), &user.User{
			ID:             id,
			Name:           req.Name,
			Email:          req.Email,
			MobileNumber:   req.MobileNumber,
			RoleID:         req.RoleID,
			Specialization: req.Specialization,
			Hospital:       req.Hospital,
		})
		if err != nil {
			handleUserError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(updated))
	}
}

func deleteUserHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be an integer")
			return
		}

		if err := store.Delete(r.Context(), id); err != nil {
			handleUserError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrDuplicateUser):
		writeError(w, http.StatusConflict, "duplicate_user", err.Error())
	case errors.Is(err, user.ErrRoleNotFound):
		writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
	case errors.Is(err, user.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	default:
		handleStoreError(w, err)
	}
}

// Slots

func listSlotsHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := sched.Slots(r.Context())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getSlotHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be an integer")
			return
		}

		slot, err := sched.Slot(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func addSlotHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		created, err := sched.AddSlot(r.Context(), &booking.Slot{
			DoctorID:  req.DoctorID,
			SlotDate:  req.SlotDate,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(created))
	}
}

func updateSlotHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be an integer")
			return
		}

		var req SlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := sched.UpdateSlot(r.Context(), &booking.Slot{
			ID:        id,
			DoctorID:  req.DoctorID,
			SlotDate:  req.SlotDate,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(updated))
	}
}

func deleteSlotHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be an integer")
			return
		}

		if err := sched.DeleteSlot(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Appointments

func bookAppointmentHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		// default to the authenticated caller when no user is given
		userID := req.UserID
		if userID == 0 {
			if callerID, ok := CallerID(r.Context()); ok {
				userID = callerID
			}
		}

		appt, err := sched.Book(r.Context(), userID, req.SlotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be an integer")
			return
		}

		appt, err := sched.Appointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listUserAppointmentsHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "id must be an integer")
			return
		}

		appts, err := sched.ListByUser(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleAppointmentHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be an integer")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := sched.Reschedule(r.Context(), id, req.NewSlotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(sched *booking.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be an integer")
			return
		}

		if err := sched.Cancel(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
	case errors.Is(err, booking.ErrInvalidSlotWindow):
		writeError(w, http.StatusBadRequest, "invalid_slot_window", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_contended", "slot is currently being booked, please retry shortly")
	default:
		handleStoreError(w, err)
	}
}

func handleStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "data store did not respond in time")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
