package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/medisched/hospital-booking/internal/auth"
	"github.com/medisched/hospital-booking/internal/booking"
	"github.com/medisched/hospital-booking/internal/user"
)

// in-memory booking repository, booked state derived from appointments

type memRepo struct {
	mu       sync.Mutex
	slots    map[int64]booking.Slot
	appts    map[int64]booking.Appointment
	users    map[int64]bool
	nextSlot int64
	nextAppt int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		slots: make(map[int64]booking.Slot),
		appts: make(map[int64]booking.Appointment),
		users: make(map[int64]bool),
	}
}

func (r *memRepo) bookedLocked(slotID int64) bool {
	for _, a := range r.appts {
		if a.SlotID == slotID {
			return true
		}
	}
	return false
}

func (r *memRepo) GetSlotByID(_ context.Context, id int64) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	s.Booked = r.bookedLocked(id)
	return &s, nil
}

func (r *memRepo) ListSlots(_ context.Context) ([]booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]booking.Slot, 0, len(r.slots))
	for id, s := range r.slots {
		s.Booked = r.bookedLocked(id)
		result = append(result, s)
	}
	return result, nil
}

func (r *memRepo) CreateSlot(_ context.Context, s *booking.Slot) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSlot++
	created := *s
	created.ID = r.nextSlot
	created.Booked = false
	r.slots[created.ID] = created
	return &created, nil
}

func (r *memRepo) UpdateSlot(_ context.Context, s *booking.Slot) (*booking.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[s.ID]; !ok {
		return nil, booking.ErrSlotNotFound
	}
	r.slots[s.ID] = *s
	updated := *s
	updated.Booked = r.bookedLocked(s.ID)
	return &updated, nil
}

func (r *memRepo) DeleteSlot(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[id]; !ok {
		return booking.ErrSlotNotFound
	}
	if r.bookedLocked(id) {
		return booking.ErrSlotTaken
	}
	delete(r.slots, id)
	return nil
}

func (r *memRepo) SlotBooked(_ context.Context, slotID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookedLocked(slotID), nil
}

func (r *memRepo) UserExists(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userID], nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id int64) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) ListAppointmentsByUser(_ context.Context, userID int64) ([]booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]booking.Appointment, 0)
	for _, a := range r.appts {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, userID int64, slot *booking.Slot) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bookedLocked(slot.ID) {
		return nil, booking.ErrSlotTaken
	}
	r.nextAppt++
	a := booking.Appointment{
		ID:        r.nextAppt,
		SlotID:    slot.ID,
		UserID:    userID,
		ApptDate:  slot.SlotDate,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	}
	r.appts[a.ID] = a
	return &a, nil
}

func (r *memRepo) MoveAppointment(_ context.Context, apptID int64, newSlot *booking.Slot) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[apptID]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	if r.bookedLocked(newSlot.ID) {
		return nil, booking.ErrSlotTaken
	}
	a.SlotID = newSlot.ID
	a.ApptDate = newSlot.SlotDate
	a.StartTime = newSlot.StartTime
	a.EndTime = newSlot.EndTime
	r.appts[apptID] = a
	return &a, nil
}

func (r *memRepo) DeleteAppointment(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[id]; !ok {
		return booking.ErrAppointmentNotFound
	}
	delete(r.appts, id)
	return nil
}

type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// in-memory user store

type memUsers struct {
	mu     sync.Mutex
	users  map[int64]user.User
	nextID int64
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[int64]user.User)}
}

func (m *memUsers) Create(_ context.Context, u *user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email || existing.MobileNumber == u.MobileNumber {
			return nil, user.ErrDuplicateUser
		}
	}
	m.nextID++
	created := *u
	created.ID = m.nextID
	m.users[created.ID] = created
	return &created, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) Update(_ context.Context, u *user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	for id, other := range m.users {
		if id != u.ID && (other.Email == u.Email || other.MobileNumber == u.MobileNumber) {
			return nil, user.ErrDuplicateUser
		}
	}
	u.PasswordHash = existing.PasswordHash
	m.users[u.ID] = *u
	return u, nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return user.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUsers) List(_ context.Context) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]user.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	return result, nil
}

type memDirectory struct {
	accounts map[string]*auth.Account
	roles    map[int64]string
}

func (d *memDirectory) AccountByEmail(_ context.Context, email string) (*auth.Account, error) {
	acct, ok := d.accounts[email]
	if !ok {
		return nil, auth.ErrUnknownAccount
	}
	return acct, nil
}

func (d *memDirectory) RoleName(_ context.Context, roleID int64) (string, error) {
	return d.roles[roleID], nil
}

type testEnv struct {
	server *httptest.Server
	repo   *memRepo
	token  string
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	hash, err := auth.HashPassword("patientpass1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	dir := &memDirectory{
		accounts: map[string]*auth.Account{
			"pat@example.com": {ID: 7, Email: "pat@example.com", PasswordHash: hash, RoleID: 3},
		},
		roles: map[int64]string{3: "patient"},
	}

	issuer := auth.NewTokenIssuer("test-secret", "hospital-booking", "clients", 10*time.Minute)

	repo := newMemRepo()
	repo.users[7] = true
	repo.users[8] = true
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	repo.slots[1] = booking.Slot{ID: 1, DoctorID: 100, SlotDate: start, StartTime: start, EndTime: start.Add(time.Hour)}
	repo.slots[2] = booking.Slot{ID: 2, DoctorID: 100, SlotDate: start, StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour)}
	repo.nextSlot = 2

	router := NewRouter(RouterConfig{
		Auth:      auth.NewService(dir, issuer),
		Issuer:    issuer,
		Scheduler: booking.NewScheduler(repo, noopLocker{}),
		Users:     newMemUsers(),
		Env:       "test",
		Version:   "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := issuer.Issue(7, "pat@example.com", "patient")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return &testEnv{server: srv, repo: repo, token: token}
}

func (e *testEnv) request(t *testing.T, method, path string, body any, authed bool) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLoginEndpoint(t *testing.T) {
	env := setup(t)

	resp := env.request(t, "POST", "/login", LoginRequest{Email: "pat@example.com", Password: "patientpass1"}, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[LoginResponse](t, resp)
	if body.Token == "" {
		t.Error("empty token")
	}
	if body.RoleName != "patient" {
		t.Errorf("role_name = %q, want patient", body.RoleName)
	}
}

func TestLoginRejections(t *testing.T) {
	env := setup(t)

	// unknown email and wrong password must be byte-identical responses
	unknown := env.request(t, "POST", "/login", LoginRequest{Email: "nobody@example.com", Password: "patientpass1"}, false)
	wrongPw := env.request(t, "POST", "/login", LoginRequest{Email: "pat@example.com", Password: "wrong"}, false)

	if unknown.StatusCode != http.StatusUnauthorized || wrongPw.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want both 401", unknown.StatusCode, wrongPw.StatusCode)
	}
	a := decode[ErrorResponse](t, unknown)
	b := decode[ErrorResponse](t, wrongPw)
	if a != b {
		t.Errorf("rejection bodies differ: %+v vs %+v", a, b)
	}

	missing := env.request(t, "POST", "/login", LoginRequest{Email: "pat@example.com"}, false)
	if missing.StatusCode != http.StatusBadRequest {
		t.Errorf("missing password: status = %d, want 400", missing.StatusCode)
	}

	req, _ := http.NewRequest("POST", env.server.URL+"/login", bytes.NewBufferString("{not json"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("malformed login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setup(t)

	resp := env.request(t, "GET", "/slots", nil, false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp = env.request(t, "GET", "/slots", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", resp.StatusCode)
	}
}

func TestBookingEndpoints(t *testing.T) {
	env := setup(t)

	resp := env.request(t, "POST", "/appointments", BookAppointmentRequest{SlotID: 1, UserID: 7}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: status = %d, want 201", resp.StatusCode)
	}
	appt := decode[AppointmentResponse](t, resp)
	if appt.SlotID != 1 || appt.UserID != 7 {
		t.Errorf("appointment = %+v", appt)
	}

	// double booking conflicts
	resp = env.request(t, "POST", "/appointments", BookAppointmentRequest{SlotID: 1, UserID: 8}, true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double book: status = %d, want 409", resp.StatusCode)
	}
	conflict := decode[ErrorResponse](t, resp)
	if conflict.Error != "slot_unavailable" {
		t.Errorf("error code = %q, want slot_unavailable", conflict.Error)
	}

	// slot now derives as booked
	resp = env.request(t, "GET", "/slots/1", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get slot: status = %d", resp.StatusCode)
	}
	slot := decode[SlotResponse](t, resp)
	if !slot.Booked {
		t.Error("slot.booked = false after booking")
	}

	// reschedule onto slot 2
	resp = env.request(t, "POST", fmt.Sprintf("/appointments/%d/reschedule", appt.ID), RescheduleRequest{NewSlotID: 2}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reschedule: status = %d, want 200", resp.StatusCode)
	}
	moved := decode[AppointmentResponse](t, resp)
	if moved.SlotID != 2 {
		t.Errorf("slot id = %d, want 2", moved.SlotID)
	}

	// cancel
	resp = env.request(t, "DELETE", fmt.Sprintf("/appointments/%d", appt.ID), nil, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("cancel: status = %d, want 204", resp.StatusCode)
	}

	resp = env.request(t, "GET", fmt.Sprintf("/appointments/%d", appt.ID), nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get cancelled: status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelInvalidIDEndpoint(t *testing.T) {
	env := setup(t)

	resp := env.request(t, "DELETE", "/appointments/-1", nil, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decode[ErrorResponse](t, resp)
	if body.Error != "invalid_id" {
		t.Errorf("error code = %q, want invalid_id (not a not-found)", body.Error)
	}
}

func TestSlotEndpoints(t *testing.T) {
	env := setup(t)

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	resp := env.request(t, "POST", "/slots", SlotRequest{DoctorID: 100, SlotDate: start, StartTime: start, EndTime: start.Add(time.Hour)}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add slot: status = %d, want 201", resp.StatusCode)
	}
	created := decode[SlotResponse](t, resp)
	if created.Booked {
		t.Error("new slot must not be booked")
	}

	// inverted window rejected
	resp = env.request(t, "POST", "/slots", SlotRequest{DoctorID: 100, SlotDate: start, StartTime: start.Add(time.Hour), EndTime: start}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("inverted window: status = %d, want 400", resp.StatusCode)
	}

	resp = env.request(t, "GET", "/slots/9999", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing slot: status = %d, want 404", resp.StatusCode)
	}

	resp = env.request(t, "DELETE", fmt.Sprintf("/slots/%d", created.ID), nil, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete slot: status = %d, want 204", resp.StatusCode)
	}
}

func TestCreateUserEndpoint(t *testing.T) {
	env := setup(t)

	req := CreateUserRequest{
		Name:         "Pat Doe",
		Email:        "new@example.com",
		Password:     "longenough1",
		MobileNumber: "+15550001111",
		RoleID:       3,
	}

	resp := env.request(t, "POST", "/users", req, false)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: status = %d, want 201", resp.StatusCode)
	}
	created := decode[UserResponse](t, resp)
	if created.ID == 0 {
		t.Error("missing id")
	}

	// duplicate email
	req.MobileNumber = "+15550002222"
	resp = env.request(t, "POST", "/users", req, false)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate email: status = %d, want 409", resp.StatusCode)
	}

	// short password
	resp = env.request(t, "POST", "/users", CreateUserRequest{
		Name: "X", Email: "x@example.com", Password: "short", MobileNumber: "+15550003333", RoleID: 3,
	}, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short password: status = %d, want 400", resp.StatusCode)
	}
}
