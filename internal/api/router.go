package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medisched/hospital-booking/internal/auth"
	"github.com/medisched/hospital-booking/internal/booking"
)

type RouterConfig struct {
	Auth      *auth.Service
	Issuer    *auth.TokenIssuer
	Scheduler *booking.Scheduler
	Users     UserStore
	LoginRL   *RateLimiter
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Open endpoints
	login := loginHandler(cfg.Auth)
	if cfg.LoginRL != nil {
		r.With(cfg.LoginRL.Middleware).Post("/login", login)
	} else {
		r.Post("/login", login)
	}
	r.Post("/users", createUserHandler(cfg.Users))

	// Everything else requires a valid access token
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Issuer))

		r.Get("/users", listUsersHandler(cfg.Users))
		r.Get("/users/{id}", getUserHandler(cfg.Users))
		r.Put("/users/{id}", updateUserHandler(cfg.Users))
		r.Delete("/users/{id}", deleteUserHandler(cfg.Users))
		r.Get("/users/{id}/appointments", listUserAppointmentsHandler(cfg.Scheduler))

		r.Get("/slots", listSlotsHandler(cfg.Scheduler))
		r.Post("/slots", addSlotHandler(cfg.Scheduler))
		r.Get("/slots/{id}", getSlotHandler(cfg.Scheduler))
		r.Put("/slots/{id}", updateSlotHandler(cfg.Scheduler))
		r.Delete("/slots/{id}", deleteSlotHandler(cfg.Scheduler))

		r.Post("/appointments", bookAppointmentHandler(cfg.Scheduler))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduler))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Scheduler))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Scheduler))
	})

	return r
}
