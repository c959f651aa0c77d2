package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports process liveness and dependency readiness.
// Postgres down means the service cannot serve anything; Redis down only
// degrades booking (the lock layer), so readiness reports it separately.
type HealthHandler struct {
	pgPool    *pgxpool.Pool
	redis     *redis.Client
	env       string
	version   string
	startedAt time.Time
}

func NewHealthHandler(pgPool *pgxpool.Pool, redis *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		pgPool:    pgPool,
		redis:     redis,
		env:       env,
		version:   version,
		startedAt: time.Now(),
	}
}

type healthStatus struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	Env           string            `json:"env,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{
		Status:        "ok",
		Version:       h.version,
		Env:           h.env,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	deps := map[string]string{
		"postgres": probe(r.Context(), func(ctx context.Context) error {
			return h.pgPool.Ping(ctx)
		}),
		"redis": probe(r.Context(), func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		}),
	}

	status := "ok"
	httpStatus := http.StatusOK
	switch {
	case deps["postgres"] != "ok":
		status = "error"
		httpStatus = http.StatusServiceUnavailable
	case deps["redis"] != "ok":
		status = "degraded"
	}

	writeJSON(w, httpStatus, healthStatus{
		Status:        status,
		Version:       h.version,
		Env:           h.env,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Dependencies:  deps,
	})
}

func probe(parent context.Context, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(parent, time.Second)
	defer cancel()

	if err := ping(ctx); err != nil {
		return "down"
	}
	return "ok"
}
