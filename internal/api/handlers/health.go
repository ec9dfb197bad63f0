package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and the readiness of the two backends the
// paper pipeline cannot run without: postgres and the asynq redis.
type HealthHandler struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "recagent"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": checkResult(h.db == nil, func() error { return h.db.Ping(ctx) }),
		"redis":    checkResult(h.redis == nil, func() error { return h.redis.Ping(ctx).Err() }),
	}

	status := http.StatusOK
	overall := "ok"
	for _, v := range checks {
		if v != "ok" && v != "not configured" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
			break
		}
	}

	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func checkResult(missing bool, ping func() error) string {
	if missing {
		return "not configured"
	}
	if err := ping(); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
