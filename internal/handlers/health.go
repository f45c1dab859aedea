package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	db HealthChecker
}

func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Database unavailable")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
