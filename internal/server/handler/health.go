package handler

import (
	"context"
	"net/http"
	"time"
)

// Checker is one named dependency probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler reports process liveness plus the state of each dependency.
type HealthHandler struct {
	checkers []Checker
}

// NewHealthHandler creates a HealthHandler probing the given dependencies.
func NewHealthHandler(checkers ...Checker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// HealthCheck returns 200 when every dependency answers, 503 otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checkers))
	for _, c := range h.checkers {
		if err := c.Check(ctx); err != nil {
			deps[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			deps[c.Name] = "ok"
		}
	}

	statusText := "ok"
	if status != http.StatusOK {
		statusText = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":       statusText,
		"dependencies": deps,
	})
}
