package api

import (
	"net/http"
	"sort"
)

/* =========================
   HEALTH CHECK ENDPOINT
========================= */

// HandleHealthCheck handles health check requests
// GET /api/health
func (s *Server) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		status := "ok"
		if err := s.health[name](ctx); err != nil {
			status = "error: " + err.Error()
			healthy = false
		}
		checks[name] = status
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	sendJSON(w, code, map[string]interface{}{
		"success": healthy,
		"checks":  checks,
		"message": "Health check completed",
	})
}
