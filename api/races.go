package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"racehouse/errs"
	"racehouse/game"
	"racehouse/service"
)

/* =========================
   RESPONSE TYPES
========================= */

type RaceResponse struct {
	Success bool             `json:"success"`
	Race    game.Race        `json:"race"`
	Entries []game.RaceEntry `json:"entries"`
}

type RaceListResponse struct {
	Success bool        `json:"success"`
	Races   []game.Race `json:"races"`
}

type EntryResponse struct {
	Success bool           `json:"success"`
	Entry   game.RaceEntry `json:"entry"`
}

// ResolveResponse carries the stored outcome. A voided race is a successful
// resolution with Voided set and no result.
type ResolveResponse struct {
	Success bool             `json:"success"`
	Voided  bool             `json:"voided"`
	Message string           `json:"message,omitempty"`
	Race    game.Race        `json:"race"`
	Entries []game.RaceEntry `json:"entries"`
	Result  *game.Result     `json:"result,omitempty"`
}

type VerifyResponse struct {
	Success bool        `json:"success"`
	Report  game.Report `json:"report"`
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandleCreateRace handles POST /api/races
func (s *Server) HandleCreateRace(w http.ResponseWriter, r *http.Request) {
	var req service.RaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	race, err := s.svc.CreateRace(r.Context(), req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, RaceResponse{Success: true, Race: race, Entries: []game.RaceEntry{}})
}

// HandleListRaces handles GET /api/races
// Query params: status (optional), limit (optional)
func (s *Server) HandleListRaces(w http.ResponseWriter, r *http.Request) {
	status := game.RaceStatus(r.URL.Query().Get("status"))
	switch status {
	case "", game.RacePending, game.RaceOpen, game.RaceClosed, game.RaceResolved, game.RaceVoided:
	default:
		sendError(w, http.StatusBadRequest, "Unknown race status")
		return
	}
	limit, ok := queryLimit(w, r, 50, 500)
	if !ok {
		return
	}

	races, err := s.svc.ListRaces(r.Context(), status, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, RaceListResponse{Success: true, Races: races})
}

// HandleGetRace handles GET /api/races/{id}
func (s *Server) HandleGetRace(w http.ResponseWriter, r *http.Request) {
	race, entries, err := s.svc.GetRace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, RaceResponse{Success: true, Race: race, Entries: entries})
}

// HandleEnterRace handles POST /api/races/{id}/entries
func (s *Server) HandleEnterRace(w http.ResponseWriter, r *http.Request) {
	var req service.EnterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.RaceID = chi.URLParam(r, "id")

	entry, err := s.svc.Enter(r.Context(), req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, EntryResponse{Success: true, Entry: entry})
}

// HandleResolveRace handles POST /api/races/{id}/resolve
func (s *Server) HandleResolveRace(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, errs.ErrInsufficientEntrants) {
		sendServiceError(w, err)
		return
	}

	response := ResolveResponse{
		Success: true,
		Race:    res.Race,
		Entries: res.Entries,
		Result:  res.Result,
	}
	if err != nil {
		response.Voided = true
		response.Message = err.Error()
	}
	sendJSON(w, http.StatusOK, response)
	log.Printf("🏁 Resolve request for %s finished: %s", res.Race.ID, res.Race.Status)
}

// HandleVerifyRace handles GET /api/races/{id}/verify
func (s *Server) HandleVerifyRace(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.VerifyRace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, VerifyResponse{Success: true, Report: report})
}

// HandleVerifyAll handles GET /api/races/verify
func (s *Server) HandleVerifyAll(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.VerifyAll(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}
	mismatches := 0
	for _, rep := range reports {
		if !rep.Match {
			mismatches++
		}
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"verified":   len(reports),
		"mismatches": mismatches,
		"reports":    reports,
	})
}

// queryLimit reads the optional limit query param.
func queryLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		sendError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > max {
		limit = max
	}
	return limit, true
}
