package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"racehouse/service"
	"racehouse/training"
)

type CreatureResponse struct {
	Success  bool                 `json:"success"`
	Creature service.CreatureView `json:"creature"`
}

type CreatureListResponse struct {
	Success   bool                   `json:"success"`
	Creatures []service.CreatureView `json:"creatures"`
}

type TrainResponse struct {
	Success  bool              `json:"success"`
	Creature training.Creature `json:"creature"`
	Gains    training.Gains    `json:"gains"`
}

type TreatmentResponse struct {
	Success   bool               `json:"success"`
	Creature  training.Creature  `json:"creature"`
	Treatment training.Treatment `json:"treatment"`
}

// HandleRegisterCreature handles POST /api/creatures
func (s *Server) HandleRegisterCreature(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.svc.RegisterCreature(r.Context(), req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	view, err := s.svc.GetCreature(r.Context(), c.ID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, CreatureResponse{Success: true, Creature: view})
}

// HandleListCreatures handles GET /api/creatures
// Query params: owner (optional)
func (s *Server) HandleListCreatures(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListCreatures(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, CreatureListResponse{Success: true, Creatures: list})
}

// HandleGetCreature handles GET /api/creatures/{id}
func (s *Server) HandleGetCreature(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetCreature(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, CreatureResponse{Success: true, Creature: view})
}

// HandleTrain handles POST /api/creatures/{id}/train
func (s *Server) HandleTrain(w http.ResponseWriter, r *http.Request) {
	var req service.TrainRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.CreatureID = chi.URLParam(r, "id")

	out, err := s.svc.Train(r.Context(), req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, TrainResponse{Success: true, Creature: out.Creature, Gains: out.Gains})
}

// HandleTreatment handles POST /api/creatures/{id}/treatment
func (s *Server) HandleTreatment(w http.ResponseWriter, r *http.Request) {
	var req service.TreatmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.CreatureID = chi.URLParam(r, "id")

	out, err := s.svc.StartTreatment(r.Context(), req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, TreatmentResponse{Success: true, Creature: out.Creature, Treatment: out.Treatment})
}
