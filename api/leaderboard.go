// api/leaderboard.go
package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"racehouse/config"
	"racehouse/ledger"
)

/* =========================
   RESPONSE TYPES
========================= */

// LeaderboardResponse represents the leaderboard API response
type LeaderboardResponse struct {
	Success      bool              `json:"success"`
	Leaderboard  []ledger.Standing `json:"leaderboard"`
	UserPosition *ledger.Standing  `json:"userPosition,omitempty"`
}

// LedgerResponse is a wallet's balance with its most recent entries
type LedgerResponse struct {
	Success bool            `json:"success"`
	Wallet  string          `json:"wallet"`
	Balance decimal.Decimal `json:"balance"`
	Entries []ledger.Entry  `json:"entries"`
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandleGetLeaderboard handles GET /api/leaderboard
// Query params: wallet (optional) - get user's position
func (s *Server) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 20, 100)
	if !ok {
		return
	}

	top, own, err := s.svc.Leaderboard(r.Context(), limit, r.URL.Query().Get("wallet"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if top == nil {
		top = []ledger.Standing{}
	}
	sendJSON(w, http.StatusOK, LeaderboardResponse{
		Success:      true,
		Leaderboard:  top,
		UserPosition: own,
	})

	log.Printf("📋 Retrieved leaderboard with %d entries", len(top))
}

// HandleGetLedger handles GET /api/ledger/{wallet}
// Query params: limit (optional)
func (s *Server) HandleGetLedger(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	limit, ok := queryLimit(w, r, config.LedgerHistoryDefault, config.LedgerHistoryMax)
	if !ok {
		return
	}

	balance, err := s.svc.Balance(r.Context(), wallet)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	entries, err := s.svc.LedgerHistory(r.Context(), wallet, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	sendJSON(w, http.StatusOK, LedgerResponse{
		Success: true,
		Wallet:  ledger.NormalizeWallet(wallet),
		Balance: balance,
		Entries: entries,
	})
}
