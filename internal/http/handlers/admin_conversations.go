package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-concierge/internal/audit"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

const (
	defaultTurnLimit = 50
	maxTurnLimit     = 200
)

// TurnLister is implemented by audit.Recorder and audit.MemoryRecorder.
type TurnLister interface {
	Recent(ctx context.Context, salonID, customerHandle string, limit int) ([]audit.Turn, error)
}

// AdminConversationsHandler exposes the conversation audit trail to operators.
type AdminConversationsHandler struct {
	turns  TurnLister
	logger *logging.Logger
}

func NewAdminConversationsHandler(turns TurnLister, logger *logging.Logger) *AdminConversationsHandler {
	if turns == nil {
		panic("handlers: turn lister cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{turns: turns, logger: logger}
}

// TurnsResponse is the body of GET .../turns.
type TurnsResponse struct {
	SalonID        string       `json:"salon_id"`
	CustomerHandle string       `json:"customer_handle"`
	Turns          []audit.Turn `json:"turns"`
}

// GetTurns lists recent turns for one conversation, newest first.
func (h *AdminConversationsHandler) GetTurns(w http.ResponseWriter, r *http.Request) {
	salonID := strings.TrimSpace(chi.URLParam(r, "salonID"))
	customer := strings.TrimSpace(chi.URLParam(r, "customer"))
	if salonID == "" || customer == "" {
		jsonError(w, "missing salonID or customer", http.StatusBadRequest)
		return
	}

	limit := defaultTurnLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTurnLimit)
	}

	turns, err := h.turns.Recent(r.Context(), salonID, customer, limit)
	if err != nil {
		h.logger.Error("failed to list conversation turns", "error", err, "salon_id", salonID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []audit.Turn{}
	}
	writeJSON(w, http.StatusOK, TurnsResponse{SalonID: salonID, CustomerHandle: customer, Turns: turns})
}
