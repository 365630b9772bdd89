package gate_api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/auth"
	"ms-pooladmission/internal/gate"
	"ms-pooladmission/internal/logger"
	tickets "ms-pooladmission/internal/tickets/service"
	"ms-pooladmission/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	Gate          *gate.Gate
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, g *gate.Gate, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Gate: g, Logger: log}
}

type scanRequest struct {
	TicketID    string `json:"ticket_id"`
	EncryptedQR string `json:"encrypted_qr"`
}

// resolveTicket accepts either a raw ticket ID or a scanned QR
// string.
func (h *Handler) resolveTicket(req scanRequest) (string, error) {
	if req.TicketID != "" {
		return req.TicketID, nil
	}
	if req.EncryptedQR != "" {
		return h.TicketService.ResolveScan(req.EncryptedQR)
	}
	return "", apperr.Validation("ticket_id or encrypted_qr is required")
}

// RecordEntry admits a ticket holder at the turnstile.
func (h *Handler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	ticketID, err := h.resolveTicket(req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	ticket, err := h.TicketService.RecordEntry(r.Context(), ticketID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "entry recorded", ticket)
}

// RecordExit releases a ticket holder at the turnstile.
func (h *Handler) RecordExit(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	ticketID, err := h.resolveTicket(req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	ticket, err := h.TicketService.RecordExit(r.Context(), ticketID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "exit recorded", ticket)
}

// GetStatus returns the point-in-time occupancy of a session.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Gate.GetCurrentCapacity(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "gate status", status)
}

type resetRequest struct {
	Actor string `json:"actor"`
}

// ResetOccupancy is the admin end-of-day override. The actor comes
// from the verified identity when auth is on; without a verifier the
// body names the actor so the override stays usable in dev setups.
func (h *Handler) ResetOccupancy(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		req.Actor = identity.UserID
	}
	if req.Actor == "" {
		utils.WriteError(w, apperr.Validation("reset requires an actor"))
		return
	}

	prior, err := h.Gate.ResetOccupancy(r.Context(), chi.URLParam(r, "sessionID"), req.Actor)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "occupancy reset", map[string]int{"prior_occupancy": prior})
}
