package ticket_api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/auth"
	"ms-pooladmission/internal/logger"
	tickets "ms-pooladmission/internal/tickets/service"
	"ms-pooladmission/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

func NewHandler(service *tickets.TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: service, Logger: log}
}

type purchaseRequest struct {
	SessionID string  `json:"session_id"`
	Price     float64 `json:"price"`
}

// PurchaseTicket sells a ticket. Anonymous purchase is allowed; the
// ticket simply has no owner to list under "my tickets".
func (h *Handler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" {
		utils.WriteError(w, apperr.Validation("session_id is required"))
		return
	}

	userID := ""
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		userID = identity.UserID
	}

	ticket, err := h.TicketService.PurchaseTicket(r.Context(), req.SessionID, userID, req.Price)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "ticket issued", ticket)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "ticket", ticket)
}

func (h *Handler) GetMyTickets(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		utils.WriteError(w, apperr.Validation("authentication required to list tickets"))
		return
	}

	list, err := h.TicketService.GetMyTickets(r.Context(), identity.UserID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "tickets", list)
}

type cancelRequest struct {
	Actor string `json:"actor"`
}

// CancelTicket voids a ticket. The verified identity names the actor
// when auth is on; without a verifier the body carries it, so the
// route works in dev setups too.
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		req.Actor = identity.UserID
	}
	if req.Actor == "" {
		utils.WriteError(w, apperr.Validation("cancellation requires an actor"))
		return
	}

	ticket, err := h.TicketService.CancelTicket(r.Context(), chi.URLParam(r, "ticketID"), req.Actor)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "ticket cancelled", ticket)
}

// ValidateTicket is a dry-run admissibility check for scanners.
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.TicketService.ValidateTicket(r.Context(), chi.URLParam(r, "ticketID")); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "ticket is valid for entry", nil)
}
