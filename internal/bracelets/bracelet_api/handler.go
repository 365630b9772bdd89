package bracelet_api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-pooladmission/internal/apperr"
	bracelets "ms-pooladmission/internal/bracelets/service"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/utils"
)

type Handler struct {
	BraceletService *bracelets.BraceletService
	Logger          *logger.Logger
}

func NewHandler(service *bracelets.BraceletService, log *logger.Logger) *Handler {
	return &Handler{BraceletService: service, Logger: log}
}

type assignRequest struct {
	TicketID string `json:"ticket_id"`
	Code     string `json:"code"`
}

// AssignBracelet binds a bracelet to an admitted ticket. Leaving the
// code empty generates one for walk-ups.
func (h *Handler) AssignBracelet(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}
	if req.TicketID == "" {
		utils.WriteError(w, apperr.Validation("ticket_id is required"))
		return
	}
	if req.Code == "" {
		req.Code = utils.GenerateBraceletCode()
	}

	assignment, err := h.BraceletService.AssignBracelet(r.Context(), req.TicketID, req.Code)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "bracelet assigned", assignment)
}

func (h *Handler) ReturnBracelet(w http.ResponseWriter, r *http.Request) {
	if err := h.BraceletService.ReturnBracelet(r.Context(), chi.URLParam(r, "code")); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "bracelet returned", nil)
}

func (h *Handler) GetActiveBracelets(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.BraceletService.GetActiveBracelets(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "active bracelets", assignments)
}

// SearchByBracelet locates the holder of a bracelet.
func (h *Handler) SearchByBracelet(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.BraceletService.SearchByBracelet(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "bracelet lookup", lookup)
}
