package session_api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/auth"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	sessions "ms-pooladmission/internal/sessions/service"
	"ms-pooladmission/internal/utils"
)

type Handler struct {
	SessionService *sessions.SessionService
	Logger         *logger.Logger
}

func NewHandler(service *sessions.SessionService, log *logger.Logger) *Handler {
	return &Handler{SessionService: service, Logger: log}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessions.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	session, err := h.SessionService.CreateSession(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "session created", session)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.SessionService.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "session", session)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	filter := models.SessionFilter{
		Status: models.SessionStatus(r.URL.Query().Get("status")),
	}
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			utils.WriteError(w, apperr.Validation("invalid date %q, want YYYY-MM-DD", dateStr))
			return
		}
		filter.Date = date
	}

	list, err := h.SessionService.ListSessions(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "sessions", list)
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var patch models.SessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	session, err := h.SessionService.UpdateSession(r.Context(), chi.URLParam(r, "sessionID"), patch)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "session", session)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	actor := ""
	if identity != nil {
		actor = identity.UserID
	}

	if err := h.SessionService.DeleteSession(r.Context(), chi.URLParam(r, "sessionID"), actor); err != nil {
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.SessionService.GetAvailability(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "availability", availability)
}
