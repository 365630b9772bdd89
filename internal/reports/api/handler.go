package api

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/auth"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/reports"
	"ms-pooladmission/internal/utils"
)

type Handler struct {
	ReportService *reports.ReportService
	Logger        *logger.Logger
}

func NewHandler(service *reports.ReportService, log *logger.Logger) *Handler {
	return &Handler{ReportService: service, Logger: log}
}

// GetDailyReport serves /reports/daily?date=YYYY-MM-DD, defaulting to
// today.
func (h *Handler) GetDailyReport(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			utils.WriteError(w, apperr.Validation("invalid date %q, want YYYY-MM-DD", dateStr))
			return
		}
		date = parsed
	}

	report, err := h.ReportService.GetDailyReport(r.Context(), date)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "daily report", report)
}

type maintenanceRequest struct {
	SessionID   string `json:"session_id"`
	Description string `json:"description"`
	OperatorID  string `json:"operator_id"`
}

func (h *Handler) CreateMaintenanceLog(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body: %v", err))
		return
	}

	// The authenticated subject wins over whatever the body claims.
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		req.OperatorID = identity.UserID
	}

	entry, err := h.ReportService.CreateMaintenanceLog(r.Context(), req.SessionID, req.Description, req.OperatorID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "maintenance log created", entry)
}

func (h *Handler) GetMaintenanceLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ReportService.GetMaintenanceLogs(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "maintenance logs", entries)
}
