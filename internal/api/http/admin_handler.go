package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/jobs"
	"referral-ledger-backend/internal/service"
)

type AdminHandler struct {
	points  service.PointsService
	bonuses service.BonusService
	jobs    *jobs.JobRunner
}

func NewAdminHandler(points service.PointsService, bonuses service.BonusService, jobRunner *jobs.JobRunner) *AdminHandler {
	return &AdminHandler{points: points, bonuses: bonuses, jobs: jobRunner}
}

type trainerVerifiedRequest struct {
	TrainerID string `json:"trainer_id"`
}

type trainerVerifiedResponse struct {
	TrainerID    string `json:"trainer_id"`
	BonusAwarded bool   `json:"bonus_awarded"`
}

func (h *AdminHandler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req domain.AppendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := h.points.AdminAdjust(r.Context(), claims.AccountID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// TrainerVerified receives the identity service's verification event.
func (h *AdminHandler) TrainerVerified(w http.ResponseWriter, r *http.Request) {
	var req trainerVerifiedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TrainerID == "" {
		writeJSONError(w, http.StatusBadRequest, "VALIDATION", "trainer_id is required")
		return
	}
	awarded, err := h.bonuses.OnTrainerVerified(r.Context(), req.TrainerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trainerVerifiedResponse{TrainerID: req.TrainerID, BonusAwarded: awarded})
}

func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.jobs.Names())
}

func (h *AdminHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.Run(r.Context(), mux.Vars(r)["job"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
