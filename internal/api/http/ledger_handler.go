package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/service"
)

// LedgerHandler serves points and achievement views. An account may read its
// own ledger; admins may read any.
type LedgerHandler struct {
	points       service.PointsService
	achievements service.AchievementService
}

func NewLedgerHandler(points service.PointsService, achievements service.AchievementService) *LedgerHandler {
	return &LedgerHandler{points: points, achievements: achievements}
}

type balanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

// accountParam resolves {accountID}, where "me" is the caller.
func accountParam(r *http.Request) (string, error) {
	claims, _ := ClaimsFromContext(r.Context())
	id := mux.Vars(r)["accountID"]
	if id == "me" || id == claims.AccountID {
		return claims.AccountID, nil
	}
	if !claims.IsAdmin() {
		return "", domain.ErrForbidden
	}
	return id, nil
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.points.BalanceOf(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: accountID, Balance: balance})
}

func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, size := pageParams(r)
	items, total, err := h.points.ListEntries(r.Context(), accountID, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[domain.PointsEntry]{Items: items, Total: total, Page: page, PageSize: size})
}

func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.points.Summary(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *LedgerHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.achievements.ListAchievements(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Achievement{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *LedgerHandler) Progress(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	progress, err := h.achievements.Progress(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
