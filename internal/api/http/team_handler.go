package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/service"
)

type TeamHandler struct {
	svc service.TeamService
}

func NewTeamHandler(svc service.TeamService) *TeamHandler {
	return &TeamHandler{svc: svc}
}

type createTeamRequest struct {
	Name       string `json:"name"`
	MaxMembers int    `json:"max_members"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req createTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	team, err := h.svc.CreateTeam(r.Context(), claims.AccountID, req.Name, req.MaxMembers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	team, err := h.svc.GetTeam(r.Context(), mux.Vars(r)["teamID"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	status := domain.MembershipStatus(r.URL.Query().Get("status"))
	members, err := h.svc.ListMembers(r.Context(), mux.Vars(r)["teamID"], status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if members == nil {
		members = []domain.TeamMembership{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.svc.AddMember(r.Context(), claims.AccountID, mux.Vars(r)["teamID"], req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *TeamHandler) KickMember(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	vars := mux.Vars(r)
	m, err := h.svc.KickMember(r.Context(), claims.AccountID, vars["teamID"], vars["userID"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *TeamHandler) Leave(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	m, err := h.svc.Leave(r.Context(), mux.Vars(r)["teamID"], claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
