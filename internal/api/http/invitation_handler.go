package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/service"
)

type InvitationHandler struct {
	svc            service.InvitationService
	defaultTTLDays int
}

func NewInvitationHandler(svc service.InvitationService, defaultTTLDays int) *InvitationHandler {
	return &InvitationHandler{svc: svc, defaultTTLDays: defaultTTLDays}
}

type createInvitationsRequest struct {
	Emails  []string              `json:"emails"`
	Role    domain.InvitationRole `json:"role"`
	TeamID  *string               `json:"team_id,omitempty"`
	Message string                `json:"message,omitempty"`
	TTLDays *int                  `json:"ttl_days,omitempty"`
}

type acceptByCodeRequest struct {
	Code string `json:"code"`
}

type extendRequest struct {
	Days int `json:"days"`
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req createInvitationsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ttl := h.defaultTTLDays
	if req.TTLDays != nil {
		ttl = *req.TTLDays
	}

	res, err := h.svc.CreateInvitations(r.Context(), domain.InviteRequest{
		SenderID: claims.AccountID,
		Emails:   req.Emails,
		Role:     req.Role,
		TeamID:   req.TeamID,
		Message:  req.Message,
		TTLDays:  ttl,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *InvitationHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	page, size := pageParams(r)
	status := domain.InvitationStatus(r.URL.Query().Get("status"))

	items, total, err := h.svc.ListSent(r.Context(), claims.AccountID, status, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse[domain.Invitation]{Items: items, Total: total, Page: page, PageSize: size})
}

func (h *InvitationHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	inv, err := h.svc.GetInvitation(r.Context(), mux.Vars(r)["id"], claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	res, err := h.svc.Accept(r.Context(), mux.Vars(r)["id"], claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InvitationHandler) AcceptByCode(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req acceptByCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.AcceptByCode(r.Context(), req.Code, claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	inv, err := h.svc.Revoke(r.Context(), mux.Vars(r)["id"], claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Extend(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	var req extendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.svc.Extend(r.Context(), mux.Vars(r)["id"], claims.AccountID, req.Days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	inv, err := h.svc.Resend(r.Context(), mux.Vars(r)["id"], claims.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
