package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"referral-ledger-backend/internal/security"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Invitations *InvitationHandler
	Ledger      *LedgerHandler
	Teams       *TeamHandler
	Admin       *AdminHandler
}

// NewRouter registers every API route. Everything under /api/v1 requires a
// bearer token; /api/v1/admin additionally requires the ADMIN role.
func NewRouter(h Handlers, tm security.TokenManager, store Pinger) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(NewAuthMiddleware(tm).Handler)

	inv := h.Invitations
	api.HandleFunc("/invitations", inv.Create).Methods(http.MethodPost)
	api.HandleFunc("/invitations", inv.ListSent).Methods(http.MethodGet)
	api.HandleFunc("/invitations/accept", inv.AcceptByCode).Methods(http.MethodPost)
	api.HandleFunc("/invitations/{id}", inv.Get).Methods(http.MethodGet)
	api.HandleFunc("/invitations/{id}/accept", inv.Accept).Methods(http.MethodPost)
	api.HandleFunc("/invitations/{id}/revoke", inv.Revoke).Methods(http.MethodPost)
	api.HandleFunc("/invitations/{id}/extend", inv.Extend).Methods(http.MethodPost)
	api.HandleFunc("/invitations/{id}/resend", inv.Resend).Methods(http.MethodPost)

	led := h.Ledger
	api.HandleFunc("/accounts/{accountID}/points", led.Balance).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountID}/points/entries", led.Entries).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountID}/points/summary", led.Summary).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountID}/achievements", led.Achievements).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{accountID}/achievements/progress", led.Progress).Methods(http.MethodGet)

	teams := h.Teams
	api.HandleFunc("/teams", teams.Create).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamID}", teams.Get).Methods(http.MethodGet)
	api.HandleFunc("/teams/{teamID}/members", teams.ListMembers).Methods(http.MethodGet)
	api.HandleFunc("/teams/{teamID}/members", teams.AddMember).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamID}/members/{userID}", teams.KickMember).Methods(http.MethodDelete)
	api.HandleFunc("/teams/{teamID}/leave", teams.Leave).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/ledger/adjustments", h.Admin.AdjustPoints).Methods(http.MethodPost)
	admin.HandleFunc("/events/trainer-verified", h.Admin.TrainerVerified).Methods(http.MethodPost)
	admin.HandleFunc("/jobs", h.Admin.ListJobs).Methods(http.MethodGet)
	admin.HandleFunc("/jobs/{job}", h.Admin.RunJob).Methods(http.MethodPost)

	return router
}
