package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"assetblock.org/internal/auth"
	"assetblock.org/internal/registry"
)

type registerAccountRequest struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// callerIdentity resolves the acting identity: the token principal when
// authentication is on, otherwise the fields supplied by the caller.
func callerIdentity(r *http.Request, uid, email string) (string, string) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.UID, p.Email
	}
	return strings.TrimSpace(uid), strings.TrimSpace(email)
}

func (a *API) registerAccount(w http.ResponseWriter, r *http.Request) {
	var req registerAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	uid, email := callerIdentity(r, req.UID, req.Email)
	if uid == "" || email == "" {
		writeError(w, r, http.StatusBadRequest, "uid and email are required")
		return
	}
	account, err := a.registry.RegisterAccount(r.Context(), registry.RegisterParams{
		UID:      uid,
		Email:    email,
		Username: req.Username,
		Role:     req.Role,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "account.register", map[string]any{
		"uid":   account.UID,
		"email": account.Email,
	})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := a.registry.GetAccount(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) getAccountByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed email")
		return
	}
	account, err := a.registry.GetAccountByEmail(r.Context(), email)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.registry.ListAccounts(r.Context())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": accounts,
		"total": len(accounts),
	})
}
