package httpapi

import (
	"net/http"
	"strings"
	"time"

	"assetblock.org/internal/auth"
)

type tokenRequest struct {
	UID   string   `json:"uid"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// issueToken mints a bearer token for a registered account. Unknown
// identities are rejected so tokens always map to real accounts.
func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	if !auth.SupportsTokens() {
		writeError(w, r, http.StatusServiceUnavailable, "token issuance is not configured")
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		writeError(w, r, http.StatusBadRequest, "uid is required")
		return
	}
	account, err := a.registry.GetAccount(r.Context(), uid)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{account.Role}
	}
	token, err := auth.GenerateToken(account.UID, account.Email, roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(a.tokenTTL),
	})
}
