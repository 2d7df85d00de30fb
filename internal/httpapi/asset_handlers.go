package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"assetblock.org/internal/registry"
)

// uploadAsset accepts a multipart form with a "file" part and optional
// "description". The owner is the token principal, or owner_uid and
// owner_email form fields when the API runs unauthenticated.
func (a *API) uploadAsset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "expected multipart form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(content)) > a.maxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", a.maxUploadBytes))
		return
	}

	ownerUID, ownerEmail := callerIdentity(r, r.FormValue("owner_uid"), r.FormValue("owner_email"))
	if ownerUID == "" {
		writeError(w, r, http.StatusBadRequest, "owner identity is required")
		return
	}

	fileType := header.Header.Get("Content-Type")
	asset, err := a.registry.UploadAsset(r.Context(), registry.UploadParams{
		Content:     content,
		OwnerUID:    ownerUID,
		OwnerEmail:  ownerEmail,
		Name:        header.Filename,
		FileType:    fileType,
		Description: r.FormValue("description"),
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "asset.upload", map[string]any{
		"asset_id": asset.ID,
		"hash":     asset.Hash,
		"owner":    asset.OwnerUID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/assets/%d", asset.ID))
	writeJSON(w, http.StatusCreated, asset)
}

func (a *API) getAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := a.registry.GetAsset(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// listAssets serves the full listing, a search (?q=) or an owner filter
// (?owner=<uid>) from the same route.
func (a *API) listAssets(w http.ResponseWriter, r *http.Request) {
	var (
		assets []registry.Asset
		err    error
	)
	q := r.URL.Query()
	switch {
	case strings.TrimSpace(q.Get("owner")) != "":
		assets, err = a.registry.ListAssetsByOwner(r.Context(), strings.TrimSpace(q.Get("owner")))
	case q.Has("q"):
		assets, err = a.registry.SearchAssets(r.Context(), q.Get("q"))
	default:
		assets, err = a.registry.ListAssets(r.Context())
	}
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": assets,
		"total": len(assets),
	})
}

func (a *API) listAssetsByOwner(w http.ResponseWriter, r *http.Request) {
	uid := pathUID(r)
	assets, err := a.registry.ListAssetsByOwner(r.Context(), uid)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": assets,
		"total": len(assets),
	})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (a *API) updateAssetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := a.registry.UpdateAssetStatus(r.Context(), id, req.Status)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	uid, email := callerIdentity(r, "", "")
	if uid != "" {
		a.registry.LogActivity(r.Context(), uid, email, registry.ActionStatus,
			fmt.Sprintf("Set asset #%d status to %s", asset.ID, asset.Status))
	}
	a.audit(r.Context(), "asset.status_update", map[string]any{
		"asset_id": asset.ID,
		"status":   asset.Status,
	})
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) deleteAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.registry.DeleteAsset(r.Context(), id); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	uid, email := callerIdentity(r, "", "")
	if uid != "" {
		a.registry.LogActivity(r.Context(), uid, email, registry.ActionDelete,
			fmt.Sprintf("Deleted asset #%d", id))
	}
	a.audit(r.Context(), "asset.delete", map[string]any{
		"asset_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
