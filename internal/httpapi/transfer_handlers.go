package httpapi

import (
	"net/http"
	"time"

	"assetblock.org/internal/registry"
	"assetblock.org/internal/stream"
)

type transferRequest struct {
	AssetID int64  `json:"asset_id"`
	ToEmail string `json:"to_email"`
	Note    string `json:"note"`
	FromUID string `json:"from_uid"`
}

func (a *API) transferAsset(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	fromUID, fromEmail := callerIdentity(r, req.FromUID, "")
	if fromUID == "" {
		writeError(w, r, http.StatusBadRequest, "sender identity is required")
		return
	}
	result, err := a.registry.TransferAsset(r.Context(), registry.TransferParams{
		AssetID: req.AssetID,
		FromUID: fromUID,
		ToEmail: req.ToEmail,
		Note:    req.Note,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	assetName := ""
	if asset, err := a.registry.GetAsset(r.Context(), result.AssetID); err == nil {
		assetName = asset.Name
	}
	if fromEmail == "" {
		if sender, err := a.registry.GetAccount(r.Context(), fromUID); err == nil {
			fromEmail = sender.Email
		}
	}
	a.stream.Publish(stream.TransferEvent{
		AssetID:   result.AssetID,
		AssetName: assetName,
		FromEmail: fromEmail,
		ToEmail:   result.NewOwnerEmail,
		Timestamp: time.Now().UTC(),
	})
	a.audit(r.Context(), "asset.transfer", map[string]any{
		"asset_id": result.AssetID,
		"from_uid": fromUID,
		"to_email": result.NewOwnerEmail,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "transfer complete",
		"asset_id":        result.AssetID,
		"new_owner_uid":   result.NewOwnerUID,
		"new_owner_email": result.NewOwnerEmail,
	})
}

func (a *API) transferHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	records, err := a.registry.TransferHistory(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"total": len(records),
	})
}
