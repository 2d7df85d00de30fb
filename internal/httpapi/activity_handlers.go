package httpapi

import (
	"net/http"

	"assetblock.org/internal/registry"
)

const maxActivityLimit = 500

func (a *API) listActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), registry.DefaultActivityLimit, maxActivityLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.registry.ListActivity(r.Context(), pathUID(r), limit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"total": len(entries),
	})
}

func (a *API) listAllActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), registry.DefaultAllActivityLimit, maxActivityLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.registry.ListAllActivity(r.Context(), limit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"total": len(entries),
	})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.registry.Stats(r.Context())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
