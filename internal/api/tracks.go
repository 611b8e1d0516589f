/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/events"
)

// handleTracksImport upserts tracks from sidecar JSON: one object, a list,
// or {"tracks": [...]}. With ?replace=true tracks missing from the body are
// removed from the catalog.
func (a *API) handleTracksImport(w http.ResponseWriter, r *http.Request) {
	var opts catalog.ImportOptions
	if raw := r.URL.Query().Get("replace"); raw != "" {
		replace, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_replace")
			return
		}
		opts.Replace = replace
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	tracks, err := catalog.Parse(body, "")
	if err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid_tracks", err.Error())
		return
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusBadRequest, "no_tracks")
		return
	}
	result, err := a.catalog.Import(r.Context(), tracks, opts)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if result.Imported > 0 || result.Removed > 0 {
		a.publish(events.EventCatalogUpdated, events.Payload{"imported": result.Imported, "removed": result.Removed})
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleTracksCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.catalog.Count(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (a *API) handleTrackDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trackID")
	if err := a.catalog.Delete(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.publish(events.EventCatalogUpdated, events.Payload{"deleted": id})
	w.WriteHeader(http.StatusNoContent)
}
