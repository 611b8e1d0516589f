/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/storage"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

func channelTier(r *http.Request) (string, string) {
	return chi.URLParam(r, "channelID"), chi.URLParam(r, "tier")
}

// requestFormat reads ?format=, falling back to the request content type.
func requestFormat(r *http.Request) (strategydoc.Format, error) {
	if raw := r.URL.Query().Get("format"); raw != "" {
		return strategydoc.ParseFormat(raw)
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "yaml"):
		return strategydoc.FormatYAML, nil
	case strings.Contains(ct, "csv"):
		return strategydoc.FormatCSV, nil
	}
	return strategydoc.FormatJSON, nil
}

func (a *API) handleStrategiesList(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.List(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": list})
}

func (a *API) handleStrategyGet(w http.ResponseWriter, r *http.Request) {
	channelID, tier := channelTier(r)
	doc, err := a.store.Get(r.Context(), channelID, tier)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Canonical())
}

// handleStrategyPut accepts a document in any supported format.
func (a *API) handleStrategyPut(w http.ResponseWriter, r *http.Request) {
	a.putStrategy(w, r, http.StatusOK)
}

func (a *API) handleStrategyImport(w http.ResponseWriter, r *http.Request) {
	a.putStrategy(w, r, http.StatusCreated)
}

func (a *API) putStrategy(w http.ResponseWriter, r *http.Request, status int) {
	channelID, tier := channelTier(r)
	format, err := requestFormat(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	doc, err := strategydoc.Unmarshal(body, format)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	saved, err := a.store.Put(r.Context(), channelID, tier, doc)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, saved)
}

func (a *API) handleStrategyDelete(w http.ResponseWriter, r *http.Request) {
	channelID, tier := channelTier(r)
	if err := a.store.Delete(r.Context(), channelID, tier); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStrategyExport(w http.ResponseWriter, r *http.Request) {
	channelID, tier := channelTier(r)
	format, err := strategydoc.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	doc, err := a.store.Get(r.Context(), channelID, tier)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeDocument(w, r, doc, format, channelID+"-"+tier)
}

func writeDocument(w http.ResponseWriter, r *http.Request, doc strategydoc.Document, format strategydoc.Format, base string) {
	data, err := strategydoc.Marshal(doc, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+base+"."+string(format)+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleStrategyArchive(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_disabled")
		return
	}
	channelID, tier := channelTier(r)
	format, err := strategydoc.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	doc, err := a.store.Get(r.Context(), channelID, tier)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	snap, err := a.archive.Save(r.Context(), doc, format)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.publish(events.EventStrategyArchived, events.Payload{
		"channel_id":  snap.ChannelID,
		"energy_tier": snap.EnergyTier,
		"key":         snap.Key,
	})
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) handleStrategyArchiveList(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_disabled")
		return
	}
	channelID, tier := channelTier(r)
	history, err := a.archive.History(r.Context(), channelID, tier)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": history})
}

// handleStrategyRestore replaces the live strategy with an archived snapshot.
func (a *API) handleStrategyRestore(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_disabled")
		return
	}
	channelID, tier := channelTier(r)
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	history, err := a.archive.History(r.Context(), channelID, tier)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	var snap *storage.Snapshot
	for i := range history {
		if history[i].Key == req.Key {
			snap = &history[i]
			break
		}
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	doc, err := a.archive.Load(r.Context(), *snap)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	saved, err := a.store.Put(r.Context(), channelID, tier, doc)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
