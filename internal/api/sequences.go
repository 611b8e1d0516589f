/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"

	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

func (a *API) handleSavedList(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListSaved(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequences": list})
}

type saveRequest struct {
	Name     string            `json:"name"`
	Document gojson.RawMessage `json:"document"`
}

func (a *API) handleSavedCreate(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Document) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	doc, err := strategydoc.Unmarshal(req.Document, strategydoc.FormatJSON)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	summary, err := a.store.Save(r.Context(), req.Name, doc)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// handleSavedPut stores a raw document in any supported format under the
// name in the path.
func (a *API) handleSavedPut(w http.ResponseWriter, r *http.Request) {
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
	summary, err := a.store.Save(r.Context(), chi.URLParam(r, "name"), doc)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleSavedGet returns the document as JSON, or exported with ?format=.
func (a *API) handleSavedGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := a.store.Load(r.Context(), name)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("format"); raw != "" {
		format, err := strategydoc.ParseFormat(raw)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeDocument(w, r, doc, format, name)
		return
	}
	writeJSON(w, http.StatusOK, doc.Canonical())
}

func (a *API) handleSavedDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteSaved(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (a *API) handleSavedDuplicate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	summary, err := a.store.Duplicate(r.Context(), chi.URLParam(r, "name"), req.Name)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (a *API) handleSavedRename(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	summary, err := a.store.Rename(r.Context(), chi.URLParam(r, "name"), req.Name)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
