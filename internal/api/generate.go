/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"

	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

type generateRequest struct {
	Length *int `json:"length"`
}

// sequenceLength takes the length from the JSON body, then ?length=, else 0.
func sequenceLength(r *http.Request) (int, error) {
	if r.ContentLength != 0 && r.Body != nil {
		var req generateRequest
		err := decodeJSON(r, &req)
		switch {
		case errors.Is(err, errEmptyBody):
		case err != nil:
			return 0, err
		case req.Length != nil:
			return *req.Length, nil
		}
	}
	n, ok := intQuery(r, "length", 0)
	if !ok {
		return 0, errors.New("length must be an integer")
	}
	return n, nil
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	channelID, tier := channelTier(r)
	length, err := sequenceLength(r)
	if err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	seq, err := a.generator.Generate(r.Context(), channelID, tier, length)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seq)
}

func (a *API) handleSlotPreview(w http.ResponseWriter, r *http.Request) {
	channelID, tier := channelTier(r)
	slotIndex, err := strconv.Atoi(chi.URLParam(r, "slotIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_index")
		return
	}
	limit, ok := intQuery(r, "limit", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	prev, err := a.generator.PreviewSlot(r.Context(), channelID, tier, slotIndex, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prev)
}

type previewRequest struct {
	Document gojson.RawMessage `json:"document"`
	Length   int               `json:"length"`
}

// handlePreview generates from an unsaved JSON document.
func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Document) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	doc, err := strategydoc.Unmarshal(req.Document, strategydoc.FormatJSON)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	seq, err := a.generator.PreviewStrategy(r.Context(), doc.Strategy(), req.Length)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seq)
}
