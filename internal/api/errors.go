/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/sequencer"
	"github.com/friendsincode/slotsequencer/internal/storage"
	"github.com/friendsincode/slotsequencer/internal/store"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

// classify maps a domain error onto a status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, sequencer.ErrSlotNotFound):
		return http.StatusNotFound, "slot_not_found"
	case errors.Is(err, store.ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrEmptyReplace):
		return http.StatusUnprocessableEntity, "empty_replace"
	case errors.Is(err, store.ErrNameTaken):
		return http.StatusConflict, "name_taken"
	case errors.Is(err, store.ErrInvalidTier):
		return http.StatusBadRequest, "invalid_tier"
	case errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest, "invalid_name"
	case errors.Is(err, store.ErrInvalidChannel):
		return http.StatusBadRequest, "invalid_channel"
	case errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_key"
	case errors.Is(err, strategydoc.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, strategydoc.ErrUnsupportedVersion):
		return http.StatusBadRequest, "unsupported_schema_version"
	case errors.Is(err, strategydoc.ErrMalformed):
		return http.StatusBadRequest, "invalid_document"
	case sequencer.IsConfigError(err):
		return http.StatusUnprocessableEntity, "strategy_config"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "generation_timeout"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	switch code {
	case "cancelled":
		// Client went away; nothing useful can be written.
		return
	case "internal_error":
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, code)
		return
	case "not_found", "generation_timeout":
		writeError(w, status, code)
		return
	}

	body := map[string]any{"error": code, "detail": err.Error()}
	var schemaErr *strategydoc.SchemaError
	if errors.As(err, &schemaErr) {
		body["problems"] = schemaErr.Problems
	}
	writeJSON(w, status, body)
}
