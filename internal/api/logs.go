/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/slotsequencer/internal/logbuffer"
)

const defaultLogLimit = 500

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.Query{
		MinLevel:   q.Get("level"),
		Component:  q.Get("component"),
		ChannelID:  q.Get("channel_id"),
		Search:     q.Get("search"),
		Descending: q.Get("order") != "asc",
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeErrorDetail(w, http.StatusBadRequest, "invalid_since", "since must be RFC3339")
			return
		}
		params.Since = t
	}
	limit, ok := intQuery(r, "limit", defaultLogLimit)
	if !ok || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	params.Limit = limit

	entries := a.logs.Query(params)
	if entries == nil {
		entries = []logbuffer.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, _ *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_disabled")
		return
	}
	writeJSON(w, http.StatusOK, a.logs.Stats())
}

func (a *API) handleLogsClear(w http.ResponseWriter, _ *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_disabled")
		return
	}
	a.logs.Clear()
	w.WriteHeader(http.StatusNoContent)
}
