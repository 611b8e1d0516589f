/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/generation"
	"github.com/friendsincode/slotsequencer/internal/sequencer"
	"github.com/friendsincode/slotsequencer/internal/telemetry"
)

const wsWriteTimeout = 5 * time.Second

// streamMessage is one frame on a generation stream.
type streamMessage struct {
	Type      string               `json:"type"`
	Placement *sequencer.Placement `json:"placement,omitempty"`
	Sequence  *generation.Sequence `json:"sequence,omitempty"`
	Error     string               `json:"error,omitempty"`
	Detail    string               `json:"detail,omitempty"`
}

func writeFrame(ctx context.Context, conn *ws.Conn, v any) error {
	data, err := gojson.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

// handleGenerateStream sends each placement as soon as it is chosen, then a
// final done frame carrying the whole sequence, or an error frame.
func (a *API) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	channelID, tier := channelTier(r)
	length, ok := intQuery(r, "length", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_length")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: a.origins})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// CloseRead cancels ctx once the client closes its side.
	ctx := conn.CloseRead(r.Context())

	seq, err := a.generator.Stream(ctx, channelID, tier, length, func(p sequencer.Placement) error {
		return writeFrame(ctx, conn, streamMessage{Type: "placement", Placement: &p})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_, code := classify(err)
		if code == "internal_error" {
			a.logger.Error().Err(err).Str("channel_id", channelID).Msg("stream generation failed")
		}
		if werr := writeFrame(ctx, conn, streamMessage{Type: "error", Error: code, Detail: err.Error()}); werr != nil {
			return
		}
		conn.Close(ws.StatusNormalClosure, code)
		return
	}
	if err := writeFrame(ctx, conn, streamMessage{Type: "done", Sequence: &seq}); err != nil {
		a.logger.Warn().Err(err).Msg("websocket write failed")
		return
	}
	conn.Close(ws.StatusNormalClosure, "done")
}

type eventMessage struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

var streamableEvents = []events.EventType{
	events.EventStrategyUpdated,
	events.EventStrategyDeleted,
	events.EventStrategyArchived,
	events.EventCatalogUpdated,
	events.EventSavedChanged,
	events.EventSequenceGenerated,
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return streamableEvents
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		for _, et := range streamableEvents {
			if string(et) == part {
				out = append(out, et)
			}
		}
	}
	return out
}

// handleEvents relays bus events to a websocket client, so editors see
// strategy and catalog changes made elsewhere.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_disabled")
		return
	}
	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_event_types")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: a.origins})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	ctx := conn.CloseRead(r.Context())

	merged := make(chan eventMessage, 16)
	subscribers := make([]events.Subscriber, len(eventTypes))
	for i, et := range eventTypes {
		subscribers[i] = a.bus.Subscribe(et)
		go func(et events.EventType, sub events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- eventMessage{Type: et, Payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(et, subscribers[i])
	}
	defer func() {
		for i, et := range eventTypes {
			a.bus.Unsubscribe(et, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := writeFrame(ctx, conn, map[string]string{"type": "ping"}); err != nil {
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		case msg := <-merged:
			if err := writeFrame(ctx, conn, msg); err != nil {
				a.logger.Warn().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		}
	}
}
