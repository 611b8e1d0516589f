/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus fans slot sequencer events out to other instances over
// Redis pub/sub or NATS, falling back to in-process delivery.
package eventbus

import (
	"fmt"
	"os"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/friendsincode/slotsequencer/internal/events"
)

// Bus is a Broker that owns network resources.
type Bus interface {
	events.Broker
	Close() error
}

// message is the wire form shared by both transports.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return gojson.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := gojson.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}

// NodeID builds an identifier that is unique per process.
func NodeID(instanceID string) string {
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}
	return fmt.Sprintf("%s-%s", instanceID, uuid.NewString()[:8])
}

// Memory wraps the in-process bus so it satisfies Bus.
type Memory struct {
	*events.Bus
}

// NewMemory returns an in-process Bus.
func NewMemory() *Memory { return &Memory{Bus: events.NewBus()} }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
