/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package strategydoc exchanges strategies as versioned JSON, YAML, or CSV
// documents for offline editing and migration.
package strategydoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
	"github.com/friendsincode/slotsequencer/internal/sequencer"
)

// CurrentSchemaVersion is written on every export.
const CurrentSchemaVersion = 2

// Kind tells which store a document came from.
type Kind string

const (
	KindChannelStrategy Kind = "channel_strategy"
	KindSavedSequence   Kind = "saved_sequence"
)

// Format selects a serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	ErrMalformed          = errors.New("malformed strategy document")
)

// Document is the exchange form of a strategy.
type Document struct {
	SchemaVersion      int            `json:"schema_version" yaml:"schema_version"`
	Kind               Kind           `json:"kind,omitempty" yaml:"kind,omitempty"`
	ChannelID          string         `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	EnergyTier         string         `json:"energy_tier,omitempty" yaml:"energy_tier,omitempty"`
	Name               string         `json:"name,omitempty" yaml:"name,omitempty"`
	RecentRepeatWindow int            `json:"recent_repeat_window" yaml:"recent_repeat_window"`
	RuleGroups         []filter.Group `json:"rule_groups" yaml:"rule_groups"`
	Slots              []scoring.Slot `json:"slots" yaml:"slots"`
}

// New wraps a strategy in a current-version document.
func New(s sequencer.Strategy) Document {
	return Document{
		SchemaVersion:      CurrentSchemaVersion,
		RecentRepeatWindow: s.RecentRepeatWindow,
		RuleGroups:         s.RuleGroups,
		Slots:              s.Slots,
	}.Canonical()
}

// Strategy returns the generator input described by the document.
func (d Document) Strategy() sequencer.Strategy {
	return sequencer.Strategy{
		RuleGroups:         d.RuleGroups,
		Slots:              d.Slots,
		RecentRepeatWindow: d.RecentRepeatWindow,
	}
}

// Canonical returns a copy with empty collections set to nil and boosts
// ordered by field, so every format decodes to the same structure.
func (d Document) Canonical() Document {
	out := d
	out.RuleGroups = nil
	for _, g := range d.RuleGroups {
		cg := g
		cg.Rules = nil
		if len(g.Rules) > 0 {
			cg.Rules = append([]filter.Rule(nil), g.Rules...)
		}
		out.RuleGroups = append(out.RuleGroups, cg)
	}

	out.Slots = nil
	for _, s := range d.Slots {
		cs := scoring.Slot{Index: s.Index}
		if len(s.Targets) > 0 {
			cs.Targets = make(map[string]attribute.Value, len(s.Targets))
			for k, v := range s.Targets {
				cs.Targets[k] = v
			}
		}
		if len(s.Boosts) > 0 {
			cs.Boosts = append([]scoring.Boost(nil), s.Boosts...)
			sort.SliceStable(cs.Boosts, func(i, j int) bool { return cs.Boosts[i].Field < cs.Boosts[j].Field })
		}
		out.Slots = append(out.Slots, cs)
	}
	return out
}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv"
	}
	return "application/json"
}

// Marshal serializes d in the given format, stamping the current schema version.
func Marshal(d Document, f Format) ([]byte, error) {
	d.SchemaVersion = CurrentSchemaVersion
	switch f {
	case FormatJSON:
		return gojson.MarshalIndent(d, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatCSV:
		return marshalCSV(d)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Encode writes d to w.
func Encode(w io.Writer, d Document, f Format) error {
	data, err := Marshal(d, f)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal parses, migrates, and schema-checks a document.
func Unmarshal(data []byte, f Format) (Document, error) {
	if f == FormatCSV {
		d, err := unmarshalCSV(data)
		if err != nil {
			return Document{}, err
		}
		if err := validateDocument(d); err != nil {
			return Document{}, err
		}
		return d.Canonical(), nil
	}

	raw, err := decodeGeneric(data, f)
	if err != nil {
		return Document{}, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Document{}, fmt.Errorf("%w: top level must be an object", ErrMalformed)
	}
	obj, err = migrate(obj)
	if err != nil {
		return Document{}, err
	}

	normalized, err := gojson.Marshal(obj)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := ValidateJSON(normalized); err != nil {
		return Document{}, err
	}

	var d Document
	if err := gojson.Unmarshal(normalized, &d); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return d.Canonical(), nil
}

// Decode reads a whole document from r.
func Decode(r io.Reader, f Format) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}
	return Unmarshal(data, f)
}

func decodeGeneric(data []byte, f Format) (any, error) {
	var raw any
	switch f {
	case FormatJSON:
		if err := gojson.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	return raw, nil
}

func validateDocument(d Document) error {
	data, err := gojson.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ValidateJSON(data)
}
