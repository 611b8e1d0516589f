/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package strategydoc

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
)

// The spreadsheet layout transposes slots into columns:
//
//	field,1,2,3
//	bpm,120,,128
//	boost:bpm,near:2,,exact:3
//	@recent_repeat_window,3
//	@rule_groups,"[{""logic"":""AND"",...}]"
const (
	csvHeader      = "field"
	csvBoostPrefix = "boost:"
	csvParamPrefix = "@"

	paramSchemaVersion = "schema_version"
	paramKind          = "kind"
	paramChannelID     = "channel_id"
	paramEnergyTier    = "energy_tier"
	paramName          = "name"
	paramRepeatWindow  = "recent_repeat_window"
	paramRuleGroups    = "rule_groups"
)

func marshalCSV(d Document) ([]byte, error) {
	d = d.Canonical()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{csvHeader}
	for _, s := range d.Slots {
		header = append(header, strconv.Itoa(s.Index))
	}
	rows := [][]string{header}

	for _, field := range targetFields(d.Slots) {
		row := []string{encodeRowKey(field)}
		for _, s := range d.Slots {
			v, ok := s.Targets[field]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, encodeCell(v))
		}
		rows = append(rows, row)
	}

	for _, field := range boostFields(d.Slots) {
		row := []string{csvBoostPrefix + field}
		for _, s := range d.Slots {
			cell := ""
			for _, b := range s.Boosts {
				if b.Field == field {
					cell = fmt.Sprintf("%s:%d", b.Mode, b.Weight)
					break
				}
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}

	groups := ""
	if len(d.RuleGroups) > 0 {
		raw, err := gojson.Marshal(d.RuleGroups)
		if err != nil {
			return nil, err
		}
		groups = string(raw)
	}
	params := [][2]string{
		{paramSchemaVersion, strconv.Itoa(CurrentSchemaVersion)},
		{paramKind, string(d.Kind)},
		{paramChannelID, d.ChannelID},
		{paramEnergyTier, d.EnergyTier},
		{paramName, d.Name},
		{paramRepeatWindow, strconv.Itoa(d.RecentRepeatWindow)},
		{paramRuleGroups, groups},
	}
	for _, p := range params {
		if p[1] == "" {
			continue
		}
		rows = append(rows, []string{csvParamPrefix + p[0], p[1]})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalCSV(data []byte) (Document, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) == 0 || !strings.EqualFold(strings.TrimSpace(records[0][0]), csvHeader) {
		return Document{}, fmt.Errorf("%w: csv must start with a %q header row", ErrMalformed, csvHeader)
	}

	d := Document{SchemaVersion: CurrentSchemaVersion}
	for col, raw := range records[0][1:] {
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Document{}, fmt.Errorf("%w: column %d: slot index %q", ErrMalformed, col+2, raw)
		}
		d.Slots = append(d.Slots, scoring.Slot{Index: idx})
	}

	for line, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		key := strings.TrimSpace(rec[0])
		cells := rec[1:]
		quoted := strings.HasPrefix(key, `"`)
		if quoted {
			if err := gojson.Unmarshal([]byte(key), &key); err != nil {
				return Document{}, fmt.Errorf("%w: line %d: field name %q", ErrMalformed, line+2, rec[0])
			}
		}
		switch {
		case key == "":
			continue
		case quoted:
			setTargets(&d, key, cells)
		case strings.HasPrefix(key, csvParamPrefix):
			if err := applyParam(&d, strings.TrimPrefix(key, csvParamPrefix), cells); err != nil {
				return Document{}, fmt.Errorf("line %d: %w", line+2, err)
			}
		case strings.HasPrefix(key, csvBoostPrefix):
			field := strings.TrimPrefix(key, csvBoostPrefix)
			for i, cell := range cells {
				if i >= len(d.Slots) || strings.TrimSpace(cell) == "" {
					continue
				}
				b, err := parseBoost(field, cell)
				if err != nil {
					return Document{}, fmt.Errorf("line %d: %w", line+2, err)
				}
				d.Slots[i].Boosts = append(d.Slots[i].Boosts, b)
			}
		default:
			setTargets(&d, key, cells)
		}
	}
	return d, nil
}

func setTargets(d *Document, field string, cells []string) {
	for i, cell := range cells {
		if i >= len(d.Slots) || cell == "" {
			continue
		}
		if d.Slots[i].Targets == nil {
			d.Slots[i].Targets = map[string]attribute.Value{}
		}
		d.Slots[i].Targets[field] = decodeCell(cell)
	}
}

// encodeRowKey JSON-quotes target field names that would otherwise read back
// as a parameter or boost row.
func encodeRowKey(field string) string {
	if strings.HasPrefix(field, csvParamPrefix) || strings.HasPrefix(field, csvBoostPrefix) ||
		strings.HasPrefix(field, `"`) || strings.TrimSpace(field) != field {
		q, _ := gojson.Marshal(field)
		return string(q)
	}
	return field
}

func applyParam(d *Document, name string, cells []string) error {
	value := ""
	if len(cells) > 0 {
		value = strings.TrimSpace(cells[0])
	}
	switch name {
	case paramSchemaVersion:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: schema_version %q", ErrMalformed, value)
		}
		if v != CurrentSchemaVersion {
			return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
	case paramKind:
		d.Kind = Kind(value)
	case paramChannelID:
		d.ChannelID = value
	case paramEnergyTier:
		d.EnergyTier = value
	case paramName:
		d.Name = value
	case paramRepeatWindow:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: recent_repeat_window %q", ErrMalformed, value)
		}
		d.RecentRepeatWindow = v
	case paramRuleGroups:
		var groups []filter.Group
		if err := gojson.Unmarshal([]byte(value), &groups); err != nil {
			return fmt.Errorf("%w: rule_groups: %v", ErrMalformed, err)
		}
		d.RuleGroups = groups
	default:
		return fmt.Errorf("%w: unknown parameter %q", ErrMalformed, name)
	}
	return nil
}

func parseBoost(field, cell string) (scoring.Boost, error) {
	mode, weight, ok := strings.Cut(strings.TrimSpace(cell), ":")
	if !ok {
		// A bare weight means a near boost.
		mode, weight = string(scoring.ModeNear), mode
	}
	w, err := strconv.Atoi(strings.TrimSpace(weight))
	if err != nil {
		return scoring.Boost{}, fmt.Errorf("%w: boost %q on %q", ErrMalformed, cell, field)
	}
	return scoring.Boost{Field: field, Mode: scoring.Mode(strings.ToLower(strings.TrimSpace(mode))), Weight: w}, nil
}

// encodeCell writes numbers and booleans bare. Strings that would read back
// as something else are JSON-quoted.
func encodeCell(v attribute.Value) string {
	switch v.Kind {
	case attribute.KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case attribute.KindBool:
		return strconv.FormatBool(v.Bool)
	case attribute.KindString:
		if back := decodeCell(v.Str); v.Str == "" || back.Kind != attribute.KindString || back.Str != v.Str {
			q, _ := gojson.Marshal(v.Str)
			return string(q)
		}
		return v.Str
	}
	return ""
}

func decodeCell(cell string) attribute.Value {
	if strings.HasPrefix(cell, `"`) {
		var s string
		if err := gojson.Unmarshal([]byte(cell), &s); err == nil {
			return attribute.String(s)
		}
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return attribute.Number(f)
	}
	if b, err := strconv.ParseBool(cell); err == nil && (cell == "true" || cell == "false") {
		return attribute.Bool(b)
	}
	return attribute.String(cell)
}

func targetFields(slots []scoring.Slot) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range slots {
		for f := range s.Targets {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

func boostFields(slots []scoring.Slot) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range slots {
		for _, b := range s.Boosts {
			if !seen[b.Field] {
				seen[b.Field] = true
				out = append(out, b.Field)
			}
		}
	}
	sort.Strings(out)
	return out
}
