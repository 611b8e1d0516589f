/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package strategydoc

import (
	"fmt"
	"sort"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// legacyKeys maps version 1 spellings onto current keys.
var legacyKeys = map[string]string{
	"version":            "schema_version",
	"repeat_window":      "recent_repeat_window",
	"recentRepeatWindow": "recent_repeat_window",
	"ruleGroups":         "rule_groups",
	"channelId":          "channel_id",
	"energyTier":         "energy_tier",
}

// migrate upgrades a decoded document to the current schema version.
// Documents without a version are treated as version 1.
func migrate(obj map[string]any) (map[string]any, error) {
	version := 1
	raw, ok := obj["schema_version"]
	if !ok {
		raw, ok = obj["version"]
	}
	if ok {
		v, valid := asInt(raw)
		if !valid {
			return nil, fmt.Errorf("%w: schema_version %v", ErrMalformed, raw)
		}
		version = v
	}

	switch version {
	case CurrentSchemaVersion:
		return obj, nil
	case 1:
		return migrateV1(obj), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
}

// migrateV1 renames legacy keys, expands boost maps into lists, and turns
// {min, max} range objects into [low, high] pairs.
func migrateV1(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if nk, ok := legacyKeys[k]; ok {
			if _, taken := obj[nk]; taken {
				continue
			}
			k = nk
		}
		out[k] = v
	}
	out["schema_version"] = CurrentSchemaVersion

	if groups, ok := out["rule_groups"].([]any); ok {
		for _, g := range groups {
			group, ok := g.(map[string]any)
			if !ok {
				continue
			}
			rules, _ := group["rules"].([]any)
			for _, r := range rules {
				rule, ok := r.(map[string]any)
				if !ok {
					continue
				}
				if rng, ok := rule["value"].(map[string]any); ok {
					rule["value"] = []any{rng["min"], rng["max"]}
				}
			}
		}
	}

	if slots, ok := out["slots"].([]any); ok {
		for _, s := range slots {
			slot, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if boosts, ok := slot["boosts"].(map[string]any); ok {
				slot["boosts"] = expandBoosts(boosts)
			}
		}
	}
	return out
}

// expandBoosts converts {field: weight} or {field: {mode, weight}} into a list.
func expandBoosts(m map[string]any) []any {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]any, 0, len(fields))
	for _, f := range fields {
		boost := map[string]any{"field": f, "mode": "near"}
		switch v := m[f].(type) {
		case map[string]any:
			if mode, ok := v["mode"]; ok {
				boost["mode"] = mode
			}
			boost["weight"] = v["weight"]
		default:
			boost["weight"] = v
		}
		out = append(out, boost)
	}
	return out
}

func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case gojson.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}
