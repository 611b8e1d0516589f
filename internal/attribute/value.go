/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package attribute

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumber
	KindString
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "missing"
	}
}

// Value is a typed field value resolved from a track or written in a strategy.
// The zero Value is Missing.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	List []Value
}

// Missing returns the absent value.
func Missing() Value { return Value{} }

// Number wraps a float.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// String wraps a string.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List wraps a sequence of values.
func List(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{Kind: KindList, List: values}
}

// IsMissing reports whether the value is absent.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// Float returns the numeric interpretation of the value. Numeric strings
// (as often found in free-form metadata) are accepted.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return 0, false
		}
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text returns a printable form of scalar values.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// Items returns the list elements, or the value itself as a single element.
func (v Value) Items() []Value {
	switch v.Kind {
	case KindList:
		return v.List
	case KindMissing:
		return nil
	}
	return []Value{v}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
	}
	return true
}

// Any converts the value back into plain Go types (nil, float64, string, bool, []any).
func (v Value) Any() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = item.Any()
		}
		return out
	}
	return nil
}

// FromAny converts decoded JSON, YAML, or database values into a Value.
// Maps and unsupported types resolve to Missing.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Missing()
	case Value:
		return x
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Number(f)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case []any:
		out := make([]Value, len(x))
		for i, item := range x {
			out[i] = FromAny(item)
		}
		return List(out...)
	case []string:
		out := make([]Value, len(x))
		for i, item := range x {
			out[i] = String(item)
		}
		return List(out...)
	case []float64:
		out := make([]Value, len(x))
		for i, item := range x {
			out[i] = Number(item)
		}
		return List(out...)
	case []int:
		out := make([]Value, len(x))
		for i, item := range x {
			out[i] = Number(float64(item))
		}
		return List(out...)
	}
	return Missing()
}

// MarshalJSON encodes the value as a plain JSON scalar or array.
func (v Value) MarshalJSON() ([]byte, error) {
	return gojson.Marshal(v.Any())
}

// UnmarshalJSON decodes a plain JSON scalar or array.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// MarshalYAML encodes the value as a plain YAML scalar or sequence.
func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}

// UnmarshalYAML decodes a plain YAML scalar or sequence.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
