/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// Operator names a rule comparison.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpIn      Operator = "in"
	OpNin     Operator = "nin"
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
	OpBetween Operator = "between"
	OpExists  Operator = "exists"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEq, OpNeq, OpIn, OpNin, OpGte, OpLte, OpBetween, OpExists}

// Logic combines the rules of a group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrUnknownLogic    = errors.New("unknown logic")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidValue    = errors.New("invalid rule value")
)

// Rule compares one track field against a value.
type Rule struct {
	Field    string          `json:"field" yaml:"field"`
	Operator Operator        `json:"operator" yaml:"operator"`
	Value    attribute.Value `json:"value" yaml:"value"`
}

// Group is a named block of rules combined with AND or OR.
type Group struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Logic Logic  `json:"logic" yaml:"logic"`
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Canonical returns the lower-cased operator name.
func (o Operator) Canonical() Operator {
	return Operator(strings.ToLower(strings.TrimSpace(string(o))))
}

// Known reports whether the operator is supported.
func (o Operator) Known() bool {
	n := o.Canonical()
	for _, op := range Operators {
		if op == n {
			return true
		}
	}
	return false
}

// normalized maps an empty logic to AND.
func (l Logic) normalized() Logic {
	n := Logic(strings.ToUpper(strings.TrimSpace(string(l))))
	if n == "" {
		return LogicAnd
	}
	return n
}

// Matches evaluates the rule against a track. Unknown operators and
// unresolved fields never match, except that exists:false matches an absent field.
func (r Rule) Matches(t track.Track) bool {
	got := t.Resolve(r.Field)
	want := r.Value
	if spec, ok := attribute.Lookup(r.Field); ok {
		want = normalizeEach(spec, want)
	}

	op := r.Operator.Canonical()
	if op == OpExists {
		present := true
		if want.Kind == attribute.KindBool {
			present = want.Bool
		}
		return !got.IsMissing() == present
	}
	if got.IsMissing() {
		return false
	}

	switch op {
	case OpEq:
		return anyItem(got, func(item attribute.Value) bool { return equal(item, want) })
	case OpNeq:
		return !anyItem(got, func(item attribute.Value) bool { return equal(item, want) })
	case OpIn:
		return memberOf(got, want)
	case OpNin:
		return !memberOf(got, want)
	case OpGte:
		return anyItem(got, func(item attribute.Value) bool {
			c, ok := compare(item, want)
			return ok && c >= 0
		})
	case OpLte:
		return anyItem(got, func(item attribute.Value) bool {
			c, ok := compare(item, want)
			return ok && c <= 0
		})
	case OpBetween:
		lo, hi, ok := Bounds(want)
		if !ok {
			return false
		}
		return anyItem(got, func(item attribute.Value) bool {
			f, ok := item.Float()
			return ok && f >= lo && f <= hi
		})
	}
	return false
}

// Validate reports configuration errors in the rule.
func (r Rule) Validate() error {
	if !track.IsKnownField(r.Field) {
		return fmt.Errorf("%w %q", ErrUnknownField, r.Field)
	}
	if !r.Operator.Known() {
		return fmt.Errorf("%w %q", ErrUnknownOperator, r.Operator)
	}

	v := r.Value
	switch r.Operator.Canonical() {
	case OpEq, OpNeq:
		if v.IsMissing() || v.Kind == attribute.KindList {
			return fmt.Errorf("%s on %q: %w: want scalar", r.Operator, r.Field, ErrInvalidValue)
		}
	case OpIn, OpNin:
		if v.Kind != attribute.KindList || len(v.List) == 0 {
			return fmt.Errorf("%s on %q: %w: want non-empty list", r.Operator, r.Field, ErrInvalidValue)
		}
	case OpGte, OpLte:
		if v.Kind != attribute.KindNumber && v.Kind != attribute.KindString {
			return fmt.Errorf("%s on %q: %w: want number or string", r.Operator, r.Field, ErrInvalidValue)
		}
	case OpBetween:
		lo, hi, ok := Bounds(v)
		if !ok {
			return fmt.Errorf("between on %q: %w: want [low, high]", r.Field, ErrInvalidValue)
		}
		if lo > hi {
			return fmt.Errorf("between on %q: %w: low %g > high %g", r.Field, ErrInvalidValue, lo, hi)
		}
	case OpExists:
		if !v.IsMissing() && v.Kind != attribute.KindBool {
			return fmt.Errorf("exists on %q: %w: want bool", r.Field, ErrInvalidValue)
		}
	}
	return nil
}

// Bounds extracts the inclusive numeric range of a between value.
func Bounds(v attribute.Value) (float64, float64, bool) {
	if v.Kind != attribute.KindList || len(v.List) != 2 {
		return 0, 0, false
	}
	lo, okLo := v.List[0].Float()
	hi, okHi := v.List[1].Float()
	if !okLo || !okHi {
		return 0, 0, false
	}
	return lo, hi, true
}

func normalizeEach(spec attribute.Spec, v attribute.Value) attribute.Value {
	if v.Kind != attribute.KindList {
		return spec.Normalize(v)
	}
	out := make([]attribute.Value, len(v.List))
	for i, item := range v.List {
		out[i] = spec.Normalize(item)
	}
	return attribute.List(out...)
}

func anyItem(v attribute.Value, pred func(attribute.Value) bool) bool {
	for _, item := range v.Items() {
		if pred(item) {
			return true
		}
	}
	return false
}

func memberOf(got, set attribute.Value) bool {
	for _, candidate := range set.Items() {
		if anyItem(got, func(item attribute.Value) bool { return equal(item, candidate) }) {
			return true
		}
	}
	return false
}
