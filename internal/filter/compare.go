/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/friendsincode/slotsequencer/internal/attribute"
)

// fold case-folds text for comparisons. A Caser is stateful, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// equal compares scalars: numerically when both sides are numeric, otherwise
// as case-folded text. Lists compare element-wise.
func equal(a, b attribute.Value) bool {
	if a.Kind == attribute.KindList || b.Kind == attribute.KindList {
		if a.Kind != b.Kind || len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	}
	if a.IsMissing() || b.IsMissing() {
		return false
	}
	if fa, ok := a.Float(); ok {
		if fb, ok := b.Float(); ok {
			return fa == fb
		}
	}
	if a.Kind == attribute.KindNumber || b.Kind == attribute.KindNumber {
		return false
	}
	return fold(a.Text()) == fold(b.Text())
}

// compare orders two scalars numerically when both are numeric, otherwise
// lexicographically on folded text. ok is false when the values are not comparable.
func compare(a, b attribute.Value) (int, bool) {
	if a.Kind == attribute.KindList || b.Kind == attribute.KindList || a.IsMissing() || b.IsMissing() {
		return 0, false
	}
	if fa, ok := a.Float(); ok {
		if fb, ok := b.Float(); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	if a.Kind != attribute.KindString || b.Kind != attribute.KindString {
		return 0, false
	}
	return strings.Compare(fold(a.Str), fold(b.Str)), true
}
