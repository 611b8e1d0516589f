/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package attribute

import "strings"

var pitchClasses = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var naturals = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

func keyNames() []string {
	out := make([]string, 0, len(pitchClasses)*2)
	for _, pc := range pitchClasses {
		out = append(out, pc, pc+"m")
	}
	return out
}

// NormalizeKey canonicalises a key name to sharp spelling with an "m" suffix
// for minor keys: "Db" -> "C#", "a minor" -> "Am", "bbm" -> "A#m".
func NormalizeKey(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	letter := s[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	semitone, ok := naturals[letter]
	if !ok {
		return "", false
	}
	rest := s[1:]

	switch {
	case strings.HasPrefix(rest, "#"):
		semitone++
		rest = rest[1:]
	case strings.HasPrefix(rest, "♯"):
		semitone++
		rest = rest[len("♯"):]
	case strings.HasPrefix(rest, "♭"):
		semitone--
		rest = rest[len("♭"):]
	case strings.HasPrefix(rest, "b"):
		semitone--
		rest = rest[1:]
	}

	mode := strings.ToLower(strings.TrimSpace(rest))
	var minor bool
	switch mode {
	case "", "maj", "major":
	case "m", "min", "minor":
		minor = true
	default:
		return "", false
	}

	name := pitchClasses[(semitone+12)%12]
	if minor {
		name += "m"
	}
	return name, true
}
