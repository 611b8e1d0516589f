package strategydoc

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
	"github.com/friendsincode/slotsequencer/internal/sequencer"
)

func sampleStrategy() sequencer.Strategy {
	return sequencer.Strategy{
		RecentRepeatWindow: 3,
		RuleGroups: []filter.Group{
			{Name: "tempo", Logic: filter.LogicAnd, Rules: []filter.Rule{
				{Field: "bpm", Operator: filter.OpBetween, Value: attribute.List(attribute.Number(60), attribute.Number(130))},
				{Field: "metadata.mood.primary", Operator: filter.OpExists},
			}},
			{Name: "genre", Logic: filter.LogicOr, Rules: []filter.Rule{
				{Field: "genre", Operator: filter.OpIn, Value: attribute.List(attribute.String("ambient"), attribute.String("drone"))},
				{Field: "tags", Operator: filter.OpEq, Value: attribute.String("rain")},
			}},
		},
		Slots: []scoring.Slot{
			{
				Index: 1,
				Targets: map[string]attribute.Value{
					"bpm":       attribute.Number(72.5),
					"key":       attribute.String("Am"),
					"intensity": attribute.Number(2),
				},
				Boosts: []scoring.Boost{
					{Field: "bpm", Mode: scoring.ModeNear, Weight: 3},
					{Field: "key", Mode: scoring.ModeExact, Weight: 5},
				},
			},
			{
				Index:   2,
				Targets: map[string]attribute.Value{"bpm": attribute.Number(90), "genre": attribute.String("120")},
			},
			{Index: 3},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	doc := New(sampleStrategy())
	doc.Kind = KindChannelStrategy
	doc.ChannelID = "rain-room"
	doc.EnergyTier = "low"

	for _, f := range []Format{FormatJSON, FormatYAML, FormatCSV} {
		t.Run(string(f), func(t *testing.T) {
			data, err := Marshal(doc, f)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			got, err := Unmarshal(data, f)
			if err != nil {
				t.Fatalf("Unmarshal() error: %v\n%s", err, data)
			}
			if !reflect.DeepEqual(got, doc) {
				t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v\n%s", got, doc, data)
			}
			if !reflect.DeepEqual(got.Strategy(), doc.Strategy()) {
				t.Fatalf("strategy mismatch after round trip")
			}
		})
	}
}

func TestCSVLayout(t *testing.T) {
	data, err := Marshal(New(sampleStrategy()), FormatCSV)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"field,1,2,3",
		"bpm,72.5,90,",
		`genre,,"""120""",`,
		"intensity,2,,",
		"key,Am,,",
		"boost:bpm,near:3,,",
		"boost:key,exact:5,,",
		"@schema_version,2",
		"@recent_repeat_window,3",
	}
	for i, w := range want {
		if i >= len(lines) || lines[i] != w {
			t.Fatalf("line %d = %q, want %q\n%s", i, lines[i], w, data)
		}
	}
	if !strings.HasPrefix(lines[len(want)], "@rule_groups,") {
		t.Fatalf("missing rule_groups row:\n%s", data)
	}
}

func TestCSVReservedFieldNames(t *testing.T) {
	doc := New(sequencer.Strategy{Slots: []scoring.Slot{
		{
			Index: 1,
			Targets: map[string]attribute.Value{
				"@x":                 attribute.String("y"),
				"boost:odd":          attribute.Number(3),
				`"quoted"`:           attribute.Bool(true),
				"metadata.mood.main": attribute.String("calm"),
			},
			Boosts: []scoring.Boost{{Field: "@x", Mode: scoring.ModeExact, Weight: 2}},
		},
	}})

	data, err := Marshal(doc, FormatCSV)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	got, err := Unmarshal(data, FormatCSV)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v\n%s", err, data)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v\n%s", got, doc, data)
	}
}

func TestCSVSpreadsheetInput(t *testing.T) {
	in := "field,1,2\n" +
		"bpm, 100, 120\n" +
		"boost:bpm,2,exact:4\n" +
		"@recent_repeat_window,1\n"
	doc, err := Unmarshal([]byte(in), FormatCSV)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if doc.RecentRepeatWindow != 1 || len(doc.Slots) != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Slots[1].Targets["bpm"].Num != 120 {
		t.Fatalf("slot 2 bpm = %+v", doc.Slots[1].Targets["bpm"])
	}
	if b := doc.Slots[0].Boosts[0]; b.Mode != scoring.ModeNear || b.Weight != 2 {
		t.Fatalf("bare weight boost = %+v", b)
	}
	if b := doc.Slots[1].Boosts[0]; b.Mode != scoring.ModeExact || b.Weight != 4 {
		t.Fatalf("exact boost = %+v", b)
	}
}

func TestMigrateV1(t *testing.T) {
	v1 := `{
		"repeat_window": 2,
		"ruleGroups": [{"logic": "AND", "rules": [{"field": "bpm", "operator": "between", "value": {"min": 80, "max": 120}}]}],
		"slots": [{"index": 1, "targets": {"bpm": 100}, "boosts": {"bpm": 3, "key": {"mode": "exact", "weight": 2}}}]
	}`
	doc, err := Unmarshal([]byte(v1), FormatJSON)
	if err != nil {
		t.Fatalf("Unmarshal(v1) error: %v", err)
	}
	if doc.SchemaVersion != CurrentSchemaVersion || doc.RecentRepeatWindow != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	lo, hi, ok := filter.Bounds(doc.RuleGroups[0].Rules[0].Value)
	if !ok || lo != 80 || hi != 120 {
		t.Fatalf("between bounds = %v %v %v", lo, hi, ok)
	}
	want := []scoring.Boost{
		{Field: "bpm", Mode: scoring.ModeNear, Weight: 3},
		{Field: "key", Mode: scoring.ModeExact, Weight: 2},
	}
	if !reflect.DeepEqual(doc.Slots[0].Boosts, want) {
		t.Fatalf("boosts = %+v, want %+v", doc.Slots[0].Boosts, want)
	}
	if err := doc.Strategy().Validate(); err != nil {
		t.Fatalf("migrated strategy invalid: %v", err)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  Format
		wantErr error
	}{
		{"future version", `{"schema_version": 9, "slots": []}`, FormatJSON, ErrUnsupportedVersion},
		{"not an object", `[1, 2]`, FormatJSON, ErrMalformed},
		{"bad json", `{"slots": `, FormatJSON, ErrMalformed},
		{"weight out of range", `{"schema_version": 2, "slots": [{"index": 1, "boosts": [{"field": "bpm", "mode": "near", "weight": 9}]}]}`, FormatJSON, ErrMalformed},
		{"bad mode", "schema_version: 2\nslots:\n  - index: 1\n    boosts:\n      - {field: bpm, mode: far, weight: 2}\n", FormatYAML, ErrMalformed},
		{"csv without header", "bpm,1\n", FormatCSV, ErrMalformed},
		{"csv bad index", "field,one\n", FormatCSV, ErrMalformed},
		{"csv unknown param", "field,1\n@tempo,3\n", FormatCSV, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data), tt.format)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Unmarshal() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaErrorListsProblems(t *testing.T) {
	err := ValidateJSON([]byte(`{"schema_version": 2, "recent_repeat_window": -1, "slots": [{"index": 0}]}`))
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("ValidateJSON() error = %v, want *SchemaError", err)
	}
	if len(se.Problems) < 2 {
		t.Fatalf("problems = %v, want at least 2", se.Problems)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, ".yml": FormatYAML, "yaml": FormatYAML, "csv": FormatCSV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ParseFormat(xml) error = %v", err)
	}
}
