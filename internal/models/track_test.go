package models

import (
	"reflect"
	"testing"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/track"
)

func TestTrackDomainRoundTrip(t *testing.T) {
	src := track.Track{
		ID:     "t1",
		Title:  "Low Tide",
		Artist: "Shoals",
		Attributes: map[string]attribute.Value{
			attribute.BPM:     attribute.Number(72),
			attribute.Valence: attribute.Number(-0.25),
			attribute.Key:     attribute.String("am"),
		},
		Metadata: map[string]any{"mood": map[string]any{"primary": "calm"}},
	}

	got := TrackFromDomain(src).Domain()
	if got.Attributes[attribute.Key].Str != "Am" {
		t.Fatalf("key = %+v, want normalized Am", got.Attributes[attribute.Key])
	}
	src.Attributes[attribute.Key] = attribute.String("Am")
	if !reflect.DeepEqual(got, src) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, src)
	}
}

func TestTrackFromDomainDropsInvalidValues(t *testing.T) {
	row := TrackFromDomain(track.Track{ID: "t2", Attributes: map[string]attribute.Value{
		attribute.BPM: attribute.String("fast"),
		attribute.Key: attribute.String("H#"),
	}})
	if row.BPM != nil || row.Key != nil {
		t.Fatalf("expected invalid attributes dropped, got bpm=%v key=%v", row.BPM, row.Key)
	}
	if got := row.Domain(); got.Attributes != nil {
		t.Fatalf("attributes = %v, want nil", got.Attributes)
	}
}

func TestNumericColumn(t *testing.T) {
	if col, ok := NumericColumn("BPM"); !ok || col != "bpm" {
		t.Fatalf("NumericColumn(BPM) = %q, %v", col, ok)
	}
	if _, ok := NumericColumn(attribute.Key); ok {
		t.Fatal("key has no numeric column")
	}
	if _, ok := NumericColumn("genre"); ok {
		t.Fatal("genre is not an attribute")
	}
}

func TestEnergyTierValid(t *testing.T) {
	for _, tier := range EnergyTiers {
		if !tier.Valid() {
			t.Errorf("%s should be valid", tier)
		}
	}
	if EnergyTier("extreme").Valid() {
		t.Error("unknown tier accepted")
	}
}
