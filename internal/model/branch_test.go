package model

import (
	"math"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestHaversineKm(t *testing.T) {
	// Cairo Tahrir Square to Giza pyramids, roughly 13 km.
	d := HaversineKm(30.0444, 31.2357, 29.9792, 31.1342)
	if d < 11 || d > 14 {
		t.Fatalf("unexpected distance %.2f", d)
	}
	if HaversineKm(30, 31, 30, 31) != 0 {
		t.Fatalf("distance to self should be zero")
	}
}

func TestNearestBranch(t *testing.T) {
	branches := []Branch{
		{BaseModel: BaseModel{ID: "no-coords"}},
		{BaseModel: BaseModel{ID: "far"}, Latitude: ptr(31.2), Longitude: ptr(29.9)},
		{BaseModel: BaseModel{ID: "near"}, Latitude: ptr(30.05), Longitude: ptr(31.24)},
		{BaseModel: BaseModel{ID: "near-dup"}, Latitude: ptr(30.05), Longitude: ptr(31.24)},
	}

	b, d, ok := NearestBranch(branches, 30.0444, 31.2357)
	if !ok || b.ID != "near" {
		t.Fatalf("expected first nearest branch, got %+v ok=%v", b, ok)
	}
	if math.IsNaN(d) || d > 2 {
		t.Fatalf("unexpected distance %.3f", d)
	}

	if _, _, ok := NearestBranch(branches[:1], 30, 31); ok {
		t.Fatalf("expected no result when no branch has coordinates")
	}
	if _, _, ok := NearestBranch(nil, 30, 31); ok {
		t.Fatalf("expected no result for empty list")
	}
}
