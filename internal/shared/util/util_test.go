package util

import (
	"math"
	"regexp"
	"testing"
)

func TestGenerateUUID(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateUUID()
		if err != nil {
			t.Fatalf("GenerateUUID: %v", err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("not a v4 uuid: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate uuid: %s", id)
		}
		seen[id] = true
	}
}

func TestHaversine(t *testing.T) {
	t.Parallel()

	if d := Haversine(6.9271, 79.8612, 6.9271, 79.8612); d != 0 {
		t.Fatalf("zero distance = %f", d)
	}

	// Colombo to Kandy, roughly 94 km great-circle
	d := Haversine(6.9271, 79.8612, 7.2906, 80.6337)
	if math.Abs(d-94) > 3 {
		t.Fatalf("Colombo-Kandy distance = %f km", d)
	}

	// symmetric
	if d2 := Haversine(7.2906, 80.6337, 6.9271, 79.8612); math.Abs(d-d2) > 1e-9 {
		t.Fatalf("asymmetric: %f vs %f", d, d2)
	}
}
