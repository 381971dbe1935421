package resolve

import (
	"math"
	"testing"

	"github.com/your-org/facewatch/internal/models"
)

// fixedThresholds serves a constant threshold for every identity unless a
// per-name override is set.
type fixedThresholds struct {
	global    float64
	overrides map[string]float64
}

func (f fixedThresholds) Threshold(name string) float64 {
	if t, ok := f.overrides[name]; ok {
		return t
	}
	return f.global
}

func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineSimilarity(tc.a, tc.b); math.Abs(float64(got-tc.expected)) > 1e-6 {
				t.Errorf("CosineSimilarity = %v; want %v", got, tc.expected)
			}
		})
	}
}

func TestResolveNoEnrolledIdentities(t *testing.T) {
	r := NewResolver(fixedThresholds{global: 0.8})
	d := r.Resolve(unit(0), nil)
	if d.Name != models.Unknown || d.Known() {
		t.Errorf("expected Unknown with empty enrollment, got %+v", d)
	}
	if d.Similarity != 0 {
		t.Errorf("expected zero similarity, got %v", d.Similarity)
	}
}

func TestResolveKnownAboveThreshold(t *testing.T) {
	r := NewResolver(fixedThresholds{global: 0.8})
	enrolled := map[string][][]float32{
		"alice": {unit(0.1)},
		"bob":   {unit(1.2)},
	}

	d := r.Resolve(unit(0.05), enrolled)
	if !d.Known() || d.Name != "alice" {
		t.Fatalf("expected alice, got %+v", d)
	}
	if d.Similarity < 0.8 {
		t.Errorf("similarity %v should clear the 0.8 threshold", d.Similarity)
	}
}

func TestResolveBelowThresholdReportsBestSimilarity(t *testing.T) {
	r := NewResolver(fixedThresholds{global: 0.99})
	enrolled := map[string][][]float32{"alice": {unit(0.4)}}

	d := r.Resolve(unit(0), enrolled)
	if d.Known() {
		t.Fatalf("expected Unknown, got %+v", d)
	}
	want := float32(math.Cos(0.4))
	if math.Abs(float64(d.Similarity-want)) > 1e-5 {
		t.Errorf("diagnostic similarity = %v; want %v", d.Similarity, want)
	}
}

func TestResolveUsesMaxAcrossReferences(t *testing.T) {
	r := NewResolver(fixedThresholds{global: 0.9})
	// One poor reference and one near-perfect; max must win.
	enrolled := map[string][][]float32{
		"alice": {unit(1.5), unit(0.01)},
	}

	d := r.Resolve(unit(0), enrolled)
	if !d.Known() || d.Name != "alice" {
		t.Errorf("expected alice via best reference, got %+v", d)
	}
}

func TestResolveAppliesPerPersonThreshold(t *testing.T) {
	// Alice requires 0.999: a 0.995 similarity is rejected for her but would
	// pass the 0.9 global applied to anyone else.
	r := NewResolver(fixedThresholds{
		global:    0.9,
		overrides: map[string]float64{"alice": 0.999},
	})
	enrolled := map[string][][]float32{"alice": {unit(0.1)}}

	d := r.Resolve(unit(0), enrolled)
	if d.Known() {
		t.Errorf("alice's stricter threshold should reject, got %+v", d)
	}
}
