package similarity

import (
	"errors"
	"math"
	"testing"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	v := []float64{0.3, -1.2, 4.5, 0.01}

	sim, err := Cosine(v, v)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("Cosine(v, v) = %f, want 1.0", sim)
	}
}

func TestCosine_OppositeVectors(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{-1, -2, -3}

	sim, err := Cosine(a, b)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if math.Abs(sim+1.0) > 1e-9 {
		t.Errorf("Cosine(v, -v) = %f, want -1.0", sim)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}

	sim, err := Cosine(a, b)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if math.Abs(sim) > 1e-9 {
		t.Errorf("Cosine of orthogonal vectors = %f, want 0", sim)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	zero := []float64{0, 0, 0}
	v := []float64{1, 2, 3}

	sim, err := Cosine(zero, v)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("Cosine(zero, v) = %f, want 0", sim)
	}

	sim, err = Cosine(v, zero)
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("Cosine(v, zero) = %f, want 0", sim)
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 2}

	_, err := Cosine(a, b)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCosine_EmptyVectors(t *testing.T) {
	// Two empty vectors have equal length and zero magnitude.
	sim, err := Cosine([]float64{}, []float64{})
	if err != nil {
		t.Fatalf("Cosine failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("Cosine of empty vectors = %f, want 0", sim)
	}
}
