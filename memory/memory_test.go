package memory_test

import (
	"math"
	"testing"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := memory.CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	vec := memory.Normalize([]float32{3, 4, 0})
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("normalized vector has squared norm %f, want 1", norm)
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("Normalize([3 4 0]) = %v", vec)
	}

	zero := memory.Normalize([]float32{0, 0, 0})
	for i, v := range zero {
		if v != 0 {
			t.Errorf("zero vector changed at %d: %f", i, v)
		}
	}
}
