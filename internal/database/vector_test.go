package database_test

import (
	"testing"

	"github.com/edgard/motdbot/internal/database"
)

func TestVectorRoundtrip(t *testing.T) {
	t.Parallel()

	original := []float32{0.5, -1.25, 3.14159, 0, 1e-7}

	blob, err := database.EncodeVector(original)
	if err != nil {
		t.Fatalf("EncodeVector() error: %v", err)
	}
	if len(blob) != len(original)*4 {
		t.Errorf("blob length = %d, want %d", len(blob), len(original)*4)
	}

	decoded, err := database.DecodeVector(blob)
	if err != nil {
		t.Fatalf("DecodeVector() error: %v", err)
	}
	if len(decoded) != len(original) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestVectorEmpty(t *testing.T) {
	t.Parallel()

	blob, err := database.EncodeVector(nil)
	if err != nil || blob != nil {
		t.Errorf("EncodeVector(nil) = %v, %v, want nil, nil", blob, err)
	}

	vec, err := database.DecodeVector(nil)
	if err != nil || vec != nil {
		t.Errorf("DecodeVector(nil) = %v, %v, want nil, nil", vec, err)
	}
}

func TestDecodeVectorInvalidLength(t *testing.T) {
	t.Parallel()

	if _, err := database.DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeVector() should reject a blob whose length is not a multiple of 4")
	}
}
