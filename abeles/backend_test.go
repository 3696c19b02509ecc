package abeles

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestBackendValues(t *testing.T) {
	if Vectorized != 1 {
		t.Errorf("Vectorized = %d, want 1", Vectorized)
	}
	if Pointwise != 2 {
		t.Errorf("Pointwise = %d, want 2", Pointwise)
	}
}

func TestBackendString(t *testing.T) {
	tests := []struct {
		b    Backend
		want string
	}{
		{Vectorized, "vectorized"},
		{Pointwise, "pointwise"},
		{Backend(0), "Backend(0)"},
		{Backend(3), "Backend(3)"},
	}
	for _, tt := range tests {
		if got := tt.b.String(); got != tt.want {
			t.Errorf("Backend(%d).String() = %q, want %q", int(tt.b), got, tt.want)
		}
	}
}

func TestBackendIsValid(t *testing.T) {
	for _, b := range []Backend{Vectorized, Pointwise} {
		if !b.IsValid() {
			t.Errorf("Backend(%d).IsValid() = false, want true", int(b))
		}
	}
	for _, b := range []Backend{Backend(0), Backend(-1), Backend(3)} {
		if b.IsValid() {
			t.Errorf("Backend(%d).IsValid() = true, want false", int(b))
		}
	}
}

func TestBackendKernel(t *testing.T) {
	if _, ok := Vectorized.Kernel().(vectorized); !ok {
		t.Errorf("Vectorized.Kernel() = %T, want vectorized", Vectorized.Kernel())
	}
	if _, ok := Pointwise.Kernel().(pointwise); !ok {
		t.Errorf("Pointwise.Kernel() = %T, want pointwise", Pointwise.Kernel())
	}
	if _, ok := Backend(0).Kernel().(vectorized); !ok {
		t.Errorf("Backend(0).Kernel() = %T, want vectorized fallback", Backend(0).Kernel())
	}
}

func TestBackendJSONRoundTrip(t *testing.T) {
	for _, b := range []Backend{Vectorized, Pointwise} {
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal(%v): %v", b, err)
		}
		var got Backend
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("json.Unmarshal(%s): %v", data, err)
		}
		if got != b {
			t.Errorf("round trip %v -> %s -> %v", b, data, got)
		}
	}
}

func TestBackendMarshalInvalid(t *testing.T) {
	_, err := json.Marshal(Backend(0))
	if err == nil {
		t.Fatal("json.Marshal(Backend(0)) should return error")
	}
	if !errors.Is(err, ErrInvalidBackend) {
		t.Errorf("error should wrap ErrInvalidBackend, got %v", err)
	}
}

func TestBackendUnmarshalInvalid(t *testing.T) {
	for _, input := range []string{`"numba"`, `""`, `42`, `null`} {
		var b Backend
		if err := json.Unmarshal([]byte(input), &b); err == nil {
			t.Errorf("json.Unmarshal(%s) should return error", input)
		}
	}
}

func TestBackendUnmarshalText(t *testing.T) {
	var b Backend
	if err := b.UnmarshalText([]byte("pointwise")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != Pointwise {
		t.Errorf("UnmarshalText(pointwise) = %v, want Pointwise", b)
	}
	if err := b.UnmarshalText([]byte("Pointwise")); !errors.Is(err, ErrInvalidBackend) {
		t.Errorf("UnmarshalText is case sensitive, got err %v", err)
	}
}
