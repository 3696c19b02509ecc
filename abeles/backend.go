package abeles

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Backend names an Abeles kernel implementation.
type Backend int

const (
	Vectorized Backend = iota + 1 // Slab-outer loop over all kz at once.
	Pointwise                     // Full recursion per kz value.
)

var (
	backendNames  = [...]string{Vectorized: "vectorized", Pointwise: "pointwise"}
	backendByName = map[string]Backend{
		"vectorized": Vectorized,
		"pointwise":  Pointwise,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Backend(0)
	_ json.Marshaler           = Backend(0)
	_ json.Unmarshaler         = (*Backend)(nil)
	_ encoding.TextMarshaler   = Backend(0)
	_ encoding.TextUnmarshaler = (*Backend)(nil)
)

// String returns the name of the backend ("vectorized", "pointwise").
// For invalid values it returns "Backend(n)".
func (b Backend) String() string {
	if b.IsValid() {
		return backendNames[b]
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// IsValid reports whether b names a known kernel.
func (b Backend) IsValid() bool {
	return b >= Vectorized && b <= Pointwise
}

// Kernel returns the implementation selected by b.
// Invalid values fall back to the vectorized reference kernel.
func (b Backend) Kernel() Kernel {
	if b == Pointwise {
		return pointwise{}
	}
	return vectorized{}
}

// MarshalText implements encoding.TextMarshaler.
func (b Backend) MarshalText() ([]byte, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBackend, int(b))
	}
	return []byte(backendNames[b]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Backend) UnmarshalText(text []byte) error {
	v, ok := backendByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, text)
	}
	*b = v
	return nil
}

// MarshalJSON implements json.Marshaler. Backend serializes as a JSON string.
func (b Backend) MarshalJSON() ([]byte, error) {
	text, err := b.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (b *Backend) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBackend, data)
	}
	return b.UnmarshalText([]byte(s))
}
