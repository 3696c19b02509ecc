package refl

import (
	"fmt"
	"log/slog"
)

// cacheSlot names a derived quantity memoized by an Experiment.
type cacheSlot int

const (
	slotRendered      cacheSlot = iota + 1 // Sample rendered into microslabs.
	slotCalcR                              // Amplitude on the calculation grid.
	slotAmplitude                          // Amplitude projected onto Q.
	slotReflectivity                       // One of the four resolution/beam curves.
	slotSmoothProfile                      // Smooth profile, keyed by dz.
	slotStepProfile                        // Step profile.
	slotResiduals                          // Normalised residuals against data.
)

var slotNames = [...]string{
	slotRendered:      "rendered",
	slotCalcR:         "calc_r",
	slotAmplitude:     "amplitude",
	slotReflectivity:  "reflectivity",
	slotSmoothProfile: "smooth_profile",
	slotStepProfile:   "step_profile",
	slotResiduals:     "residuals",
}

var (
	_ fmt.Stringer   = cacheSlot(0)
	_ slog.LogValuer = cacheSlot(0)
)

func (c cacheSlot) isValid() bool {
	return c >= slotRendered && c <= slotResiduals
}

// String returns the slot name, or "cacheSlot(n)" for invalid values.
func (c cacheSlot) String() string {
	if c.isValid() {
		return slotNames[c]
	}
	return fmt.Sprintf("cacheSlot(%d)", int(c))
}

// LogValue implements slog.LogValuer.
func (c cacheSlot) LogValue() slog.Value { return slog.StringValue(c.String()) }

// slot holds one memoized value, valid while its generation matches the
// owner's. Generation zero is never current, so the zero slot is stale.
type slot[T any] struct {
	gen uint64
	val T
}

func (s *slot[T]) get(gen uint64) (T, bool) {
	if s.gen != gen {
		var zero T
		return zero, false
	}
	return s.val, true
}

func (s *slot[T]) set(gen uint64, v T) {
	s.gen, s.val = gen, v
}

// keyedSlot memoizes values by key for a single generation.
type keyedSlot[K comparable, V any] struct {
	gen  uint64
	vals map[K]V
}

func (s *keyedSlot[K, V]) get(gen uint64, k K) (V, bool) {
	if s.gen != gen {
		var zero V
		return zero, false
	}
	v, ok := s.vals[k]
	return v, ok
}

func (s *keyedSlot[K, V]) set(gen uint64, k K, v V) {
	if s.gen != gen || s.vals == nil {
		s.gen = gen
		s.vals = make(map[K]V)
	}
	s.vals[k] = v
}
