package refl

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync/atomic"
)

var parameterSeq atomic.Uint64

// Parameter is a named scalar cell with bounds.
//
// Layers, probes and distributions hold *Parameter values; the optimizer
// mutates them with Set and then calls Update on the owning model.
// Bounds are metadata for the optimizer and are not enforced by Set.
type Parameter struct {
	name    string
	value   float64
	lower   float64
	upper   float64
	integer bool
	id      uint64
}

// NewParameter returns an unbounded parameter.
func NewParameter(name string, value float64) *Parameter {
	return &Parameter{
		name:  name,
		value: value,
		lower: math.Inf(-1),
		upper: math.Inf(1),
		id:    parameterSeq.Add(1),
	}
}

// NewIntParameter returns an integer-valued parameter bounded to [0, +Inf).
func NewIntParameter(name string, value int) *Parameter {
	p := NewParameter(name, float64(value))
	p.integer = true
	p.lower = 0
	return p
}

// ID returns the process-unique identity of p. Clones get a new ID.
func (p *Parameter) ID() uint64 { return p.id }

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Value returns the current value.
func (p *Parameter) Value() float64 { return p.value }

// Int returns the value rounded to the nearest integer.
func (p *Parameter) Int() int { return int(math.Round(p.value)) }

// Integer reports whether p only takes integer values.
func (p *Parameter) Integer() bool { return p.integer }

// Set stores v. Integer parameters round to the nearest integer.
func (p *Parameter) Set(v float64) {
	if p.integer {
		v = math.Round(v)
	}
	p.value = v
}

// Bounds returns the lower and upper limits.
func (p *Parameter) Bounds() (lower, upper float64) { return p.lower, p.upper }

// Range sets the bounds and returns p.
func (p *Parameter) Range(lower, upper float64) *Parameter {
	p.lower, p.upper = lower, upper
	return p
}

// Bounded reports whether both limits are finite.
func (p *Parameter) Bounded() bool {
	return !math.IsInf(p.lower, 0) && !math.IsInf(p.upper, 0)
}

// Clone returns a copy of p with a fresh identity.
func (p *Parameter) Clone() *Parameter {
	c := *p
	c.id = parameterSeq.Add(1)
	return &c
}

// String returns "name=value".
func (p *Parameter) String() string {
	return p.name + "=" + strconv.FormatFloat(p.value, 'g', -1, 64)
}

// Parameterized is implemented by everything that owns parameters.
//
// The returned tree nests map[string]any, []any and *Parameter values.
type Parameterized interface {
	Parameters() map[string]any
}

// ValidateParameters checks that every parameter lies within its bounds.
func ValidateParameters(params ...*Parameter) error {
	for _, p := range params {
		if math.IsNaN(p.value) || p.value < p.lower || p.value > p.upper {
			return fmt.Errorf("%w: %s = %g, bounds [%g, %g]",
				ErrParameterBounds, p.name, p.value, p.lower, p.upper)
		}
	}
	return nil
}

// FlattenParameters walks a Parameters tree in sorted-key order and returns
// each distinct parameter once, in first-seen order.
func FlattenParameters(tree any) []*Parameter {
	seen := make(map[uint64]bool)
	var out []*Parameter
	var walk func(v any)
	walk = func(v any) {
		switch n := v.(type) {
		case *Parameter:
			if n != nil && !seen[n.id] {
				seen[n.id] = true
				out = append(out, n)
			}
		case map[string]any:
			keys := make([]string, 0, len(n))
			for k := range n {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(n[k])
			}
		case []any:
			for _, e := range n {
				walk(e)
			}
		case []*Parameter:
			for _, e := range n {
				walk(e)
			}
		}
	}
	walk(tree)
	return out
}
