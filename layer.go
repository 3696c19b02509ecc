package refl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Layer is one region of a sample. Render appends the layer's slabs to the
// buffer and must not modify anything else.
type Layer interface {
	Parameterized
	Render(probe Probe, slabs *Microslabs) error
	String() string
}

// Compile-time interface checks.
var (
	_ Layer = (*Slab)(nil)
	_ Layer = (*Stack)(nil)
	_ Layer = (*Repeat)(nil)
	_ Layer = (*Bspline)(nil)
	_ Layer = (*PBS)(nil)
)

func thicknessParameter(name string, v float64) *Parameter {
	return NewParameter(name+" thickness", v).Range(0, math.Inf(1))
}

func interfaceParameter(name string, v float64) *Parameter {
	return NewParameter(name+" interface", v).Range(0, math.Inf(1))
}

// Slab is a uniform block of one material.
type Slab struct {
	Material  Scatterer
	Thickness *Parameter
	Interface *Parameter // roughness of the top boundary
}

// NewSlab returns a slab of m with the given thickness and top roughness.
func NewSlab(m Scatterer, thickness, interfaceWidth float64) *Slab {
	return &Slab{
		Material:  m,
		Thickness: thicknessParameter(m.Name(), thickness),
		Interface: interfaceParameter(m.Name(), interfaceWidth),
	}
}

// Parameters implements Parameterized.
func (s *Slab) Parameters() map[string]any {
	out := map[string]any{"thickness": s.Thickness, "interface": s.Interface}
	if p, ok := s.Material.(Parameterized); ok {
		out["material"] = p.Parameters()
	}
	return out
}

// Render appends a single slab.
func (s *Slab) Render(probe Probe, slabs *Microslabs) error {
	rho, irho := s.Material.SLD(probe)
	if err := slabs.Extend(s.Thickness.Value(), s.Interface.Value(), rho, irho); err != nil {
		return fmt.Errorf("slab %s: %w", s.Material.Name(), err)
	}
	return nil
}

func (s *Slab) String() string {
	if t := s.Thickness.Value(); t > 0 {
		return s.Material.Name() + "/" + strconv.FormatFloat(t, 'g', 3, 64)
	}
	return s.Material.Name()
}

// Stack is an ordered sequence of layers, substrate first.
type Stack struct {
	layers []Layer
}

// StackOf builds a stack from layers, stacks and layer converters.
// Nested stacks are flattened into the result.
func StackOf(items ...any) (*Stack, error) {
	s := &Stack{}
	for i, it := range items {
		switch v := it.(type) {
		case *Stack:
			s.layers = append(s.layers, v.layers...)
		case Layer:
			s.layers = append(s.layers, v)
		case LayerConverter:
			s.layers = append(s.layers, v.ToLayer())
		default:
			return nil, fmt.Errorf("%w: cannot stack item %d of type %T", ErrConfiguration, i, it)
		}
	}
	return s, nil
}

// Len returns the number of layers.
func (s *Stack) Len() int { return len(s.layers) }

// Layers returns a copy of the layer list.
func (s *Stack) Layers() []Layer { return append([]Layer(nil), s.layers...) }

// Thickness returns the summed thickness of the layers, counting each
// repeat Count times. The substrate and incident medium contribute their
// own thickness parameters, which are normally zero.
func (s *Stack) Thickness() float64 {
	var total float64
	for _, l := range s.layers {
		total += layerThickness(l)
	}
	return total
}

func layerThickness(l Layer) float64 {
	switch v := l.(type) {
	case *Slab:
		return v.Thickness.Value()
	case *Bspline:
		return v.Thickness.Value()
	case *PBS:
		return v.Thickness.Value()
	case *Stack:
		return v.Thickness()
	case *Repeat:
		return v.Thickness()
	}
	return 0
}

// Parameters implements Parameterized.
func (s *Stack) Parameters() map[string]any {
	layers := make([]any, len(s.layers))
	for i, l := range s.layers {
		layers[i] = l.Parameters()
	}
	return map[string]any{"layers": layers}
}

// Render renders each layer in order.
func (s *Stack) Render(probe Probe, slabs *Microslabs) error {
	for _, l := range s.layers {
		if err := l.Render(probe, slabs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stack) String() string {
	parts := make([]string, len(s.layers))
	for i, l := range s.layers {
		parts[i] = l.String()
	}
	return strings.Join(parts, " + ")
}

// Repeat is a stack repeated Count times. Interface, when set, replaces the
// roughness above the final repetition; the roughness between repetitions
// is that of the stack's top layer.
type Repeat struct {
	Stack     *Stack
	Count     *Parameter
	Interface *Parameter // nil when the repeat has no capping interface
}

// NewRepeat repeats x n times. x may be a stack or any layer other than a
// single slab, and n must be greater than one.
func NewRepeat(x any, n int) (*Repeat, error) {
	if n <= 1 {
		return nil, fmt.Errorf("%w: repeat count %d must be greater than 1", ErrConfiguration, n)
	}
	var s *Stack
	switch v := x.(type) {
	case *Stack:
		s = v
	case *Slab:
		return nil, fmt.Errorf("%w: cannot repeat single slab %s", ErrConfiguration, v)
	case Layer:
		s = &Stack{layers: []Layer{v}}
	default:
		return nil, fmt.Errorf("%w: cannot repeat %T", ErrConfiguration, x)
	}
	return &Repeat{Stack: s, Count: NewIntParameter("repeats", n)}, nil
}

// Parameters implements Parameterized.
func (r *Repeat) Parameters() map[string]any {
	out := map[string]any{"stack": r.Stack.Parameters(), "repeat": r.Count}
	if r.Interface != nil {
		out["interface"] = r.Interface
	}
	return out
}

// Render writes the stack once and copies the span in the buffer for the
// remaining repetitions. A count of zero renders nothing.
func (r *Repeat) Render(probe Probe, slabs *Microslabs) error {
	n := r.Count.Int()
	if n <= 0 {
		return nil
	}
	mark := slabs.Len()
	if err := r.Stack.Render(probe, slabs); err != nil {
		return err
	}
	slabs.Repeat(mark, n-1)
	if r.Interface != nil {
		slabs.Interface(r.Interface.Value())
	}
	return nil
}

// Thickness returns Count times the thickness of one repetition. A count
// below one gives zero, matching Render.
func (r *Repeat) Thickness() float64 {
	n := r.Count.Int()
	if n <= 0 {
		return 0
	}
	return float64(n) * r.Stack.Thickness()
}

func (r *Repeat) String() string {
	return "(" + r.Stack.String() + ")x" + strconv.Itoa(r.Count.Int())
}

// Bspline is a freeform layer with equally spaced B-spline control points.
// Rendering is not supported.
type Bspline struct {
	Name      string
	Thickness *Parameter
	Interface *Parameter
	Rho       []*Parameter
	IRho      []*Parameter
}

// NewBspline returns a Bspline layer with the given control values.
func NewBspline(name string, thickness float64, rho, irho []float64) *Bspline {
	return &Bspline{
		Name:      name,
		Thickness: thicknessParameter(name, thickness),
		Interface: interfaceParameter(name, 0),
		Rho:       controlPoints(name+" rho", rho),
		IRho:      controlPoints(name+" irho", irho),
	}
}

func controlPoints(prefix string, v []float64) []*Parameter {
	out := make([]*Parameter, len(v))
	for i, x := range v {
		out[i] = NewParameter(prefix+"["+strconv.Itoa(i)+"]", x)
	}
	return out
}

// Parameters implements Parameterized.
func (b *Bspline) Parameters() map[string]any {
	return map[string]any{
		"thickness": b.Thickness,
		"interface": b.Interface,
		"rho":       b.Rho,
		"irho":      b.IRho,
	}
}

// Render fails with ErrNotImplemented.
func (b *Bspline) Render(Probe, *Microslabs) error {
	return fmt.Errorf("%w: Bspline %q", ErrNotImplemented, b.Name)
}

func (b *Bspline) String() string { return "Bspline(" + b.Name + ")" }

// PBS is a freeform layer with parametric B-spline control points, each an
// (x, y) pair. Rendering is not supported.
type PBS struct {
	Name       string
	Thickness  *Parameter
	Interface  *Parameter
	RhoPoints  [][2]*Parameter
	IRhoPoints [][2]*Parameter
}

// NewPBS returns a PBS layer with the given control points.
func NewPBS(name string, thickness float64, rho, irho [][2]float64) *PBS {
	pairs := func(prefix string, v [][2]float64) [][2]*Parameter {
		out := make([][2]*Parameter, len(v))
		for i, xy := range v {
			out[i] = [2]*Parameter{
				NewParameter(prefix+" x["+strconv.Itoa(i)+"]", xy[0]),
				NewParameter(prefix+" y["+strconv.Itoa(i)+"]", xy[1]),
			}
		}
		return out
	}
	return &PBS{
		Name:       name,
		Thickness:  thicknessParameter(name, thickness),
		Interface:  interfaceParameter(name, 0),
		RhoPoints:  pairs(name+" rho", rho),
		IRhoPoints: pairs(name+" irho", irho),
	}
}

// Parameters implements Parameterized.
func (p *PBS) Parameters() map[string]any {
	flat := func(v [][2]*Parameter) []any {
		out := make([]any, len(v))
		for i, xy := range v {
			out[i] = []any{xy[0], xy[1]}
		}
		return out
	}
	return map[string]any{
		"thickness": p.Thickness,
		"interface": p.Interface,
		"rho":       flat(p.RhoPoints),
		"irho":      flat(p.IRhoPoints),
	}
}

// Render fails with ErrNotImplemented.
func (p *PBS) Render(Probe, *Microslabs) error {
	return fmt.Errorf("%w: PBS %q", ErrNotImplemented, p.Name)
}

func (p *PBS) String() string { return "PBS(" + p.Name + ")" }

// WithThickness returns a copy of x whose thickness is v. The copy owns a
// cloned thickness parameter, so x and any tree holding it are unchanged.
// A layer converter such as a material becomes a new Slab.
func WithThickness(x any, v float64) (Layer, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: thickness %g", ErrConfiguration, v)
	}
	switch l := x.(type) {
	case *Slab:
		c := *l
		c.Thickness = l.Thickness.Clone()
		c.Thickness.Set(v)
		return &c, nil
	case *Bspline:
		c := *l
		c.Thickness = l.Thickness.Clone()
		c.Thickness.Set(v)
		return &c, nil
	case *PBS:
		c := *l
		c.Thickness = l.Thickness.Clone()
		c.Thickness.Set(v)
		return &c, nil
	case *Stack, *Repeat:
		return nil, fmt.Errorf("%w: %T has no thickness of its own", ErrConfiguration, x)
	case LayerConverter:
		return WithThickness(l.ToLayer(), v)
	default:
		return nil, fmt.Errorf("%w: cannot set thickness of %T", ErrConfiguration, x)
	}
}

// WithInterface returns a copy of x whose top roughness is v, cloning the
// interface parameter. On a Repeat it sets the capping interface.
func WithInterface(x any, v float64) (Layer, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: interface %g", ErrConfiguration, v)
	}
	switch l := x.(type) {
	case *Slab:
		c := *l
		c.Interface = l.Interface.Clone()
		c.Interface.Set(v)
		return &c, nil
	case *Bspline:
		c := *l
		c.Interface = l.Interface.Clone()
		c.Interface.Set(v)
		return &c, nil
	case *PBS:
		c := *l
		c.Interface = l.Interface.Clone()
		c.Interface.Set(v)
		return &c, nil
	case *Repeat:
		c := *l
		if l.Interface != nil {
			c.Interface = l.Interface.Clone()
			c.Interface.Set(v)
		} else {
			c.Interface = interfaceParameter("repeat", v)
		}
		return &c, nil
	case *Stack:
		return nil, fmt.Errorf("%w: stack has no interface of its own", ErrConfiguration)
	case LayerConverter:
		return WithInterface(l.ToLayer(), v)
	default:
		return nil, fmt.Errorf("%w: cannot set interface of %T", ErrConfiguration, x)
	}
}
