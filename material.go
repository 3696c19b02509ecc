package refl

// Scatterer supplies the scattering length density of a material for a
// probe, in units of 1e-6/Å².
//
// SLD returns either a single value (length 1) or one value per point of
// the probe's calculation grid.
type Scatterer interface {
	Name() string
	SLD(probe Probe) (rho, irho []float64)
}

// LayerConverter is implemented by anything that can stand in for a layer
// in a stack, typically a material becoming a zero-thickness Slab.
type LayerConverter interface {
	ToLayer() Layer
}

// SLD is a material with a fixed, probe-independent scattering length
// density.
type SLD struct {
	name string
	Rho  *Parameter
	IRho *Parameter
}

var (
	_ Scatterer      = (*SLD)(nil)
	_ LayerConverter = (*SLD)(nil)
	_ Parameterized  = (*SLD)(nil)
)

// NewSLD returns a material named name with the given real and imaginary SLD.
func NewSLD(name string, rho, irho float64) *SLD {
	return &SLD{
		name: name,
		Rho:  NewParameter(name+" rho", rho),
		IRho: NewParameter(name+" irho", irho),
	}
}

// Name returns the material name.
func (m *SLD) Name() string { return m.name }

// SLD returns the current rho and irho as single values.
func (m *SLD) SLD(Probe) (rho, irho []float64) {
	return []float64{m.Rho.Value()}, []float64{m.IRho.Value()}
}

// Parameters implements Parameterized.
func (m *SLD) Parameters() map[string]any {
	return map[string]any{"rho": m.Rho, "irho": m.IRho}
}

// ToLayer wraps the material in a zero-thickness, zero-roughness Slab.
func (m *SLD) ToLayer() Layer { return NewSlab(m, 0, 0) }

func (m *SLD) String() string { return m.name }
