package abeles

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// Sentinel errors for the abeles package.
var (
	ErrNonFinite      = errors.New("abeles: non-finite value")
	ErrShape          = errors.New("abeles: inconsistent slab arrays")
	ErrInvalidBackend = errors.New("abeles: invalid backend")
)

// sldScale converts an SLD in 1e-6/Å² into the 4πρ term of kz².
const sldScale = 4e-6 * math.Pi

// Slabs is the flat sample description consumed by a Kernel.
//
// Rho and IRho hold one entry per slab. Each entry is either a single value
// shared by every kz or one value per kz. A nil IRho or Sigma means zero.
type Slabs struct {
	Depth []float64   // thickness per slab, Å
	Rho   [][]float64 // real SLD per slab
	IRho  [][]float64 // imaginary SLD per slab
	Sigma []float64   // roughness of the interface between slab i and i+1, Å
}

// Kernel computes the complex reflection amplitude at every kz.
type Kernel interface {
	Amplitude(kz []float64, s Slabs) ([]complex128, error)
}

// Len returns the number of slabs.
func (s *Slabs) Len() int { return len(s.Depth) }

func (s *Slabs) sld(j, i int) complex128 {
	rho := at(s.Rho[j], i)
	var irho float64
	if s.IRho != nil {
		irho = at(s.IRho[j], i)
	}
	return complex(rho, irho)
}

func (s *Slabs) sigma(j int) float64 {
	if s.Sigma == nil {
		return 0
	}
	return s.Sigma[j]
}

func at(v []float64, i int) float64 {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

// validate checks array shapes and rejects non-finite inputs so that a NaN
// never reaches the recursion.
func (s *Slabs) validate(kz []float64) error {
	m := len(s.Depth)
	if len(s.Rho) != m {
		return fmt.Errorf("%w: %d depths, %d rho", ErrShape, m, len(s.Rho))
	}
	if s.IRho != nil && len(s.IRho) != m {
		return fmt.Errorf("%w: %d depths, %d irho", ErrShape, m, len(s.IRho))
	}
	if s.Sigma != nil && m > 0 && len(s.Sigma) != m-1 {
		return fmt.Errorf("%w: %d slabs need %d interfaces, got %d", ErrShape, m, m-1, len(s.Sigma))
	}
	if err := checkFinite("kz", kz); err != nil {
		return err
	}
	if err := checkFinite("depth", s.Depth); err != nil {
		return err
	}
	if err := checkFinite("sigma", s.Sigma); err != nil {
		return err
	}
	for j := 0; j < m; j++ {
		if err := checkChannel("rho", j, s.Rho[j], len(kz)); err != nil {
			return err
		}
		if s.IRho != nil {
			if err := checkChannel("irho", j, s.IRho[j], len(kz)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkChannel(name string, j int, v []float64, n int) error {
	if len(v) != 1 && len(v) != n {
		return fmt.Errorf("%w: %s[%d] has %d values for %d kz", ErrShape, name, j, len(v), n)
	}
	return checkFinite(fmt.Sprintf("%s[%d]", name, j), v)
}

func checkFinite(name string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s[%d] = %v", ErrNonFinite, name, i, x)
		}
	}
	return nil
}

func checkAmplitude(r []complex128) error {
	for i, v := range r {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return fmt.Errorf("%w: amplitude[%d] = %v", ErrNonFinite, i, v)
		}
	}
	return nil
}

// order maps recursion step j onto a slab index. Beams with positive kz
// enter from slab 0; beams with negative kz (including -0, which is what
// Q = 0 becomes) enter from the last slab.
type order struct {
	m       int
	reverse bool
}

func (o order) layer(j int) int {
	if o.reverse {
		return o.m - 1 - j
	}
	return j
}

func (o order) iface(j int) int {
	if o.reverse {
		return o.m - 2 - j
	}
	return j
}

// fresnel returns the Nevot–Croce damped interface coefficient
// F = (k - kn)/(k + kn) · exp(-2 k kn σ²).
// A vanishing denominator means both media match, so F = 0.
func fresnel(k, kn complex128, sigma float64) complex128 {
	den := k + kn
	if den == 0 {
		return 0
	}
	f := (k - kn) / den
	if sigma != 0 {
		f *= cmplx.Exp(complex(-2*sigma*sigma, 0) * k * kn)
	}
	return f
}

// wavevector returns kₙ = √(kz² + 4πρ₀ - 4π(ρ + iρᵢ)), the local
// wavevector relative to the incident medium.
func wavevector(kzSq float64, sld complex128) complex128 {
	return cmplx.Sqrt(complex(kzSq, 0) - complex(sldScale, 0)*sld)
}

// vectorized runs the recursion slab by slab across every kz.
type vectorized struct{}

func (vectorized) Amplitude(kz []float64, s Slabs) ([]complex128, error) {
	if err := s.validate(kz); err != nil {
		return nil, err
	}
	r := make([]complex128, len(kz))
	var pos, neg []int
	for i, k := range kz {
		if !math.Signbit(k) {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	m := s.Len()
	recurseGroup(r, kz, pos, &s, order{m: m})
	recurseGroup(r, kz, neg, &s, order{m: m, reverse: true})
	if err := checkAmplitude(r); err != nil {
		return nil, err
	}
	return r, nil
}

func recurseGroup(r []complex128, kz []float64, idx []int, s *Slabs, o order) {
	n := len(idx)
	if n == 0 || o.m < 2 {
		return
	}
	first := o.layer(0)
	kzSq := make([]float64, n)
	k := make([]complex128, n)
	b11 := make([]complex128, n)
	b12 := make([]complex128, n)
	b21 := make([]complex128, n)
	b22 := make([]complex128, n)
	for p, i := range idx {
		kzSq[p] = kz[i]*kz[i] + sldScale*at(s.Rho[first], i)
		k[p] = complex(math.Abs(kz[i]), 0)
		b11[p], b22[p] = 1, 1
	}
	for j := 0; j < o.m-1; j++ {
		next := o.layer(j + 1)
		sigma := s.sigma(o.iface(j))
		depth := s.Depth[o.layer(j)]
		for p, i := range idx {
			kn := wavevector(kzSq[p], s.sld(next, i))
			f := fresnel(k[p], kn, sigma)
			m11, m22 := complex(1, 0), complex(1, 0)
			if j > 0 {
				m11 = cmplx.Exp(complex(0, depth) * k[p])
				m22 = cmplx.Exp(complex(0, -depth) * k[p])
			}
			m21, m12 := f*m11, f*m22
			b11[p], b21[p] = b11[p]*m11+b21[p]*m12, b11[p]*m21+b21[p]*m22
			b12[p], b22[p] = b12[p]*m11+b22[p]*m12, b12[p]*m21+b22[p]*m22
			k[p] = kn
		}
	}
	for p, i := range idx {
		r[i] = b12[p] / b11[p]
	}
}

// pointwise runs the whole recursion for one kz before moving to the next.
type pointwise struct{}

func (pointwise) Amplitude(kz []float64, s Slabs) ([]complex128, error) {
	if err := s.validate(kz); err != nil {
		return nil, err
	}
	r := make([]complex128, len(kz))
	m := s.Len()
	for i := range kz {
		r[i] = amplitudeAt(kz, i, &s, order{m: m, reverse: math.Signbit(kz[i])})
	}
	if err := checkAmplitude(r); err != nil {
		return nil, err
	}
	return r, nil
}

func amplitudeAt(kz []float64, i int, s *Slabs, o order) complex128 {
	if o.m < 2 {
		return 0
	}
	kzSq := kz[i]*kz[i] + sldScale*at(s.Rho[o.layer(0)], i)
	k := complex(math.Abs(kz[i]), 0)
	b11, b12, b21, b22 := complex(1, 0), complex(0, 0), complex(0, 0), complex(1, 0)
	for j := 0; j < o.m-1; j++ {
		kn := wavevector(kzSq, s.sld(o.layer(j+1), i))
		f := fresnel(k, kn, s.sigma(o.iface(j)))
		m11, m22 := complex(1, 0), complex(1, 0)
		if j > 0 {
			d := s.Depth[o.layer(j)]
			m11 = cmplx.Exp(complex(0, d) * k)
			m22 = cmplx.Exp(complex(0, -d) * k)
		}
		m21, m12 := f*m11, f*m22
		b11, b21 = b11*m11+b21*m12, b11*m21+b21*m22
		b12, b22 = b12*m11+b22*m12, b12*m21+b22*m22
		k = kn
	}
	return b12 / b11
}

// Fresnel returns |r|² of a single interface between a substrate and an
// incident medium, with kz following the Amplitude convention.
func Fresnel(kz []float64, rhoSub, irhoSub, rhoInc, irhoInc, sigma float64) ([]float64, error) {
	r, err := vectorized{}.Amplitude(kz, Slabs{
		Depth: []float64{0, 0},
		Rho:   [][]float64{{rhoSub}, {rhoInc}},
		IRho:  [][]float64{{irhoSub}, {irhoInc}},
		Sigma: []float64{sigma},
	})
	if err != nil {
		return nil, err
	}
	return Reflectivity(r), nil
}

// Reflectivity returns |r|² for each amplitude.
func Reflectivity(r []complex128) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		re, im := real(v), imag(v)
		out[i] = re*re + im*im
	}
	return out
}
